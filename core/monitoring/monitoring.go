package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Flush(time.Duration)                       {}

// Recorder is a Monitor keeping captured errors in memory. It is meant for
// tests asserting that failures were reported.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *Recorder) CaptureException(err error, _ map[string]string) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *Recorder) Flush(time.Duration) {}

// Errors returns a copy of the captured errors.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

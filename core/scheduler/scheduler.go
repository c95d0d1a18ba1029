package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/sitepulse/core/logger"
	"github.com/kilianp07/sitepulse/core/monitoring"
)

// Job is one periodic unit of work. The context it receives is not
// cancelled by Stop so a running job can finish its batch.
type Job func(ctx context.Context)

// Scheduler drives a Job at a fixed interval.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	log      logger.Logger
	mon      monitoring.Monitor

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// jobMu keeps jobs from a stopped loop and a restarted one apart.
	jobMu sync.Mutex
}

// New creates a stopped Scheduler. log and mon may be nil.
func New(name string, interval time.Duration, job Job, log logger.Logger, mon monitoring.Monitor) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive", name)
	}
	if job == nil {
		return nil, errors.New("job is required")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if mon == nil {
		mon = monitoring.NopMonitor{}
	}
	return &Scheduler{name: name, interval: interval, job: job, log: log, mon: mon}, nil
}

// Start launches the loop. It returns false when the scheduler is already
// running, in which case nothing changes.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Infof("%s already running", s.name)
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	go s.loop(ctx, done)
	s.log.Infof("%s started, interval %s", s.name, s.interval)
	return true
}

// Stop cancels the pending tick. It returns false when not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.cancel()
	s.running = false
	s.log.Infof("%s stopped", s.name)
	return true
}

// Running reports whether a loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Wait blocks until the most recent loop has exited, including any job it
// was running when stopped.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.run(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s job panic: %v", s.name, r)
			s.log.Errorf("%v", err)
			s.mon.CaptureException(err, map[string]string{"component": s.name})
		}
	}()
	s.job(context.WithoutCancel(ctx))
}

package metrics

import (
	"errors"

	"github.com/kilianp07/sitepulse/core/model"
)

// MultiSink fans records out to several sinks. Optional recorder interfaces
// are forwarded only to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTick forwards the tick to every sink and joins their errors.
func (m *MultiSink) RecordTick(ev TickEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordTick(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSamples forwards samples to sinks that mirror them.
func (m *MultiSink) RecordSamples(samples []model.TelemetrySample) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(SampleRecorder); ok {
			if err := rec.RecordSamples(samples); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordPrune forwards retention sweeps.
func (m *MultiSink) RecordPrune(ev PruneEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(PruneRecorder); ok {
			if err := rec.RecordPrune(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordHubStats forwards hub snapshots.
func (m *MultiSink) RecordHubStats(st HubStats) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(HubRecorder); ok {
			if err := rec.RecordHubStats(st); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

package metrics

import (
	"time"

	"github.com/kilianp07/sitepulse/core/model"
)

// Event is published on the pipeline event bus.
type Event interface {
	EventTime() time.Time
}

// TickEvent summarizes one generate, persist and broadcast pass.
type TickEvent struct {
	Time      time.Time
	Sites     int
	Samples   []model.TelemetrySample
	Written   int
	Delivered int
	Alerts    int
	Duration  time.Duration
	Err       error
}

func (e TickEvent) EventTime() time.Time { return e.Time }

// Outcome labels the tick for counters: "ok", "empty" or "error".
func (e TickEvent) Outcome() string {
	switch {
	case e.Err != nil:
		return "error"
	case e.Sites == 0:
		return "empty"
	default:
		return "ok"
	}
}

// PruneEvent summarizes one retention sweep.
type PruneEvent struct {
	Time    time.Time
	Cutoff  time.Time
	Deleted int
	Err     error
}

func (e PruneEvent) EventTime() time.Time { return e.Time }

// HubStats is a snapshot of the broadcast hub.
type HubStats struct {
	Connections   int
	Subscriptions int
	Sites         int
	Evicted       uint64
}

// MetricsSink records pipeline ticks.
type MetricsSink interface {
	RecordTick(ev TickEvent) error
}

// SampleRecorder mirrors persisted samples to an external time series store.
type SampleRecorder interface {
	RecordSamples(samples []model.TelemetrySample) error
}

// PruneRecorder records retention sweeps.
type PruneRecorder interface {
	RecordPrune(ev PruneEvent) error
}

// HubRecorder records broadcast hub snapshots.
type HubRecorder interface {
	RecordHubStats(st HubStats) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordTick(TickEvent) error                  { return nil }
func (NopSink) RecordSamples([]model.TelemetrySample) error { return nil }
func (NopSink) RecordPrune(PruneEvent) error                { return nil }
func (NopSink) RecordHubStats(HubStats) error               { return nil }

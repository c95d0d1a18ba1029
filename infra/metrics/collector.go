package metrics

import (
	"context"
	"time"

	coremetrics "github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/infra/logger"
	"github.com/kilianp07/sitepulse/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records pipeline
// events on sink. It stops when the context is canceled or the bus closes.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[coremetrics.Event], sink coremetrics.MetricsSink, log logger.Logger) {
	if bus == nil || sink == nil {
		return
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev coremetrics.Event) error {
	switch e := ev.(type) {
	case coremetrics.TickEvent:
		if err := sink.RecordTick(e); err != nil {
			return err
		}
		if r, ok := sink.(coremetrics.SampleRecorder); ok && e.Err == nil && e.Written > 0 {
			return r.RecordSamples(e.Samples)
		}
	case coremetrics.PruneEvent:
		if r, ok := sink.(coremetrics.PruneRecorder); ok {
			return r.RecordPrune(e)
		}
	}
	return nil
}

// HubStatsSource exposes hub snapshots.
type HubStatsSource interface {
	Stats() coremetrics.HubStats
}

// StartHubStatsRecorder snapshots src every interval while ctx is alive.
// It does nothing when sink cannot record hub stats.
func StartHubStatsRecorder(ctx context.Context, interval time.Duration, src HubStatsSource, sink coremetrics.MetricsSink) {
	r, ok := sink.(coremetrics.HubRecorder)
	if !ok || src == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = r.RecordHubStats(src.Stats())
			}
		}
	}()
}

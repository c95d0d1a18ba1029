package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/core/model"
	"github.com/kilianp07/sitepulse/internal/eventbus"
)

type recSink struct {
	mu      sync.Mutex
	ticks   []coremetrics.TickEvent
	samples int
	prunes  int
	hub     []coremetrics.HubStats
}

func (r *recSink) RecordTick(ev coremetrics.TickEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, ev)
	return nil
}

func (r *recSink) RecordSamples(s []model.TelemetrySample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples += len(s)
	return nil
}

func (r *recSink) RecordPrune(coremetrics.PruneEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prunes++
	return nil
}

func (r *recSink) RecordHubStats(st coremetrics.HubStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hub = append(r.hub, st)
	return nil
}

func (r *recSink) snapshot() (ticks, samples, prunes, hub int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks), r.samples, r.prunes, len(r.hub)
}

func TestStartEventCollector(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := eventbus.NewTypedWithBuffer[coremetrics.Event](16)
	sink := &recSink{}
	StartEventCollector(ctx, bus, sink, nil)
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	now := time.Now()
	bus.Publish(coremetrics.TickEvent{Time: now, Sites: 1, Written: 2, Samples: make([]model.TelemetrySample, 2)})
	bus.Publish(coremetrics.TickEvent{Time: now, Sites: 1, Err: assert.AnError, Samples: make([]model.TelemetrySample, 2)})
	bus.Publish(coremetrics.PruneEvent{Time: now, Deleted: 3})

	assert.Eventually(t, func() bool {
		ticks, samples, prunes, _ := sink.snapshot()
		return ticks == 2 && samples == 2 && prunes == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return bus.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStartEventCollector_StopsOnBusClose(t *testing.T) {
	bus := eventbus.NewTyped[coremetrics.Event]()
	sink := &recSink{}
	StartEventCollector(context.Background(), bus, sink, nil)
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	bus.Close()
	bus.Publish(coremetrics.TickEvent{Time: time.Now()})
	ticks, _, _, _ := sink.snapshot()
	assert.Zero(t, ticks)
}

type fixedStats coremetrics.HubStats

func (f fixedStats) Stats() coremetrics.HubStats { return coremetrics.HubStats(f) }

func TestStartHubStatsRecorder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recSink{}
	StartHubStatsRecorder(ctx, 5*time.Millisecond, fixedStats{Connections: 2}, sink)
	assert.Eventually(t, func() bool {
		_, _, _, hub := sink.snapshot()
		return hub >= 2
	}, time.Second, 5*time.Millisecond)
}

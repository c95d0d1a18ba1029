package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sitepulse/core/alerting"
	"github.com/kilianp07/sitepulse/core/hub"
	"github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/core/model"
	"github.com/kilianp07/sitepulse/core/monitoring"
	"github.com/kilianp07/sitepulse/core/synth"
	"github.com/kilianp07/sitepulse/internal/eventbus"
)

type memWriter struct {
	mu      sync.Mutex
	rows    []model.TelemetrySample
	failErr error
}

func (w *memWriter) WriteBatch(_ context.Context, s []model.TelemetrySample) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failErr != nil {
		return 0, w.failErr
	}
	w.rows = append(w.rows, s...)
	return len(s), nil
}

func (w *memWriter) PruneOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.rows[:0]
	n := 0
	for _, r := range w.rows {
		if r.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	w.rows = kept
	return n, nil
}

type staticSites []string

func (s staticSites) ListEligibleSites(context.Context) ([]string, error) { return s, nil }

type memAlerts struct{ got []model.Alert }

func (m *memAlerts) InsertAlerts(_ context.Context, a []model.Alert) error {
	m.got = append(m.got, a...)
	return nil
}

func newSynth(t *testing.T) *synth.Synthesizer {
	t.Helper()
	cat, err := synth.NewCatalog(map[string]map[model.MetricType]model.MetricPattern{
		"site-a": {model.MetricPVGeneration: {Baseline: 500, Diurnal: true}},
	})
	require.NoError(t, err)
	return synth.NewSeeded(cat, time.UTC, 7)
}

func TestTickEndToEnd(t *testing.T) {
	w := &memWriter{}
	h := hub.New(8, nil)
	c := h.Connect("c1")
	require.NoError(t, h.Subscribe("c1", "site-a"))
	<-c.Send() // welcome

	bus := eventbus.NewTyped[metrics.Event]()
	events := bus.Subscribe()

	p, err := New(Deps{
		Writer:    w,
		Registry:  staticSites{"site-a"},
		Generator: newSynth(t),
		Publisher: h,
		Bus:       bus,
	}, Options{})
	require.NoError(t, err)

	at := time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)
	ev, err := p.Tick(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Sites)
	assert.Equal(t, len(model.AllMetrics), ev.Written)
	assert.Equal(t, 1, ev.Delivered)

	want := 500 * math.Sin(7*math.Pi/12)
	var stored float64
	for _, r := range w.rows {
		if r.Metric == model.MetricPVGeneration {
			stored = r.Value
			assert.Equal(t, "kW", r.Unit)
			assert.True(t, r.Timestamp.Equal(at))
		}
	}
	assert.InDelta(t, want, stored, 1e-9)

	msg := <-c.Send()
	assert.Equal(t, hub.EventTelemetry, msg.Type)
	td := msg.Data.(hub.TelemetryData)
	assert.InDelta(t, want, td.Metrics[model.MetricPVGeneration], 1e-9)

	got := (<-events).(metrics.TickEvent)
	assert.Equal(t, "ok", got.Outcome())
}

func TestTickNoSitesIsNoop(t *testing.T) {
	w := &memWriter{}
	p, err := New(Deps{Writer: w, Registry: staticSites{}, Generator: newSynth(t), Publisher: hub.New(1, nil)}, Options{})
	require.NoError(t, err)
	ev, err := p.Tick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "empty", ev.Outcome())
	assert.Empty(t, w.rows)
}

func TestTickWriteFailureSkipsBroadcast(t *testing.T) {
	w := &memWriter{failErr: errors.New("disk full")}
	h := hub.New(8, nil)
	c := h.Connect("c1")
	require.NoError(t, h.Subscribe("c1", "site-a"))
	<-c.Send()
	mon := &monitoring.Recorder{}

	p, err := New(Deps{Writer: w, Registry: staticSites{"site-a"}, Generator: newSynth(t), Publisher: h, Monitor: mon}, Options{})
	require.NoError(t, err)
	ev, err := p.Tick(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, "error", ev.Outcome())
	assert.Zero(t, ev.Delivered)
	select {
	case m := <-c.Send():
		t.Fatalf("unexpected event %s", m.Type)
	default:
	}
	assert.Len(t, mon.Errors(), 1)
	_, known := h.Latest("site-a")
	assert.False(t, known)
}

func TestTickRaisesAlerts(t *testing.T) {
	cat, err := synth.NewCatalog(map[string]map[model.MetricType]model.MetricPattern{
		"site-a": {model.MetricSoC: {Baseline: 5}},
	})
	require.NoError(t, err)
	eng, err := alerting.NewEngine(nil)
	require.NoError(t, err)
	sink := &memAlerts{}
	h := hub.New(8, nil)
	c := h.Connect("c1")
	require.NoError(t, h.Subscribe("c1", "site-a"))
	<-c.Send()

	p, err := New(Deps{
		Writer:    &memWriter{},
		Registry:  staticSites{"site-a"},
		Generator: synth.NewSeeded(cat, nil, 1),
		Publisher: h,
		Alerts:    eng,
		AlertSink: sink,
	}, Options{Heartbeat: true})
	require.NoError(t, err)

	ev, err := p.Tick(context.Background(), time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, ev.Alerts)
	require.Len(t, sink.got, 1)
	assert.Equal(t, model.MetricSoC, sink.got[0].Metric)

	types := []hub.EventType{}
	for i := 0; i < 3; i++ {
		types = append(types, (<-c.Send()).Type)
	}
	assert.Equal(t, []hub.EventType{hub.EventTelemetry, hub.EventAlert, hub.EventHeartbeat}, types)
}

func TestHeartbeatMeanPV(t *testing.T) {
	cat, err := synth.NewCatalog(map[string]map[model.MetricType]model.MetricPattern{
		"a": {model.MetricPVGeneration: {Baseline: 100}},
		"b": {model.MetricPVGeneration: {Baseline: 300}},
	})
	require.NoError(t, err)
	h := hub.New(8, nil)
	c := h.Connect("watcher")

	p, err := New(Deps{Writer: &memWriter{}, Registry: staticSites{"a", "b"}, Generator: synth.NewSeeded(cat, nil, 1), Publisher: h}, Options{Heartbeat: true})
	require.NoError(t, err)
	_, err = p.Tick(context.Background(), time.Now())
	require.NoError(t, err)

	msg := <-c.Send()
	require.Equal(t, hub.EventHeartbeat, msg.Type)
	hb := msg.Data.(Heartbeat)
	assert.Equal(t, 2, hb.Sites)
	assert.InDelta(t, 200, hb.MeanPV, 1e-9)
}

func TestPruneBoundary(t *testing.T) {
	now := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)
	cutoff := now.Add(-DefaultRetention)
	w := &memWriter{rows: []model.TelemetrySample{
		{SiteID: "s", Timestamp: cutoff.Add(-time.Nanosecond)},
		{SiteID: "s", Timestamp: cutoff},
		{SiteID: "s", Timestamp: now},
	}}
	bus := eventbus.NewTyped[metrics.Event]()
	events := bus.Subscribe()
	p, err := New(Deps{Writer: w, Registry: staticSites{}, Generator: newSynth(t), Publisher: hub.New(1, nil), Bus: bus}, Options{})
	require.NoError(t, err)

	n, err := p.Prune(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, w.rows, 2)
	pe := (<-events).(metrics.PruneEvent)
	assert.True(t, pe.Cutoff.Equal(cutoff))
}

func TestPruneKeepingOverridesRetention(t *testing.T) {
	now := time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)
	w := &memWriter{rows: []model.TelemetrySample{
		{SiteID: "s", Timestamp: now.Add(-3 * time.Hour)},
		{SiteID: "s", Timestamp: now.Add(-time.Hour)},
	}}
	p, err := New(Deps{Writer: w, Registry: staticSites{}, Generator: newSynth(t), Publisher: hub.New(1, nil)}, Options{})
	require.NoError(t, err)

	n, err := p.PruneKeeping(context.Background(), now, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, w.rows, 1)
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
	p, err := New(Deps{Writer: &memWriter{}, Registry: staticSites{}, Generator: newSynth(t), Publisher: hub.New(1, nil)}, Options{Retention: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, p.Retention())
}

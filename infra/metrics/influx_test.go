package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/core/model"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.bodies = append(b.bodies, string(data))
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *bodyRecorder) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, body := range b.bodies {
		for _, l := range strings.Split(body, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				out = append(out, l)
			}
		}
	}
	return out
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordSamples(t *testing.T) {
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	asset := "inv-1"
	samples := []model.TelemetrySample{
		{SiteID: "s1", Timestamp: now, Metric: model.MetricPVGeneration, Value: 482.96, Unit: "kW"},
		{SiteID: "s1", AssetID: &asset, Timestamp: now, Metric: model.MetricSoC, Value: 55.12345, Unit: "%"},
	}
	require.NoError(t, sink.RecordSamples(samples))

	want := []string{
		line(write.NewPointWithMeasurement("site_telemetry").
			AddTag("site_id", "s1").
			AddTag("metric_type", "pv_generation").
			AddTag("unit", "kW").
			AddField("value", 482.96).
			SetTime(now)),
		line(write.NewPointWithMeasurement("site_telemetry").
			AddTag("site_id", "s1").
			AddTag("metric_type", "soc").
			AddTag("unit", "%").
			AddTag("asset_id", "inv-1").
			AddField("value", 55.123).
			SetTime(now)),
	}
	assert.Equal(t, want, rec.lines())
}

func TestInfluxSink_RecordSamplesEmpty(t *testing.T) {
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	require.NoError(t, sink.RecordSamples(nil))
	assert.Empty(t, rec.lines())
}

func TestInfluxSink_RecordTickAndPrune(t *testing.T) {
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := coremetrics.TickEvent{Time: now, Sites: 2, Written: 16, Delivered: 3, Alerts: 1, Duration: 1500 * time.Microsecond}
	require.NoError(t, sink.RecordTick(tick))
	prune := coremetrics.PruneEvent{Time: now, Cutoff: now.Add(-48 * time.Hour), Deleted: 7}
	require.NoError(t, sink.RecordPrune(prune))

	want := []string{
		line(write.NewPointWithMeasurement("pipeline_tick").
			AddTag("outcome", "ok").
			AddTag("component", "pipeline").
			AddField("sites", 2).
			AddField("written", 16).
			AddField("delivered", 3).
			AddField("alerts", 1).
			AddField("duration_ms", 1.5).
			SetTime(now)),
		line(write.NewPointWithMeasurement("retention_prune").
			AddTag("component", "retention").
			AddField("deleted", 7).
			AddField("cutoff_unix", now.Add(-48*time.Hour).Unix()).
			SetTime(now)),
	}
	assert.Equal(t, want, rec.lines())
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 1.235, round3(1.23456))
	assert.Equal(t, -0.5, round3(-0.5))
}

package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/core/model"
	"github.com/kilianp07/sitepulse/infra/logger"
)

// InfluxSink mirrors persisted telemetry and pipeline events to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordTick writes a pipeline_tick point.
func (s *InfluxSink) RecordTick(ev coremetrics.TickEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("pipeline_tick").
		AddTag("outcome", ev.Outcome()).
		AddTag("component", "pipeline").
		AddField("sites", ev.Sites).
		AddField("written", ev.Written).
		AddField("delivered", ev.Delivered).
		AddField("alerts", ev.Alerts).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSamples writes one site_telemetry point per sample in a single request.
func (s *InfluxSink) RecordSamples(samples []model.TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(samples))
	for _, smp := range samples {
		p := write.NewPointWithMeasurement("site_telemetry").
			AddTag("site_id", smp.SiteID).
			AddTag("metric_type", smp.Metric.String())
		if smp.Unit != "" {
			p = p.AddTag("unit", smp.Unit)
		}
		if smp.AssetID != nil {
			p = p.AddTag("asset_id", *smp.AssetID)
		}
		points = append(points, p.AddField("value", round3(smp.Value)).SetTime(smp.Timestamp))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordPrune writes a retention_prune point.
func (s *InfluxSink) RecordPrune(ev coremetrics.PruneEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("retention_prune").
		AddTag("component", "retention").
		AddField("deleted", ev.Deleted).
		AddField("cutoff_unix", ev.Cutoff.Unix())
	if ev.Err != nil {
		p = p.AddField("errors", ev.Err.Error())
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

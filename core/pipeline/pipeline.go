package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/sitepulse/core/hub"
	"github.com/kilianp07/sitepulse/core/logger"
	"github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/core/model"
	"github.com/kilianp07/sitepulse/core/monitoring"
	"github.com/kilianp07/sitepulse/core/scheduler"
	"github.com/kilianp07/sitepulse/internal/eventbus"
)

// DefaultRetention is how long samples are kept when none is configured.
const DefaultRetention = 48 * time.Hour

// SampleWriter persists samples atomically and prunes old ones.
type SampleWriter interface {
	WriteBatch(ctx context.Context, samples []model.TelemetrySample) (int, error)
	// PruneOlderThan deletes samples with timestamp strictly before cutoff.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// SiteRegistry lists the sites that receive synthetic telemetry.
type SiteRegistry interface {
	ListEligibleSites(ctx context.Context) ([]string, error)
}

// Generator produces one sample per metric for a site.
type Generator interface {
	Sample(siteID string, at time.Time, running bool) []model.TelemetrySample
}

// Publisher is the subset of the hub used by a tick.
type Publisher interface {
	PublishTelemetry(siteID string, at time.Time, metrics model.MetricVector) int
	Publish(siteID string, ev hub.Event) int
	Broadcast(ev hub.Event) int
	Stats() metrics.HubStats
}

// AlertEvaluator turns samples into alerts.
type AlertEvaluator interface {
	Evaluate(samples []model.TelemetrySample) []model.Alert
}

// AlertSink persists raised alerts.
type AlertSink interface {
	InsertAlerts(ctx context.Context, alerts []model.Alert) error
}

// Heartbeat is the payload of the metrics_heartbeat broadcast.
type Heartbeat struct {
	Sites       int     `json:"sites"`
	Samples     int     `json:"samples"`
	MeanPV      float64 `json:"meanPvGeneration"`
	Subscribers int     `json:"subscribers"`
}

// Deps groups the collaborators of a Pipeline. Writer, Registry, Generator
// and Publisher are required.
type Deps struct {
	Writer    SampleWriter
	Registry  SiteRegistry
	Generator Generator
	Publisher Publisher
	Alerts    AlertEvaluator
	AlertSink AlertSink
	Bus       *eventbus.TypedBus[metrics.Event]
	Log       logger.Logger
	Monitor   monitoring.Monitor
	// Running reports whether trends apply to generated values.
	Running func() bool
	Now     func() time.Time
}

// Options tunes a Pipeline.
type Options struct {
	Retention time.Duration
	Heartbeat bool
}

// Pipeline owns the tick and prune passes.
type Pipeline struct {
	d    Deps
	opts Options

	// mu serializes passes triggered by schedulers, the API and the CLI.
	mu sync.Mutex
}

// New validates deps and fills defaults.
func New(d Deps, opts Options) (*Pipeline, error) {
	switch {
	case d.Writer == nil:
		return nil, errors.New("pipeline: sample writer required")
	case d.Registry == nil:
		return nil, errors.New("pipeline: site registry required")
	case d.Generator == nil:
		return nil, errors.New("pipeline: generator required")
	case d.Publisher == nil:
		return nil, errors.New("pipeline: publisher required")
	}
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	if d.Monitor == nil {
		d.Monitor = monitoring.NopMonitor{}
	}
	if d.Running == nil {
		d.Running = func() bool { return false }
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Pipeline{d: d, opts: opts}, nil
}

// Retention returns the configured retention window.
func (p *Pipeline) Retention() time.Duration { return p.opts.Retention }

// Tick generates, persists and publishes one sample per metric for every
// eligible site. A persistence failure skips publishing for the whole tick.
func (p *Pipeline) Tick(ctx context.Context, at time.Time) (ev metrics.TickEvent, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.d.Now()
	ev.Time = at
	defer func() {
		ev.Duration = p.d.Now().Sub(start)
		if p.d.Bus != nil {
			p.d.Bus.Publish(ev)
		}
	}()

	sites, err := p.d.Registry.ListEligibleSites(ctx)
	if err != nil {
		ev.Err = fmt.Errorf("list sites: %w", err)
		p.fail(ev.Err, "registry")
		return ev, ev.Err
	}
	if len(sites) == 0 {
		p.d.Log.Debugf("no online sites, skipping tick")
		return ev, nil
	}
	ev.Sites = len(sites)

	running := p.d.Running()
	bySite := make(map[string][]model.TelemetrySample, len(sites))
	all := make([]model.TelemetrySample, 0, len(sites)*len(model.AllMetrics))
	for _, id := range sites {
		s := p.d.Generator.Sample(id, at, running)
		bySite[id] = s
		all = append(all, s...)
	}
	ev.Samples = all

	n, err := p.d.Writer.WriteBatch(ctx, all)
	if err != nil {
		ev.Err = fmt.Errorf("write batch: %w", err)
		p.fail(ev.Err, "persistence")
		return ev, ev.Err
	}
	ev.Written = n

	for _, id := range sites {
		ev.Delivered += p.d.Publisher.PublishTelemetry(id, at, model.Vector(bySite[id]))
	}
	ev.Alerts = p.raiseAlerts(ctx, all)
	if p.opts.Heartbeat {
		p.heartbeat(at, all, len(sites))
	}
	p.d.Log.Debugw("tick complete", map[string]any{
		"sites":     ev.Sites,
		"written":   ev.Written,
		"delivered": ev.Delivered,
		"alerts":    ev.Alerts,
	})
	return ev, nil
}

func (p *Pipeline) raiseAlerts(ctx context.Context, samples []model.TelemetrySample) int {
	if p.d.Alerts == nil {
		return 0
	}
	alerts := p.d.Alerts.Evaluate(samples)
	if len(alerts) == 0 {
		return 0
	}
	if p.d.AlertSink != nil {
		if err := p.d.AlertSink.InsertAlerts(ctx, alerts); err != nil {
			p.fail(fmt.Errorf("insert alerts: %w", err), "alerting")
			return 0
		}
	}
	for _, a := range alerts {
		p.d.Publisher.Publish(a.SiteID, hub.Event{Type: hub.EventAlert, SiteID: a.SiteID, Timestamp: a.CreatedAt, Data: a})
	}
	return len(alerts)
}

func (p *Pipeline) heartbeat(at time.Time, samples []model.TelemetrySample, sites int) {
	var pv []float64
	for _, s := range samples {
		if s.Metric == model.MetricPVGeneration {
			pv = append(pv, s.Value)
		}
	}
	hb := Heartbeat{Sites: sites, Samples: len(samples), Subscribers: p.d.Publisher.Stats().Subscriptions}
	if len(pv) > 0 {
		hb.MeanPV = stat.Mean(pv, nil)
	}
	p.d.Publisher.Broadcast(hub.Event{Type: hub.EventHeartbeat, Timestamp: at.UTC(), Data: hb})
}

// Prune deletes samples older than now minus the retention window.
func (p *Pipeline) Prune(ctx context.Context, now time.Time) (int, error) {
	return p.PruneKeeping(ctx, now, p.opts.Retention)
}

// PruneKeeping deletes samples older than now minus keep.
func (p *Pipeline) PruneKeeping(ctx context.Context, now time.Time, keep time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := now.Add(-keep)
	n, err := p.d.Writer.PruneOlderThan(ctx, cutoff)
	ev := metrics.PruneEvent{Time: now, Cutoff: cutoff, Deleted: n}
	if err != nil {
		ev.Err = fmt.Errorf("prune: %w", err)
		p.fail(ev.Err, "retention")
	} else if n > 0 {
		p.d.Log.Infof("pruned %d samples older than %s", n, cutoff.UTC().Format(time.RFC3339))
	}
	if p.d.Bus != nil {
		p.d.Bus.Publish(ev)
	}
	return n, ev.Err
}

// TickJob adapts Tick to a scheduler job using the pipeline clock.
func (p *Pipeline) TickJob() scheduler.Job {
	return func(ctx context.Context) { _, _ = p.Tick(ctx, p.d.Now()) }
}

// PruneJob adapts Prune to a scheduler job.
func (p *Pipeline) PruneJob() scheduler.Job {
	return func(ctx context.Context) { _, _ = p.Prune(ctx, p.d.Now()) }
}

func (p *Pipeline) fail(err error, component string) {
	p.d.Log.Errorf("%v", err)
	p.d.Monitor.CaptureException(err, map[string]string{"component": component})
}

package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/sitepulse/core/metrics"
)

// PromSink records pipeline activity in Prometheus metrics.
type PromSink struct {
	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	samples       *prometheus.CounterVec
	delivered     prometheus.Counter
	alerts        prometheus.Counter
	prunes        *prometheus.CounterVec
	pruned        prometheus.Counter
	connections   prometheus.Gauge
	subscriptions prometheus.Gauge
	sites         prometheus.Gauge
	evicted       prometheus.Gauge
}

// NewPromSink registers pipeline metrics on the default Prometheus registerer.
// The Prometheus server is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register adds c to reg, reusing an already registered collector of the
// same description.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.ticks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_ticks_total",
		Help: "Generation passes by outcome",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.tickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sitepulse_tick_duration_seconds",
		Help:    "Duration of a generate, persist and publish pass",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if s.samples, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_samples_written_total",
		Help: "Persisted telemetry samples by metric type",
	}, []string{"metric_type"})); err != nil {
		return nil, err
	}
	if s.delivered, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_telemetry_delivered_total",
		Help: "telemetry_update events accepted by subscriber queues",
	})); err != nil {
		return nil, err
	}
	if s.alerts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_alerts_raised_total",
		Help: "Threshold alerts raised",
	})); err != nil {
		return nil, err
	}
	if s.prunes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_prunes_total",
		Help: "Retention sweeps by outcome",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.pruned, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_samples_pruned_total",
		Help: "Samples deleted by the retention sweep",
	})); err != nil {
		return nil, err
	}
	if s.connections, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitepulse_hub_connections",
		Help: "Open dashboard connections",
	})); err != nil {
		return nil, err
	}
	if s.subscriptions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitepulse_hub_subscriptions",
		Help: "Connections subscribed to a site",
	})); err != nil {
		return nil, err
	}
	if s.sites, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitepulse_hub_sites",
		Help: "Sites with at least one subscriber",
	})); err != nil {
		return nil, err
	}
	if s.evicted, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitepulse_hub_evicted_connections",
		Help: "Connections evicted for a full send queue since start",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordTick counts the pass and its persisted samples.
func (s *PromSink) RecordTick(ev coremetrics.TickEvent) error {
	s.ticks.WithLabelValues(ev.Outcome()).Inc()
	s.tickDuration.Observe(ev.Duration.Seconds())
	if ev.Err != nil {
		return nil
	}
	if ev.Written > 0 {
		for _, smp := range ev.Samples {
			s.samples.WithLabelValues(smp.Metric.String()).Inc()
		}
	}
	s.delivered.Add(float64(ev.Delivered))
	s.alerts.Add(float64(ev.Alerts))
	return nil
}

// RecordPrune counts the sweep and deleted rows.
func (s *PromSink) RecordPrune(ev coremetrics.PruneEvent) error {
	outcome := "ok"
	if ev.Err != nil {
		outcome = "error"
	}
	s.prunes.WithLabelValues(outcome).Inc()
	s.pruned.Add(float64(ev.Deleted))
	return nil
}

// RecordHubStats sets the hub gauges.
func (s *PromSink) RecordHubStats(st coremetrics.HubStats) error {
	s.connections.Set(float64(st.Connections))
	s.subscriptions.Set(float64(st.Subscriptions))
	s.sites.Set(float64(st.Sites))
	s.evicted.Set(float64(st.Evicted))
	return nil
}

package metrics

import "github.com/kilianp07/sitepulse/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr enables the /metrics HTTP server when set.
	PrometheusAddr string `json:"prometheus_addr"`
	// HubStatsIntervalSeconds controls how often hub snapshots are recorded.
	HubStatsIntervalSeconds int `json:"hub_stats_interval_seconds"`
}

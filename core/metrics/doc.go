// Package metrics defines the observability events of the telemetry
// pipeline and the sink interfaces recording them. Sinks such as the
// Prometheus and InfluxDB implementations in infra/metrics are selected by
// name through the factory registry and combined with NewMultiSink when more
// than one is configured.
package metrics

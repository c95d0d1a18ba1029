// Package synth produces plausible telemetry values for energy sites.
//
// Values follow a per-site MetricPattern shaped by the hour of day: solar
// generation follows the daylight curve, other diurnal metrics follow a
// smoother load curve, and everything else stays flat around its baseline.
// All randomness is drawn from an injected source so runs are reproducible.
package synth

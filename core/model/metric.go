package model

import "fmt"

// MetricType identifies one of the fixed telemetry channels produced per site.
type MetricType int

const (
	MetricPVGeneration MetricType = iota
	MetricNetLoad
	MetricBatteryDischarge
	MetricGridDraw
	MetricSoC
	MetricVoltage
	MetricCurrent
	MetricFrequency
)

// AllMetrics lists every metric type in emission order.
var AllMetrics = []MetricType{
	MetricPVGeneration,
	MetricNetLoad,
	MetricBatteryDischarge,
	MetricGridDraw,
	MetricSoC,
	MetricVoltage,
	MetricCurrent,
	MetricFrequency,
}

var metricNames = [...]string{
	"pv_generation",
	"net_load",
	"battery_discharge",
	"grid_draw",
	"soc",
	"voltage",
	"current",
	"frequency",
}

var metricUnits = [...]string{"kW", "kW", "kW", "kW", "%", "V", "A", "Hz"}

// String returns the wire name of the metric type.
func (m MetricType) String() string {
	if m < 0 || int(m) >= len(metricNames) {
		return "unknown"
	}
	return metricNames[m]
}

// Unit returns the measurement unit attached to samples of this type.
func (m MetricType) Unit() string {
	if m < 0 || int(m) >= len(metricUnits) {
		return ""
	}
	return metricUnits[m]
}

// SolarLike reports whether the metric follows the daylight curve.
func (m MetricType) SolarLike() bool { return m == MetricPVGeneration }

// ParseMetricType converts a wire name into a MetricType.
func ParseMetricType(s string) (MetricType, error) {
	for i, n := range metricNames {
		if n == s {
			return MetricType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown metric type %q", s)
}

func (m MetricType) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(metricNames) {
		return nil, fmt.Errorf("invalid metric type %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *MetricType) UnmarshalText(b []byte) error {
	v, err := ParseMetricType(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MetricPattern describes how values of one metric are synthesized for a site.
type MetricPattern struct {
	Baseline float64 `json:"baseline" yaml:"baseline"`
	Variance float64 `json:"variance" yaml:"variance"`
	Trend    float64 `json:"trend" yaml:"trend"`
	Diurnal  bool    `json:"diurnal" yaml:"diurnal"`
}

// Validate checks the pattern invariants.
func (p MetricPattern) Validate() error {
	if p.Variance < 0 {
		return fmt.Errorf("variance must be >= 0, got %v", p.Variance)
	}
	return nil
}

// DefaultPatterns holds the fallback pattern for every metric type.
var DefaultPatterns = map[MetricType]MetricPattern{
	MetricPVGeneration:     {Baseline: 250, Variance: 25, Diurnal: true},
	MetricNetLoad:          {Baseline: 180, Variance: 20, Diurnal: true},
	MetricBatteryDischarge: {Baseline: 40, Variance: 10},
	MetricGridDraw:         {Baseline: 90, Variance: 15, Diurnal: true},
	MetricSoC:              {Baseline: 65, Variance: 5},
	MetricVoltage:          {Baseline: 230, Variance: 3},
	MetricCurrent:          {Baseline: 40, Variance: 5},
	MetricFrequency:        {Baseline: 50, Variance: 0.05},
}

// MetricVector is the per-tick set of values for one site keyed by metric.
type MetricVector map[MetricType]float64

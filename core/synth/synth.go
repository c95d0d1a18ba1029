package synth

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/sitepulse/core/model"
)

// TimeMultiplier scales a pattern baseline for the given hour of day (0-24).
func TimeMultiplier(metric model.MetricType, p model.MetricPattern, hour float64) float64 {
	if !p.Diurnal {
		return 1
	}
	if metric.SolarLike() {
		return math.Max(0, math.Sin((hour-6)*math.Pi/12))
	}
	return 0.5 + 0.5*math.Sin((hour-12)*math.Pi/12)
}

// Generate computes one value for metric. src must not be nil.
func Generate(metric model.MetricType, p model.MetricPattern, hour float64, running bool, src rand.Source) float64 {
	v := p.Baseline * TimeMultiplier(metric, p, hour)
	if p.Variance > 0 {
		v += distuv.Uniform{Min: -p.Variance, Max: p.Variance, Src: src}.Rand()
	}
	if running {
		v += p.Trend
	}
	return clamp(metric, v)
}

func clamp(metric model.MetricType, v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	if metric == model.MetricSoC && v > 100 {
		v = 100
	}
	return v
}

// HourOfDay returns the fractional hour of t in its own location.
func HourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// Synthesizer builds full metric vectors for sites from a pattern catalog.
type Synthesizer struct {
	catalog *Catalog
	loc     *time.Location

	mu  sync.Mutex
	src rand.Source
}

// New creates a Synthesizer. A nil location means UTC and a nil source is
// replaced by a time-seeded PCG.
func New(catalog *Catalog, loc *time.Location, src rand.Source) *Synthesizer {
	if loc == nil {
		loc = time.UTC
	}
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1)
	}
	return &Synthesizer{catalog: catalog, loc: loc, src: src}
}

// NewSeeded returns a Synthesizer whose output only depends on seed.
func NewSeeded(catalog *Catalog, loc *time.Location, seed uint64) *Synthesizer {
	return New(catalog, loc, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sample produces one sample per metric type for siteID at the given time.
func (s *Synthesizer) Sample(siteID string, at time.Time, running bool) []model.TelemetrySample {
	hour := HourOfDay(at.In(s.loc))
	ts := at.UTC()
	out := make([]model.TelemetrySample, 0, len(model.AllMetrics))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range model.AllMetrics {
		p := s.catalog.Lookup(siteID, m)
		out = append(out, model.TelemetrySample{
			SiteID:    siteID,
			Timestamp: ts,
			Metric:    m,
			Value:     Generate(m, p, hour, running, s.src),
			Unit:      m.Unit(),
		})
	}
	return out
}

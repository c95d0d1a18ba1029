package model

import "time"

// TelemetrySample is one synthesized reading. Samples are never updated,
// only deleted by the retention sweep.
type TelemetrySample struct {
	SiteID    string     `json:"site_id"`
	AssetID   *string    `json:"asset_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Metric    MetricType `json:"metric_type"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
}

// Vector collapses samples of a single site into a metric vector.
func Vector(samples []TelemetrySample) MetricVector {
	v := make(MetricVector, len(samples))
	for _, s := range samples {
		v[s.Metric] = s.Value
	}
	return v
}

// SiteStatus is the operating state of a site as owned by the CRUD layer.
type SiteStatus string

const (
	SiteOnline      SiteStatus = "online"
	SiteOffline     SiteStatus = "offline"
	SiteMaintenance SiteStatus = "maintenance"
)

// Valid reports whether s is a known status.
func (s SiteStatus) Valid() bool {
	switch s {
	case SiteOnline, SiteOffline, SiteMaintenance:
		return true
	}
	return false
}

// Site is the subset of site data the pipeline reads.
type Site struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Status SiteStatus `json:"status"`
}

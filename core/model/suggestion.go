package model

import (
	"encoding/json"
	"time"
)

// SuggestionStatus tracks an optimization suggestion through its lifecycle.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s SuggestionStatus) Terminal() bool {
	return s == SuggestionAccepted || s == SuggestionRejected
}

// Suggestion is an optimization recommendation produced outside the service.
type Suggestion struct {
	ID         string           `json:"id"`
	SiteID     string           `json:"site_id"`
	Status     SuggestionStatus `json:"status"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ActionedAt *time.Time       `json:"actioned_at,omitempty"`
}

// AlertSeverity grades alerts raised from telemetry thresholds.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is either active or acknowledged.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
)

// Alert is raised when a fresh sample crosses a threshold.
type Alert struct {
	ID        string        `json:"id"`
	SiteID    string        `json:"site_id"`
	Metric    MetricType    `json:"metric_type"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Status    AlertStatus   `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

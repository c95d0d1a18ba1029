package hub

import (
	"time"

	"github.com/kilianp07/sitepulse/core/model"
)

// EventType names an outbound event.
type EventType string

const (
	EventWelcome          EventType = "welcome"
	EventTelemetry        EventType = "telemetry_update"
	EventAlert            EventType = "alert"
	EventSuggestion       EventType = "rl_suggestion"
	EventSuggestionUpdate EventType = "suggestion_update"
	EventHeartbeat        EventType = "metrics_heartbeat"
	EventError            EventType = "error"
)

// Event is the envelope written to clients.
type Event struct {
	Type      EventType `json:"type"`
	SiteID    string    `json:"siteId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// TelemetryData is the payload of a telemetry_update event.
type TelemetryData struct {
	SiteID    string             `json:"siteId"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   model.MetricVector `json:"metrics"`
}

// WelcomeData is sent to a connection right after it subscribes.
type WelcomeData struct {
	Message string             `json:"message"`
	Metrics model.MetricVector `json:"metrics,omitempty"`
}

// ErrorData carries a client-facing error message.
type ErrorData struct {
	Message string `json:"message"`
}

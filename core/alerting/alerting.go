// Package alerting raises alerts when fresh samples leave their safe range.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/sitepulse/core/model"
)

// ErrNotFound is returned when acknowledging an alert that does not exist.
var ErrNotFound = errors.New("alert not found")

// Store persists alerts.
type Store interface {
	InsertAlerts(ctx context.Context, alerts []model.Alert) error
	// AcknowledgeAlert is a no-op for an already acknowledged alert and
	// returns ErrNotFound for an unknown one.
	AcknowledgeAlert(ctx context.Context, siteID, id string) error
	ListAlerts(ctx context.Context, siteID string, status model.AlertStatus) ([]model.Alert, error)
}

// Rule bounds one metric. A nil bound is open.
type Rule struct {
	Metric   model.MetricType    `json:"metric" yaml:"metric"`
	Min      *float64            `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64            `json:"max,omitempty" yaml:"max,omitempty"`
	Severity model.AlertSeverity `json:"severity" yaml:"severity"`
}

func bound(v float64) *float64 { return &v }

// DefaultRules covers battery reserve and grid quality.
func DefaultRules() []Rule {
	return []Rule{
		{Metric: model.MetricSoC, Min: bound(15), Severity: model.SeverityWarning},
		{Metric: model.MetricVoltage, Min: bound(207), Max: bound(253), Severity: model.SeverityCritical},
		{Metric: model.MetricFrequency, Min: bound(49.5), Max: bound(50.5), Severity: model.SeverityCritical},
	}
}

// Validate checks the rule bounds and severity.
func (r Rule) Validate() error {
	if r.Min == nil && r.Max == nil {
		return fmt.Errorf("rule %s: at least one bound required", r.Metric)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("rule %s: min %.2f above max %.2f", r.Metric, *r.Min, *r.Max)
	}
	switch r.Severity {
	case model.SeverityWarning, model.SeverityCritical:
	default:
		return fmt.Errorf("rule %s: unknown severity %q", r.Metric, r.Severity)
	}
	return nil
}

// check returns a message when v violates the rule.
func (r Rule) check(v float64) (string, bool) {
	if r.Min != nil && v < *r.Min {
		return fmt.Sprintf("%s %.2f%s below %.2f%s", r.Metric, v, r.Metric.Unit(), *r.Min, r.Metric.Unit()), true
	}
	if r.Max != nil && v > *r.Max {
		return fmt.Sprintf("%s %.2f%s above %.2f%s", r.Metric, v, r.Metric.Unit(), *r.Max, r.Metric.Unit()), true
	}
	return "", false
}

// Engine evaluates rules against samples.
type Engine struct {
	rules map[model.MetricType][]Rule
	newID func() string
}

// NewEngine validates rules and builds an Engine. Nil rules means DefaultRules.
func NewEngine(rules []Rule) (*Engine, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	e := &Engine{rules: make(map[model.MetricType][]Rule), newID: uuid.NewString}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		e.rules[r.Metric] = append(e.rules[r.Metric], r)
	}
	return e, nil
}

// Evaluate returns one active alert per violated rule.
func (e *Engine) Evaluate(samples []model.TelemetrySample) []model.Alert {
	var out []model.Alert
	for _, s := range samples {
		for _, r := range e.rules[s.Metric] {
			msg, bad := r.check(s.Value)
			if !bad {
				continue
			}
			out = append(out, model.Alert{
				ID:        e.newID(),
				SiteID:    s.SiteID,
				Metric:    s.Metric,
				Severity:  r.Severity,
				Message:   msg,
				Value:     s.Value,
				Status:    model.AlertActive,
				CreatedAt: s.Timestamp.UTC().Truncate(time.Millisecond),
			})
		}
	}
	return out
}

package config

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// SimulatorConfig controls the generation loop.
type SimulatorConfig struct {
	// IntervalMS is the tick period in milliseconds.
	IntervalMS int `json:"interval_ms"`
	// TimeZone names the location used to compute the hour of day.
	TimeZone string `json:"time_zone"`
	// PatternsFile points at a YAML or JSON pattern catalog.
	PatternsFile string `json:"patterns_file"`
	// Seed fixes the noise source. Zero seeds from the clock.
	Seed uint64 `json:"seed"`
	// AutoStart starts the loop when the service boots.
	AutoStart bool `json:"auto_start"`
	// Heartbeat broadcasts a metrics_heartbeat to every connection each tick.
	Heartbeat bool `json:"heartbeat"`
}

// SetDefaults applies fallback values for optional fields.
func (c *SimulatorConfig) SetDefaults() {
	if c.IntervalMS <= 0 {
		c.IntervalMS = 5000
	}
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}
}

// Validate checks the time zone and interval.
func (c SimulatorConfig) Validate() error {
	if c.IntervalMS < 10 {
		return fmt.Errorf("simulator: interval_ms must be >= 10, got %d", c.IntervalMS)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("simulator: time_zone: %w", err)
	}
	return nil
}

// Interval returns the tick period.
func (c SimulatorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Location resolves the configured time zone.
func (c SimulatorConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

// RetentionConfig bounds how long raw samples are kept.
type RetentionConfig struct {
	Hours           int `json:"hours"`
	IntervalMinutes int `json:"interval_minutes"`
}

// SetDefaults keeps 48 hours and sweeps hourly.
func (c *RetentionConfig) SetDefaults() {
	if c.Hours <= 0 {
		c.Hours = 48
	}
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = 60
	}
}

// Window is the retention duration.
func (c RetentionConfig) Window() time.Duration { return time.Duration(c.Hours) * time.Hour }

// Interval is the sweep period.
func (c RetentionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

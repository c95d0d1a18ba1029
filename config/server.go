package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/sitepulse/core/alerting"
	"github.com/kilianp07/sitepulse/core/model"
)

// HTTPConfig configures the REST and websocket listener.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Mode is the gin mode: "release", "debug" or "test".
	Mode string `json:"mode"`
	// QueueSize bounds each websocket connection's send queue.
	QueueSize int `json:"queue_size"`
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string `json:"allowed_origins"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Mode == "" {
		c.Mode = "release"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

func (c HTTPConfig) Validate() error {
	switch c.Mode {
	case "release", "debug", "test":
		return nil
	}
	return fmt.Errorf("http: unknown mode %q", c.Mode)
}

// SuggestionConfig configures the suggestion lifecycle.
type SuggestionConfig struct {
	// Cooldown drops proposals for a site after an operator accepted or rejected one.
	// Zero selects the default of five minutes; a negative value disables it.
	Cooldown time.Duration `json:"cooldown"`
}

func (c *SuggestionConfig) SetDefaults() {
	if c.Cooldown == 0 {
		c.Cooldown = 5 * time.Minute
	}
}

// AlertConfig holds threshold rules. No rules means the built-in set.
type AlertConfig struct {
	Rules []alerting.Rule `json:"rules"`
}

func (c AlertConfig) Validate() error {
	for i, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("alerts: rule %d: %w", i, err)
		}
	}
	return nil
}

// SiteConfig seeds the site table on startup.
type SiteConfig struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Status model.SiteStatus `json:"status"`
}

// Site converts the entry to a model.Site, defaulting to online.
func (c SiteConfig) Site() model.Site {
	st := c.Status
	if st == "" {
		st = model.SiteOnline
	}
	name := c.Name
	if name == "" {
		name = c.ID
	}
	return model.Site{ID: c.ID, Name: name, Status: st}
}

func validateSites(sites []SiteConfig) error {
	seen := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		if s.ID == "" {
			return fmt.Errorf("sites: id is required")
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sites: duplicate id %s", s.ID)
		}
		seen[s.ID] = struct{}{}
		if !s.Site().Status.Valid() {
			return fmt.Errorf("sites: %s: unknown status %q", s.ID, s.Status)
		}
	}
	return nil
}

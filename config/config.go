package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/sitepulse/core/factory"
	"github.com/kilianp07/sitepulse/core/metrics"
	"github.com/kilianp07/sitepulse/infra/mqtt"
)

type Config struct {
	Simulator   SimulatorConfig      `json:"simulator"`
	Retention   RetentionConfig      `json:"retention"`
	Storage     factory.ModuleConfig `json:"storage"`
	HTTP        HTTPConfig           `json:"http"`
	MQTT        mqtt.Config          `json:"mqtt"`
	Metrics     metrics.Config       `json:"metrics"`
	Logging     LoggingConfig        `json:"logging"`
	Sentry      SentryConfig         `json:"sentry"`
	Suggestions SuggestionConfig     `json:"suggestions"`
	Alerts      AlertConfig          `json:"alerts"`
	Sites       []SiteConfig         `json:"sites"`
}

// Load reads the file at path, applies K_ environment overrides and
// defaults, then validates every section. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// K_HTTP__ADDR overrides http.addr.
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Simulator.SetDefaults()
	c.Retention.SetDefaults()
	c.HTTP.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	c.Suggestions.SetDefaults()
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Metrics.HubStatsIntervalSeconds <= 0 {
		c.Metrics.HubStatsIntervalSeconds = 15
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Simulator.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Alerts.Validate(); err != nil {
		return err
	}
	return validateSites(c.Sites)
}

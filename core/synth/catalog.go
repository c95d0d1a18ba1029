package synth

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/sitepulse/core/model"
)

// Catalog maps sites to their metric patterns. It is immutable once built.
type Catalog struct {
	defaults map[model.MetricType]model.MetricPattern
	sites    map[string]map[model.MetricType]model.MetricPattern
}

// CatalogFile is the on-disk layout of a pattern catalog. Keys of the inner
// maps are metric wire names such as "pv_generation".
type CatalogFile struct {
	Defaults map[string]model.MetricPattern            `json:"defaults" yaml:"defaults"`
	Sites    map[string]map[string]model.MetricPattern `json:"sites" yaml:"sites"`
}

// NewCatalog validates and freezes per-site patterns.
func NewCatalog(sites map[string]map[model.MetricType]model.MetricPattern) (*Catalog, error) {
	c := &Catalog{
		defaults: copyPatterns(model.DefaultPatterns),
		sites:    make(map[string]map[model.MetricType]model.MetricPattern, len(sites)),
	}
	for id, pats := range sites {
		for m, p := range pats {
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("site %s metric %s: %w", id, m, err)
			}
		}
		c.sites[id] = copyPatterns(pats)
	}
	return c, nil
}

// FromFile converts a decoded CatalogFile into a Catalog.
func FromFile(f CatalogFile) (*Catalog, error) {
	sites := make(map[string]map[model.MetricType]model.MetricPattern, len(f.Sites))
	for id, raw := range f.Sites {
		pats, err := parsePatterns(raw)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", id, err)
		}
		sites[id] = pats
	}
	c, err := NewCatalog(sites)
	if err != nil {
		return nil, err
	}
	defs, err := parsePatterns(f.Defaults)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	for m, p := range defs {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("default %s: %w", m, err)
		}
		c.defaults[m] = p
	}
	return c, nil
}

// Lookup returns the pattern for the site and metric, falling back to the
// default pattern when none is defined. A nil catalog only yields defaults.
func (c *Catalog) Lookup(siteID string, m model.MetricType) model.MetricPattern {
	if c == nil {
		return model.DefaultPatterns[m]
	}
	if pats, ok := c.sites[siteID]; ok {
		if p, ok := pats[m]; ok {
			return p
		}
	}
	return c.defaults[m]
}

// Sites lists the site IDs that carry explicit patterns.
func (c *Catalog) Sites() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.sites))
	for id := range c.sites {
		ids = append(ids, id)
	}
	return ids
}

// LoadCatalog reads a catalog from a JSON or YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeCatalog(f, ext)
}

// DecodeCatalog reads a catalog from r in the given format ("yaml" or "json").
func DecodeCatalog(r io.Reader, format string) (*Catalog, error) {
	var cf CatalogFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cf); err != nil && err != io.EOF {
			return nil, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", format)
	}
	return FromFile(cf)
}

func parsePatterns(raw map[string]model.MetricPattern) (map[model.MetricType]model.MetricPattern, error) {
	out := make(map[model.MetricType]model.MetricPattern, len(raw))
	for name, p := range raw {
		m, err := model.ParseMetricType(name)
		if err != nil {
			return nil, err
		}
		out[m] = p
	}
	return out, nil
}

func copyPatterns(in map[model.MetricType]model.MetricPattern) map[model.MetricType]model.MetricPattern {
	out := make(map[model.MetricType]model.MetricPattern, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

package metrics_test

import (
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/sitepulse/core/factory"
	metrics "github.com/kilianp07/sitepulse/core/metrics"
	_ "github.com/kilianp07/sitepulse/infra/metrics"
)

func TestMetricsFactory_Builtins(t *testing.T) {
	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	if err != nil {
		t.Fatalf("create nop: %v", err)
	}
	if s == nil {
		t.Fatal("expected sink instance")
	}
	if _, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestNewMetricsSink_Multi(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("nil config: %v", err)
	}
	if _, ok := s.(metrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
	data := "sinks:\n  - type: nop\n  - type: nop\n"
	var cfg metrics.Config
	if err := yaml.Unmarshal([]byte(data), &cfg); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	s, err = metrics.NewMetricsSink(cfg.Sinks)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ms, ok := s.(*metrics.MultiSink)
	if !ok {
		t.Fatalf("expected MultiSink, got %T", s)
	}
	if len(ms.Sinks) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(ms.Sinks))
	}
}

func TestSinkTypes(t *testing.T) {
	types := metrics.SinkTypes()
	for _, want := range []string{"influx", "nop", "prometheus"} {
		if !slices.Contains(types, want) {
			t.Fatalf("expected %q in %v", want, types)
		}
	}
}

func TestNewMetricsSink_ErrorNamesEntry(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "metrics sink 1 (statsd)") {
		t.Fatalf("error does not name the entry: %v", err)
	}
}

package metrics

import (
	"errors"
	"testing"

	"github.com/kilianp07/sitepulse/core/model"
)

type recordSink struct {
	ticks   int
	samples int
	fail    bool
}

func (r *recordSink) RecordTick(TickEvent) error {
	r.ticks++
	if r.fail {
		return errors.New("tick failed")
	}
	return nil
}

func (r *recordSink) RecordSamples(s []model.TelemetrySample) error {
	r.samples += len(s)
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2, NopSink{})
	if err := m.RecordTick(TickEvent{}); err != nil {
		t.Fatalf("record tick: %v", err)
	}
	if err := m.RecordSamples(make([]model.TelemetrySample, 3)); err != nil {
		t.Fatalf("record samples: %v", err)
	}
	if err := m.RecordPrune(PruneEvent{}); err != nil {
		t.Fatalf("record prune: %v", err)
	}
	if s1.ticks != 1 || s2.ticks != 1 || s1.samples != 3 || s2.samples != 3 {
		t.Fatalf("records not forwarded: %+v %+v", s1, s2)
	}
}

func TestMultiSinkContinuesAfterError(t *testing.T) {
	bad := &recordSink{fail: true}
	good := &recordSink{}
	m := NewMultiSink(bad, good)
	if err := m.RecordTick(TickEvent{}); err == nil {
		t.Fatal("expected error")
	}
	if good.ticks != 1 {
		t.Fatal("second sink skipped after first failed")
	}
}

func TestTickOutcome(t *testing.T) {
	if (TickEvent{Sites: 2}).Outcome() != "ok" {
		t.Fatal("expected ok")
	}
	if (TickEvent{}).Outcome() != "empty" {
		t.Fatal("expected empty")
	}
	if (TickEvent{Sites: 1, Err: errors.New("x")}).Outcome() != "error" {
		t.Fatal("expected error")
	}
}

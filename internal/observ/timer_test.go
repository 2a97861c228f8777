package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTimerReport(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tm := NewTimer()
	tm.now = func() time.Time { return clock }

	idx := tm.Begin("resolve")
	clock = clock.Add(3 * time.Millisecond)
	tm.End(idx, "2 crates")

	_ = tm.Measure("lower", func() error {
		clock = clock.Add(2 * time.Millisecond)
		return errors.New("boom")
	})
	tm.End(42, "ignored")

	r := tm.Report()
	if len(r.Phases) != 2 || r.TotalMS != 5 {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.Phases[1].Note != "failed" {
		t.Fatalf("failed phase not noted: %+v", r.Phases[1])
	}
	sum := tm.Summary()
	if !strings.Contains(sum, "resolve") || !strings.Contains(sum, "// 2 crates") || !strings.Contains(sum, "5.00 ms") {
		t.Fatalf("unexpected summary:\n%s", sum)
	}
}

func TestEmptyTimer(t *testing.T) {
	if r := NewTimer().Report(); r.TotalMS != 0 || r.Phases != nil {
		t.Fatalf("expected zero report, got %+v", r)
	}
}

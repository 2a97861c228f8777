package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStartSpanNestsUnderContext(t *testing.T) {
	ring := NewRingTracer(16, LevelDebug)
	ctx := WithTracer(context.Background(), ring)

	outer, ctx := StartSpan(ctx, ScopeStage, "resolve")
	inner, innerCtx := StartSpan(ctx, ScopeCrate, "crate:app")
	Point(innerCtx, ScopeItem, "skip", "helper")
	inner.End("")
	outer.End("ok")

	events := ring.Snapshot()
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	if events[1].ParentID != outer.ID() {
		t.Fatalf("inner span parent = %d, want %d", events[1].ParentID, outer.ID())
	}
	if events[2].Kind != KindPoint || events[2].ParentID != inner.ID() {
		t.Fatalf("point event not attached to inner span: %+v", events[2])
	}
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
	}
}

func TestLevelFiltersScopes(t *testing.T) {
	ring := NewRingTracer(16, LevelPhase)
	ctx := WithTracer(context.Background(), ring)
	s, ctx := StartSpan(ctx, ScopeStage, "lower")
	c, _ := StartSpan(ctx, ScopeCrate, "crate:app")
	c.End("")
	s.End("")
	if got := len(ring.Snapshot()); got != 2 {
		t.Fatalf("phase level should keep only stage events, got %d", got)
	}
}

func TestRingWraps(t *testing.T) {
	ring := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		ring.Emit(&Event{Kind: KindPoint, Scope: ScopeStage, Name: name})
	}
	events := ring.Snapshot()
	if len(events) != 2 || events[0].Name != "b" || events[1].Name != "c" {
		t.Fatalf("unexpected ring contents: %+v", events)
	}
}

func TestStreamFormats(t *testing.T) {
	var text, js bytes.Buffer
	multi := NewMultiTracer(LevelDetail,
		NewStreamTracer(&text, LevelDetail, FormatText),
		NewStreamTracer(&js, LevelDetail, FormatNDJSON))
	s := Begin(multi, ScopeStage, "generate", 0).WithExtra("files", "4").WithExtra("bytes", "10")
	s.End("done")

	if !strings.Contains(text.String(), "← generate (done) {bytes=10, files=4}") {
		t.Fatalf("unexpected text output:\n%s", text.String())
	}
	lines := strings.Split(strings.TrimSpace(js.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"kind":"end"`) || !strings.Contains(lines[1], `"scope":"stage"`) {
		t.Fatalf("unexpected ndjson output:\n%s", js.String())
	}
}

func TestNopIsInert(t *testing.T) {
	s, ctx := StartSpan(context.Background(), ScopeDriver, "generate")
	if s.ID() != 0 || CurrentSpan(ctx).SpanID != 0 {
		t.Fatalf("nop tracer produced a live span")
	}
	if d := s.End(""); d != 0 {
		t.Fatalf("nop span reported duration %v", d)
	}
	if StartHeartbeat(Nop, 1) != nil {
		t.Fatalf("heartbeat started on nop tracer")
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLevel("DETAIL"); err != nil || l != LevelDetail {
		t.Fatalf("ParseLevel: %v %v", l, err)
	}
	if _, err := ParseMode("disk"); err == nil {
		t.Fatalf("ParseMode accepted invalid mode")
	}
	if f, err := ParseFormat("ndjson"); err != nil || f != FormatNDJSON {
		t.Fatalf("ParseFormat: %v %v", f, err)
	}
}

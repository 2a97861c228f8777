// Package trace records what the generator is doing while it runs.
//
// Stages open spans around their work and emit point events for notable
// decisions (an item skipped, a collaborator started). Output goes to a
// stream (stderr or a file, text or NDJSON), to an in-memory ring kept for
// failure dumps, or both.
//
// # Usage
//
//	bridgegen generate --trace=- --trace-level=detail
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: ring dump only when a run fails
//   - LevelPhase: driver and stage boundaries
//   - LevelDetail: per crate events
//   - LevelDebug: per item events
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span, ctx := trace.StartSpan(ctx, trace.ScopeStage, "resolve")
//	defer span.End("")
package trace

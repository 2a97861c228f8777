// Package diag defines the diagnostic model shared by all pipeline stages.
//
// # Purpose
//
//   - Provide deterministic data structures that capture findings produced by
//     extraction, resolution, lowering and emission.
//   - Offer light-weight utilities (Reporter, Bag) so stages can emit
//     diagnostics without coupling to storage or rendering.
//   - Give every fatal stage error a stable Code so the CLI and tests can match
//     failures without parsing messages.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Severity: Info, Warning or Error (severity.go).
//   - Code: compact numeric identifier with a stable string form (codes.go).
//   - Message: short human oriented text.
//   - Location: crate, module path, item and construct that the finding is
//     about. Generated sources have no spans, so the logical path is what a
//     user needs to find the offending declaration.
//   - Notes: optional secondary locations with extra context.
//
// # Emitting diagnostics
//
// Stages report through a Reporter. BagReporter collects into a Bag, which
// supports sorting and deduplication so the final list is stable between runs.
// Stages that run per crate in parallel give each worker its own Bag and merge
// them by index afterwards.
package diag

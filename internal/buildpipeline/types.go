package buildpipeline

import "time"

// Stage describes a high-level pipeline phase.
type Stage string

const (
	// StageExtract obtains the syntax tree of every configured crate.
	StageExtract Stage = "extract"
	// StageResolve builds the resolved item pack.
	StageResolve Stage = "resolve"
	// StageLower lowers bridged items into the type model.
	StageLower Stage = "lower"
	// StageGenerate emits the native glue, interface description and managed bindings.
	StageGenerate Stage = "generate"
	// StageHeader renders the C header from the interface description.
	StageHeader Stage = "header"
	// StageManaged runs the managed low-level generator.
	StageManaged Stage = "managed"
	// StagePolish runs formatters and the optional post-processing commands.
	StagePolish Stage = "polish"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageExtract, StageResolve, StageLower, StageGenerate, StageHeader, StageManaged, StagePolish}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusSkipped indicates the stage had nothing to do for this request.
	StatusSkipped Status = "skipped"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a crate (or for the whole stage when Crate is empty).
type Event struct {
	Crate   string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Extraction reports per-crate
// events from several goroutines at once.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}


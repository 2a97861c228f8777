// Package buildpipeline orchestrates a generation run: extraction, resolution,
// lowering, emission, the external collaborators and the final polish.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bridgegen/internal/codegen"
	"bridgegen/internal/diag"
	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
	"bridgegen/internal/observ"
	"bridgegen/internal/project"
	"bridgegen/internal/raw"
	"bridgegen/internal/toolchain"
	"bridgegen/internal/trace"
)

// maxDiagnostics bounds the findings returned with a result.
const maxDiagnostics = 4096

// Request configures one generation run.
type Request struct {
	Config *project.Config
	// Jobs bounds per-crate parallelism; 0 means GOMAXPROCS.
	Jobs int
	// DryRun computes every artifact but writes nothing and runs no
	// collaborator besides the extractor.
	DryRun bool
	// NoPolish skips formatters, the build runner and the upgrade command.
	NoPolish bool
	// StopAfter ends the run successfully after the named stage.
	StopAfter Stage
	// EmitHIR and EmitMIR are snapshot paths, manifest-relative. A
	// .msgpack extension selects the binary encoding, anything else the
	// text dump.
	EmitHIR string
	EmitMIR string
	// PrintCommands echoes every collaborator command line.
	PrintCommands io.Writer
	Progress      ProgressSink

	// Collaborator overrides; nil means derive from Config.
	Runner    toolchain.Runner
	Extractor toolchain.Extractor
	Header    toolchain.HeaderGenerator
	Managed   toolchain.ManagedGenerator
}

// Result captures artefacts, findings and timings. Fields are filled as
// far as the run got.
type Result struct {
	Raw         *raw.Pack
	Pack        *hir.Pack
	Document    *mir.Document
	Output      *codegen.Output
	Artifacts   []Artifact
	Diagnostics []diag.Diagnostic
	Timings     Timings
	Report      observ.Report
}

// Artifact returns the artifact of the given kind, if produced.
func (r *Result) Artifact(kind ArtifactKind) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// Generate runs the pipeline. No stage runs after a failed one.
func Generate(ctx context.Context, req *Request) (Result, error) {
	var result Result
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, errors.New("missing generate request")
	}
	if req.Config == nil {
		return result, errors.New("missing project configuration")
	}
	reqCopy := *req
	r := &run{req: &reqCopy, res: &result, timer: observ.NewTimer()}
	r.setDefaults()

	span, ctx := trace.StartSpan(ctx, trace.ScopeDriver, "generate")
	err := r.execute(ctx)
	result.Report = r.timer.Report()
	if err != nil {
		span.WithExtra("error", err.Error()).End("failed")
		return result, err
	}
	span.End(fmt.Sprintf("%d artifacts", len(result.Artifacts)))
	return result, nil
}

type run struct {
	req   *Request
	res   *Result
	timer *observ.Timer
	paths outputPaths
}

type outputPaths struct {
	native, iface, header, managed, lowLevel, ffigen string
}

func (r *run) setDefaults() {
	cfg := r.req.Config
	if r.req.Runner == nil {
		r.req.Runner = toolchain.ExecRunner{}
	}
	if r.req.PrintCommands != nil {
		r.req.Runner = toolchain.EchoRunner{Next: r.req.Runner, W: r.req.PrintCommands}
	}
	shell := toolchain.ShellMode(cfg.Tools.Shell)
	if r.req.Extractor == nil {
		r.req.Extractor = toolchain.ConfiguredExtractor{
			Command: toolchain.CommandExtractor{Runner: r.req.Runner, Args: cfg.Tools.Extract, Shell: shell},
		}
	}
	if r.req.Header == nil {
		if len(cfg.Tools.Header) == 0 {
			r.req.Header = toolchain.BuiltinHeader{}
		} else {
			r.req.Header = toolchain.CommandHeader{Runner: r.req.Runner, Args: cfg.Tools.Header, Dir: cfg.Root, Shell: shell}
		}
	}
	if r.req.Managed == nil && len(cfg.Tools.Managed) > 0 {
		r.req.Managed = toolchain.CommandManaged{Runner: r.req.Runner, Args: cfg.Tools.Managed, Dir: cfg.Root, Shell: shell}
	}
	o := cfg.Output
	r.paths = outputPaths{
		native:   cfg.Abs(o.Native),
		iface:    cfg.Abs(o.Interface),
		header:   cfg.Abs(o.Header),
		managed:  cfg.Abs(o.Managed),
		lowLevel: cfg.Abs(o.ManagedLowLevel),
		ffigen:   cfg.Abs(o.FfigenConfig),
	}
}

// errStop ends the run early without reporting a failure.
var errStop = errors.New("stop")

func (r *run) execute(ctx context.Context) error {
	for _, stage := range Stages {
		r.emit(Event{Stage: stage, Status: StatusQueued})
	}
	steps := []struct {
		stage Stage
		fn    func(context.Context) error
	}{
		{StageExtract, r.extract},
		{StageResolve, r.resolve},
		{StageLower, r.lower},
		{StageGenerate, r.generate},
		{StageHeader, r.header},
		{StageManaged, r.managed},
		{StagePolish, r.polish},
	}
	for _, s := range steps {
		err := r.stage(ctx, s.stage, s.fn)
		if errors.Is(err, errStop) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		r.emit(Event{Stage: stage, Status: StatusError, Err: err})
		return err
	}
	span, sctx := trace.StartSpan(ctx, trace.ScopeStage, "stage:"+string(stage))
	idx := r.timer.Begin(string(stage))
	r.emit(Event{Stage: stage, Status: StatusWorking})
	start := time.Now()
	err := fn(sctx)
	elapsed := time.Since(start)
	r.res.Timings.Set(stage, elapsed)

	var skipped skipError
	switch {
	case err == nil:
		r.timer.End(idx, "")
		span.End("")
		r.emit(Event{Stage: stage, Status: StatusDone, Elapsed: elapsed})
	case errors.As(err, &skipped):
		r.timer.End(idx, "skipped")
		span.End("skipped: " + string(skipped))
		r.emit(Event{Stage: stage, Status: StatusSkipped, Elapsed: elapsed})
		err = nil
	default:
		r.timer.End(idx, "failed")
		span.WithExtra("error", err.Error()).End("failed")
		err = fmt.Errorf("%s: %w", stage, err)
		r.emit(Event{Stage: stage, Status: StatusError, Err: err, Elapsed: elapsed})
		return err
	}
	if stage == r.req.StopAfter {
		return errStop
	}
	return nil
}

// skipError marks a stage that had nothing to do.
type skipError string

func (e skipError) Error() string { return "skipped: " + string(e) }

func (r *run) emit(evt Event) {
	if r.req.Progress != nil {
		r.req.Progress.OnEvent(evt)
	}
}

func (r *run) extract(ctx context.Context) error {
	cfg := r.req.Config
	crates := make([]project.CrateSpec, len(cfg.Crates))
	for i, cr := range cfg.Crates {
		cr.Root = cfg.Abs(cr.Root)
		cr.Dump = cfg.Abs(cr.Dump)
		crates[i] = cr
		r.emit(Event{Crate: cr.Name, Stage: StageExtract, Status: StatusQueued})
	}
	x := progressExtractor{next: r.req.Extractor, sink: r.req.Progress}
	pack, err := toolchain.ExtractAll(ctx, x, crates, r.req.Jobs)
	if err != nil {
		return err
	}
	r.res.Raw = pack
	return nil
}

func (r *run) resolve(ctx context.Context) error {
	pack, err := hir.Build(ctx, hir.ConfigFromProject(r.req.Config, r.req.Jobs), r.res.Raw)
	if err != nil {
		return err
	}
	r.res.Pack = pack
	r.collect(pack.Diagnostics())
	if r.req.EmitHIR != "" {
		return r.snapshot(ArtifactHIR, r.req.EmitHIR, func(w io.Writer, binary bool) error {
			return WriteHIRSnapshot(w, pack, binary)
		})
	}
	return nil
}

func (r *run) lower(ctx context.Context) error {
	doc, err := mir.Lower(r.res.Pack, mir.Options{Crates: r.req.Config.Primary()})
	if err != nil {
		return err
	}
	r.res.Document = doc
	r.collect(doc.Diagnostics)
	if r.req.EmitMIR != "" {
		return r.snapshot(ArtifactMIR, r.req.EmitMIR, func(w io.Writer, binary bool) error {
			return WriteMIRSnapshot(w, doc, binary)
		})
	}
	return nil
}

func (r *run) generate(ctx context.Context) error {
	out, err := codegen.Generate(r.res.Document, r.codegenOptions())
	if err != nil {
		return err
	}
	r.res.Output = out
	return r.write(
		Artifact{Kind: ArtifactNative, Path: r.paths.native, Data: out.Native},
		Artifact{Kind: ArtifactInterface, Path: r.paths.iface, Data: out.Interface},
		Artifact{Kind: ArtifactFfigenConfig, Path: r.paths.ffigen, Data: out.FfigenConfig},
		Artifact{Kind: ArtifactManaged, Path: r.paths.managed, Data: out.Managed},
	)
}

// codegenOptions derives emitter paths. The managed-generator request
// resolves paths against its own directory.
func (r *run) codegenOptions() codegen.Options {
	cfg := r.req.Config
	ffigenDir := filepath.Dir(r.paths.ffigen)
	opts := codegen.Options{
		Namespace:      cfg.Package.Name,
		Header:         relSlash(ffigenDir, r.paths.header),
		LowLevelOutput: relSlash(ffigenDir, r.paths.lowLevel),
		LowLevelImport: relSlash(filepath.Dir(r.paths.managed), r.paths.lowLevel),
	}
	if primary := cfg.Primary(); len(primary) > 0 {
		opts.HostCrate = primary[0]
	}
	return opts
}

func relSlash(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

func (r *run) header(ctx context.Context) error {
	if r.req.DryRun {
		if _, builtin := r.req.Header.(toolchain.BuiltinHeader); !builtin {
			return skipError("dry run")
		}
		r.res.Artifacts = append(r.res.Artifacts, Artifact{
			Kind: ArtifactHeader,
			Path: r.paths.header,
			Data: codegen.RenderHeader(r.res.Output.Description),
		})
		return nil
	}
	if err := r.req.Header.Generate(ctx, r.paths.iface, r.paths.header); err != nil {
		return err
	}
	r.res.Artifacts = append(r.res.Artifacts, Artifact{Kind: ArtifactHeader, Path: r.paths.header, Written: true})
	return nil
}

func (r *run) managed(ctx context.Context) error {
	switch {
	case r.req.Managed == nil:
		return skipError("no managed generator configured")
	case r.req.DryRun:
		return skipError("dry run")
	}
	return r.req.Managed.Generate(ctx, r.paths.ffigen, filepath.Dir(r.paths.lowLevel))
}

// write records artifacts and writes them unless this is a dry run.
func (r *run) write(artifacts ...Artifact) error {
	if !r.req.DryRun {
		if err := WriteArtifacts(artifacts); err != nil {
			return &codegen.EmissionError{Err: err}
		}
	}
	r.res.Artifacts = append(r.res.Artifacts, artifacts...)
	return nil
}

func (r *run) snapshot(kind ArtifactKind, path string, encode func(io.Writer, bool) error) error {
	path = r.req.Config.Abs(path)
	data, err := encodeSnapshot(path, encode)
	if err != nil {
		return fmt.Errorf("%s snapshot: %w", kind, err)
	}
	return r.write(Artifact{Kind: kind, Path: path, Data: data})
}

func (r *run) collect(items []diag.Diagnostic) {
	bag := diag.NewBag(maxDiagnostics)
	for _, d := range r.res.Diagnostics {
		bag.Add(d)
	}
	for _, d := range items {
		bag.Add(d)
	}
	bag.Sort()
	bag.Dedup()
	r.res.Diagnostics = append([]diag.Diagnostic(nil), bag.Items()...)
}

// progressExtractor reports per-crate extraction progress.
type progressExtractor struct {
	next toolchain.Extractor
	sink ProgressSink
}

func (x progressExtractor) Extract(ctx context.Context, crate project.CrateSpec) (*raw.File, error) {
	if x.sink == nil {
		return x.next.Extract(ctx, crate)
	}
	x.sink.OnEvent(Event{Crate: crate.Name, Stage: StageExtract, Status: StatusWorking})
	start := time.Now()
	f, err := x.next.Extract(ctx, crate)
	status := StatusDone
	if err != nil {
		status = StatusError
	}
	x.sink.OnEvent(Event{Crate: crate.Name, Stage: StageExtract, Status: status, Err: err, Elapsed: time.Since(start)})
	return f, err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

package buildpipeline

import (
	"context"
	"errors"

	"bridgegen/internal/toolchain"
	"bridgegen/internal/trace"
)

// polish formats the generated sources and runs the optional
// post-processing commands. Every step is idempotent.
func (r *run) polish(ctx context.Context) error {
	switch {
	case r.req.DryRun:
		return skipError("dry run")
	case r.req.NoPolish:
		return skipError("disabled")
	}
	cfg := r.req.Config
	shell := toolchain.ShellMode(cfg.Tools.Shell)

	var errs []error
	rust := toolchain.RustFormatter{Runner: r.req.Runner, Binary: cfg.Tools.Rustfmt, Dir: cfg.Root}
	if err := rust.Format(ctx, []string{r.paths.native}); err != nil {
		errs = append(errs, err)
	}
	dartFiles := []string{r.paths.managed}
	if fileExists(r.paths.lowLevel) {
		dartFiles = append(dartFiles, r.paths.lowLevel)
	}
	dart := toolchain.DartFormatter{Runner: r.req.Runner, Binary: cfg.Tools.Dart, LineLength: cfg.Tools.DartLineLength, Dir: cfg.Root}
	if err := dart.Format(ctx, dartFiles); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	var steps []toolchain.Step
	if cfg.Tools.BuildRunner {
		steps = append(steps, toolchain.Step{Name: "build runner", Runner: r.req.Runner, Args: toolchain.BuildRunnerArgs(cfg.Tools.Dart), Dir: cfg.Root})
	}
	if len(cfg.Tools.Upgrade) > 0 {
		steps = append(steps, toolchain.Step{Name: "upgrade", Runner: r.req.Runner, Args: cfg.Tools.Upgrade, Dir: cfg.Root, Shell: shell})
	}
	for _, s := range steps {
		span, sctx := trace.StartSpan(ctx, trace.ScopeCrate, "polish:"+s.Name)
		err := s.Run(sctx)
		span.End("")
		if err != nil {
			return err
		}
	}
	return nil
}

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"bridgegen/internal/diag"
	"bridgegen/internal/project"
	"bridgegen/internal/raw"
	"bridgegen/internal/trace"
)

// ExtractionError reports a crate whose syntax tree could not be obtained.
type ExtractionError struct {
	Crate  string
	Code   diag.Code
	Err    error
	Output string
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s: %v", e.Crate, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor produces the expanded syntax tree of one crate. Crate roots and
// dump paths are absolute.
type Extractor interface {
	Extract(ctx context.Context, crate project.CrateSpec) (*raw.File, error)
}

// CommandExtractor runs the syntax dumper in the crate directory and
// decodes its stdout. Args may use {crate} and {path}.
type CommandExtractor struct {
	Runner Runner
	Args   []string
	Shell  ShellMode
}

func (x CommandExtractor) Extract(ctx context.Context, crate project.CrateSpec) (*raw.File, error) {
	cmd := Command{
		Args:  Expand(x.Args, map[string]string{"crate": crate.Name, "path": crate.Root}),
		Dir:   crate.Root,
		Shell: x.Shell,
	}
	out, err := Run(ctx, x.Runner, cmd)
	if err != nil {
		return nil, &ExtractionError{Crate: crate.Name, Code: diag.ExtCommandFailed, Err: err, Output: string(out.Stderr)}
	}
	f, err := raw.Decode(bytes.NewReader(out.Stdout))
	if err != nil {
		code := diag.ExtDecode
		if len(out.Warnings) > 0 {
			// the dumper printed a failure instead of a tree
			code = diag.ExtFatalOutput
		}
		return nil, &ExtractionError{Crate: crate.Name, Code: code, Err: err, Output: string(out.Stderr)}
	}
	return f, nil
}

// FileExtractor decodes pre-dumped syntax trees.
type FileExtractor struct{}

func (FileExtractor) Extract(_ context.Context, crate project.CrateSpec) (*raw.File, error) {
	if crate.Dump == "" {
		return nil, &ExtractionError{Crate: crate.Name, Code: diag.ExtMissingCrate, Err: errors.New("no dump file configured")}
	}
	f, err := raw.DecodeFile(filepath.Clean(crate.Dump))
	if err != nil {
		return nil, &ExtractionError{Crate: crate.Name, Code: diag.ExtDecode, Err: err}
	}
	return f, nil
}

// ConfiguredExtractor reads a crate's dump file when one is configured and
// runs the dumper otherwise.
type ConfiguredExtractor struct {
	Command CommandExtractor
	Files   FileExtractor
}

func (x ConfiguredExtractor) Extract(ctx context.Context, crate project.CrateSpec) (*raw.File, error) {
	if crate.Dump != "" || len(x.Command.Args) == 0 {
		return x.Files.Extract(ctx, crate)
	}
	return x.Command.Extract(ctx, crate)
}

// ExtractAll extracts every crate in parallel and fails whole on the first
// error. jobs <= 0 means GOMAXPROCS.
func ExtractAll(ctx context.Context, x Extractor, crates []project.CrateSpec, jobs int) (*raw.Pack, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	files := make([]*raw.File, len(crates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, cr := range crates {
		g.Go(func() error {
			span, cctx := trace.StartSpan(gctx, trace.ScopeCrate, "crate:"+cr.Name)
			defer span.End("")
			f, err := x.Extract(cctx, cr)
			if err != nil {
				return err
			}
			if f.Crate != cr.Name {
				return &ExtractionError{Crate: cr.Name, Code: diag.ExtMissingCrate, Err: fmt.Errorf("dump describes crate %q", f.Crate)}
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	pack := raw.NewPack()
	for _, f := range files {
		pack.Add(f)
	}
	return pack, nil
}

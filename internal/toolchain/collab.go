package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"bridgegen/internal/codegen"
)

// HeaderGenerator turns an interface description into a C header.
type HeaderGenerator interface {
	Generate(ctx context.Context, descriptionPath, headerPath string) error
}

// ManagedGenerator produces the low-level managed declarations from a
// generator request.
type ManagedGenerator interface {
	Generate(ctx context.Context, configPath, outputDir string) error
}

// Formatter rewrites generated files in place.
type Formatter interface {
	Format(ctx context.Context, paths []string) error
}

func collaboratorError(name string, err error, out Output) error {
	return &codegen.EmissionError{Collaborator: name, Err: err, Output: string(out.Stderr)}
}

// BuiltinHeader renders the header in process.
type BuiltinHeader struct{}

func (BuiltinHeader) Generate(_ context.Context, descriptionPath, headerPath string) error {
	data, err := os.ReadFile(descriptionPath)
	if err != nil {
		return &codegen.EmissionError{Collaborator: "header", Err: err}
	}
	desc, err := codegen.ParseInterface(data)
	if err != nil {
		return &codegen.EmissionError{Collaborator: "header", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(headerPath), 0o755); err != nil {
		return &codegen.EmissionError{Collaborator: "header", Err: err}
	}
	if err := os.WriteFile(headerPath, codegen.RenderHeader(desc), 0o644); err != nil {
		return &codegen.EmissionError{Collaborator: "header", Err: err}
	}
	return nil
}

// CommandHeader runs an external header generator. Args may use {input}
// and {output}.
type CommandHeader struct {
	Runner Runner
	Args   []string
	Dir    string
	Shell  ShellMode
}

func (h CommandHeader) Generate(ctx context.Context, descriptionPath, headerPath string) error {
	cmd := Command{
		Args:  Expand(h.Args, map[string]string{"input": descriptionPath, "output": headerPath}),
		Dir:   h.Dir,
		Shell: h.Shell,
	}
	if out, err := Run(ctx, h.Runner, cmd); err != nil {
		return collaboratorError("header", err, out)
	}
	return nil
}

// CommandManaged runs the managed low-level generator. Args may use
// {config} and {output}.
type CommandManaged struct {
	Runner Runner
	Args   []string
	Dir    string
	Shell  ShellMode
}

func (m CommandManaged) Generate(ctx context.Context, configPath, outputDir string) error {
	cmd := Command{
		Args:  Expand(m.Args, map[string]string{"config": configPath, "output": outputDir}),
		Dir:   m.Dir,
		Shell: m.Shell,
	}
	if out, err := Run(ctx, m.Runner, cmd); err != nil {
		return collaboratorError("managed", err, out)
	}
	return nil
}

// RustFormatter runs rustfmt on the native glue.
type RustFormatter struct {
	Runner Runner
	Binary string
	Dir    string
}

func (f RustFormatter) Format(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	bin := f.Binary
	if bin == "" {
		bin = "rustfmt"
	}
	cmd := Command{Args: append([]string{bin, "--edition", "2018"}, paths...), Dir: f.Dir}
	if _, err := Run(ctx, f.Runner, cmd); err != nil {
		return fmt.Errorf("rust formatter: %w", err)
	}
	return nil
}

// DartFormatter runs `dart format` on the managed bindings.
type DartFormatter struct {
	Runner     Runner
	Binary     string
	LineLength int
	Dir        string
}

func (f DartFormatter) Format(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	bin := f.Binary
	if bin == "" {
		bin = "dart"
	}
	args := []string{bin, "format"}
	if f.LineLength > 0 {
		args = append(args, "--line-length", strconv.Itoa(f.LineLength))
	}
	cmd := Command{Args: append(args, paths...), Dir: f.Dir}
	if _, err := Run(ctx, f.Runner, cmd); err != nil {
		return fmt.Errorf("dart formatter: %w", err)
	}
	return nil
}

// Step is an optional post-processing command such as the build runner or
// the auto-upgrade hook. It must be idempotent.
type Step struct {
	Name   string
	Runner Runner
	Args   []string
	Dir    string
	Shell  ShellMode
}

func (s Step) Run(ctx context.Context) error {
	if len(s.Args) == 0 {
		return nil
	}
	if _, err := Run(ctx, s.Runner, Command{Args: s.Args, Dir: s.Dir, Shell: s.Shell}); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	return nil
}

// BuildRunnerArgs is the build-runner invocation used when enabled.
func BuildRunnerArgs(dart string) []string {
	if dart == "" {
		dart = "dart"
	}
	return []string{dart, "run", "build_runner", "build", "--delete-conflicting-outputs"}
}

package toolchain_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"bridgegen/internal/codegen"
	"bridgegen/internal/diag"
	"bridgegen/internal/project"
	"bridgegen/internal/toolchain"
)

// fakeRunner answers every command through reply and records the calls.
type fakeRunner struct {
	mu    sync.Mutex
	calls []toolchain.Command
	reply func(cmd toolchain.Command) toolchain.Output
}

func (f *fakeRunner) Execute(_ context.Context, cmd toolchain.Command) (toolchain.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	return f.reply(cmd), nil
}

func dump(crate string) []byte {
	return []byte(`{"crate": "` + crate + `", "items": []}`)
}

func TestCommandExtractorExpandsPlaceholders(t *testing.T) {
	r := &fakeRunner{reply: func(cmd toolchain.Command) toolchain.Output {
		return toolchain.Output{Stdout: dump(cmd.Args[2])}
	}}
	x := toolchain.CommandExtractor{Runner: r, Args: []string{"cargo", "bridge-dump", "{crate}", "--manifest-path", "{path}/Cargo.toml"}}
	f, err := x.Extract(context.Background(), project.CrateSpec{Name: "app", Root: "/src/app"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if f.Crate != "app" {
		t.Fatalf("crate = %q", f.Crate)
	}
	got := r.calls[0]
	if want := []string{"cargo", "bridge-dump", "app", "--manifest-path", "/src/app/Cargo.toml"}; !slices.Equal(got.Args, want) {
		t.Fatalf("args = %v, want %v", got.Args, want)
	}
	if got.Dir != "/src/app" {
		t.Fatalf("dir = %q", got.Dir)
	}
}

func TestExtractionFailures(t *testing.T) {
	tests := []struct {
		name string
		out  toolchain.Output
		code diag.Code
	}{
		{"exit status", toolchain.Output{ExitCode: 101, Stderr: []byte("error[E0433]: failed to resolve")}, diag.ExtCommandFailed},
		{"garbage", toolchain.Output{Stdout: []byte("not json")}, diag.ExtDecode},
		{"fatal on stdout", toolchain.Output{Stdout: []byte("fatal error: macro expansion"), Warnings: []string{"fatal"}}, diag.ExtFatalOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{reply: func(toolchain.Command) toolchain.Output { return tt.out }}
			x := toolchain.CommandExtractor{Runner: r, Args: []string{"dump"}}
			_, err := x.Extract(context.Background(), project.CrateSpec{Name: "app"})
			var ee *toolchain.ExtractionError
			if !errors.As(err, &ee) {
				t.Fatalf("err = %v, want *ExtractionError", err)
			}
			if ee.Crate != "app" || ee.Code != tt.code {
				t.Fatalf("crate = %q code = %s, want %s", ee.Crate, ee.Code.ID(), tt.code.ID())
			}
		})
	}
	r := &fakeRunner{reply: func(toolchain.Command) toolchain.Output {
		return toolchain.Output{ExitCode: 1, Stderr: []byte("could not find Cargo.toml")}
	}}
	_, err := toolchain.CommandExtractor{Runner: r, Args: []string{"dump"}}.Extract(context.Background(), project.CrateSpec{Name: "app"})
	if err == nil || !strings.Contains(err.Error(), "could not find Cargo.toml") {
		t.Fatalf("stderr missing from %v", err)
	}
}

func TestExtractAll(t *testing.T) {
	dir := t.TempDir()
	var crates []project.CrateSpec
	for _, name := range []string{"app", "dep", "util"} {
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, dump(name), 0o644); err != nil {
			t.Fatal(err)
		}
		crates = append(crates, project.CrateSpec{Name: name, Dump: path})
	}
	pack, err := toolchain.ExtractAll(context.Background(), toolchain.FileExtractor{}, crates, 2)
	if err != nil {
		t.Fatalf("extract all: %v", err)
	}
	if got := pack.Names(); !slices.Equal(got, []string{"app", "dep", "util"}) {
		t.Fatalf("crates = %v", got)
	}

	// a dump naming the wrong crate fails the whole run
	if err := os.WriteFile(crates[1].Dump, dump("other"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = toolchain.ExtractAll(context.Background(), toolchain.FileExtractor{}, crates, 0)
	var ee *toolchain.ExtractionError
	if !errors.As(err, &ee) || ee.Crate != "dep" {
		t.Fatalf("err = %v, want extraction error for dep", err)
	}
}

func TestConfiguredExtractorPrefersDumps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json")
	if err := os.WriteFile(path, dump("app"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &fakeRunner{reply: func(toolchain.Command) toolchain.Output { return toolchain.Output{Stdout: dump("dep")} }}
	x := toolchain.ConfiguredExtractor{Command: toolchain.CommandExtractor{Runner: r, Args: []string{"dump", "{crate}"}}}
	pack, err := toolchain.ExtractAll(context.Background(), x, []project.CrateSpec{{Name: "app", Dump: path}, {Name: "dep"}}, 1)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(pack.Crates) != 2 || len(r.calls) != 1 {
		t.Fatalf("crates = %d dumper calls = %d", len(pack.Crates), len(r.calls))
	}
}

func TestCheckExitCode(t *testing.T) {
	cmd := toolchain.Command{Args: []string{"rustfmt", "x.rs"}}
	if err := toolchain.CheckExitCode(cmd, toolchain.Output{}); err != nil {
		t.Fatalf("success reported as %v", err)
	}
	err := toolchain.CheckExitCode(cmd, toolchain.Output{ExitCode: 1, Stderr: []byte("error: expected item\n")})
	var ce *toolchain.CommandError
	if !errors.As(err, &ce) || ce.ExitCode != 1 || !strings.Contains(err.Error(), "expected item") {
		t.Fatalf("err = %v", err)
	}
}

func TestFormattersBuildCommandLines(t *testing.T) {
	r := &fakeRunner{reply: func(toolchain.Command) toolchain.Output { return toolchain.Output{} }}
	ctx := context.Background()
	if err := (toolchain.RustFormatter{Runner: r}).Format(ctx, []string{"a.rs"}); err != nil {
		t.Fatal(err)
	}
	if err := (toolchain.DartFormatter{Runner: r, LineLength: 120}).Format(ctx, []string{"a.dart"}); err != nil {
		t.Fatal(err)
	}
	if err := (toolchain.DartFormatter{Runner: r}).Format(ctx, nil); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"rustfmt", "--edition", "2018", "a.rs"},
		{"dart", "format", "--line-length", "120", "a.dart"},
	}
	if len(r.calls) != len(want) {
		t.Fatalf("calls = %v", r.calls)
	}
	for i, w := range want {
		if !slices.Equal(r.calls[i].Args, w) {
			t.Fatalf("call %d = %v, want %v", i, r.calls[i].Args, w)
		}
	}
}

func TestCollaboratorFailuresAreEmissionErrors(t *testing.T) {
	r := &fakeRunner{reply: func(toolchain.Command) toolchain.Output {
		return toolchain.Output{ExitCode: 255, Stderr: []byte("Couldn't find header")}
	}}
	m := toolchain.CommandManaged{Runner: r, Args: []string{"dart", "run", "ffigen", "--config", "{config}"}}
	err := m.Generate(context.Background(), "build/ffigen.yaml", "lib")
	var ee *codegen.EmissionError
	if !errors.As(err, &ee) || ee.Collaborator != "managed" || !strings.Contains(ee.Output, "Couldn't find header") {
		t.Fatalf("err = %v", err)
	}
	if got := r.calls[0].Args[4]; got != "build/ffigen.yaml" {
		t.Fatalf("config placeholder = %q", got)
	}
}

func TestBuiltinHeader(t *testing.T) {
	dir := t.TempDir()
	desc := &codegen.Interface{Version: codegen.InterfaceVersion, Namespace: "app", Functions: []codegen.EntryPoint{
		{Symbol: "frbgen_app_wire_ping", Kind: "call", Params: []codegen.CParam{{Name: "port_", Type: "int64_t"}}, Return: "void"},
	}}
	data, err := desc.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(dir, "bridge.json")
	if err := os.WriteFile(in, data, 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "include", "bridge.h")
	if err := (toolchain.BuiltinHeader{}).Generate(context.Background(), in, out); err != nil {
		t.Fatalf("header: %v", err)
	}
	header, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(header), "void frbgen_app_wire_ping(int64_t port_);") {
		t.Fatalf("header:\n%s", header)
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := toolchain.ExecRunner{}
	ctx := context.Background()
	out, err := r.Execute(ctx, toolchain.Command{Args: []string{"echo", "fatal error: it's fine"}, Shell: toolchain.ShellSh})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.ExitCode != 0 || len(out.Warnings) != 1 {
		t.Fatalf("exit = %d warnings = %v", out.ExitCode, out.Warnings)
	}
	out, err = r.Execute(ctx, toolchain.Command{Args: []string{"exit", "3"}, Shell: toolchain.ShellSh})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.ExitCode != 3 {
		t.Fatalf("exit = %d, want 3", out.ExitCode)
	}
	if _, err := toolchain.ParseShellMode("bash"); err == nil {
		t.Fatalf("bash accepted as shell mode")
	}
}

func TestShellCommandLines(t *testing.T) {
	args := []string{"dart", "format", "lib/my file.dart", `it's "done"`}
	cases := []struct {
		shell toolchain.ShellMode
		name  string
		want  []string
	}{
		{toolchain.ShellNone, "dart", []string{"format", "lib/my file.dart", `it's "done"`}},
		{toolchain.ShellSh, "sh", []string{"-c", `dart format 'lib/my file.dart' 'it'\''s "done"'`}},
		{toolchain.ShellCmd, "cmd", []string{"/C", `dart format "lib/my file.dart" "it's ""done"""`}},
		{toolchain.ShellPowerShell, "powershell", []string{"-NoProfile", "-Command", `& 'dart' 'format' 'lib/my file.dart' 'it''s "done"'`}},
	}
	for _, c := range cases {
		name, argv, err := toolchain.Command{Args: args, Shell: c.shell}.Argv()
		if err != nil {
			t.Fatalf("%q: %v", c.shell, err)
		}
		if name != c.name || !slices.Equal(argv, c.want) {
			t.Fatalf("%q: got %s %q, want %s %q", c.shell, name, argv, c.name, c.want)
		}
	}
	if _, _, err := (toolchain.Command{Shell: toolchain.ShellCmd}).Argv(); err == nil {
		t.Fatalf("empty command accepted")
	}
}

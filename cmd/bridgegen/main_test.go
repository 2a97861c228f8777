package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"bridgegen/internal/codegen"
	"bridgegen/internal/testkit"
	"bridgegen/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String() + errOut.String(), err
}

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeAuto, false},
		{"AUTO", uiModeAuto, false},
		{" on ", uiModeOn, false},
		{"off", uiModeOff, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if shouldUseTUI(uiModeOff) || !shouldUseTUI(uiModeOn) {
		t.Fatalf("explicit ui modes ignored")
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(errDiagnostics); got != 2 {
		t.Fatalf("exitCode(diagnostics) = %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("exitCode(other) = %d", got)
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "--color", "off", "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if payload.Tool != "bridgegen" || payload.InterfaceRevision != codegen.InterfaceVersion {
		t.Fatalf("payload = %+v", payload)
	}
	if version.InterfaceRevision != codegen.InterfaceVersion {
		t.Fatalf("version reports interface v%d, generator emits v%d", version.InterfaceRevision, codegen.InterfaceVersion)
	}
}

func TestGenerateDryRun(t *testing.T) {
	p := testkit.WriteProject(t, `
[package]
name = "app"

[[crates]]
name = "app"
dump = "dumps/app.json"
`, map[string]string{"app": testkit.APICrate("app", `{"kind": "fn", "name": "ping", "vis": "pub", "fn": {"ret": "u32"}}`)})

	out, err := execute(t, "--color", "off", "--config", p.Manifest, "generate", "--ui", "off", "--dry-run", "--timings")
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	for _, want := range []string{"dry-run", "rust/src/bridge_generated.rs", "lib/bridge_generated.dart", "total"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output lacks %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "--color", "off", "--config", p.Manifest, "inspect", "mir")
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ping") {
		t.Fatalf("mir dump lacks ping:\n%s", out)
	}
}

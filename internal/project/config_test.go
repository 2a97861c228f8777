package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManifest = `
[package]
name = "my_app"

[[crates]]
name = "my_app"
root = "rust"
primary = true
bridge_modules = ["crate::api", "api::inner"]

[[crates]]
name = "dep"
root = "../dep"
dump = "target/dep.json"

[tools]
extract = ["cargo", "bridge-dump", "--crate", "{crate}"]
shell = "sh"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(sampleManifest, "/work/app/bridgegen.toml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cfg.Primary(); len(got) != 1 || got[0] != "my_app" {
		t.Fatalf("Primary() = %v", got)
	}
	if got := cfg.Dependencies(); len(got) != 1 || got[0] != "dep" {
		t.Fatalf("Dependencies() = %v", got)
	}
	if got := strings.Join(cfg.BridgeModules(), ","); got != "my_app::api,my_app::api.inner" {
		t.Fatalf("BridgeModules() = %q", got)
	}
	if cfg.Output.Native != "rust/src/bridge_generated.rs" || cfg.Tools.DartLineLength != 80 || cfg.Tools.Rustfmt != "rustfmt" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Output, cfg.Tools)
	}
	if got := cfg.Abs(cfg.Crates[1].Dump); got != filepath.Join("/work/app", "target", "dep.json") {
		t.Fatalf("Abs = %q", got)
	}
}

func TestParseSingleCrateIsPrimary(t *testing.T) {
	cfg, err := Parse("[package]\nname = \"a\"\n[[crates]]\nname = \"a\"\ndump = \"a.json\"\n", "/x/bridgegen.toml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Crates[0].Primary || cfg.Crates[0].BridgeModules[0] != "api" {
		t.Fatalf("lone crate not defaulted: %+v", cfg.Crates[0])
	}
}

func TestParseErrorsNameKey(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		key  string
	}{
		{"unknown key", "[package]\nname = \"a\"\ncolour = 1\n[[crates]]\nname = \"a\"\ndump = \"d\"\n", "package.colour"},
		{"no package", "[[crates]]\nname = \"a\"\n", "package"},
		{"no crates", "[package]\nname = \"a\"\n", "crates"},
		{"bad crate name", "[package]\nname = \"a\"\n[[crates]]\nname = \"my-app\"\ndump = \"d\"\n", "crates[0].name"},
		{"duplicate", "[package]\nname = \"a\"\n[[crates]]\nname = \"a\"\nprimary = true\ndump = \"d\"\n[[crates]]\nname = \"a\"\ndump = \"d\"\n", "crates[1].name"},
		{"no source", "[package]\nname = \"a\"\n[[crates]]\nname = \"a\"\n", "crates[0].dump"},
		{"bad shell", "[package]\nname = \"a\"\n[[crates]]\nname = \"a\"\ndump = \"d\"\n[tools]\nshell = \"fish\"\n", "tools.shell"},
		{"no primary", "[package]\nname = \"a\"\n[[crates]]\nname = \"a\"\ndump = \"d\"\n[[crates]]\nname = \"b\"\ndump = \"d\"\n", "crates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc, "bridgegen.toml")
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cerr.Key != tt.key {
				t.Fatalf("key = %q, want %q (%v)", cerr.Key, tt.key, err)
			}
		})
	}
}

func TestLoadFromDirWalksUp(t *testing.T) {
	root := t.TempDir()
	manifest := "[package]\nname = \"a\"\n[[crates]]\nname = \"a\"\ndump = \"a.json\"\n"
	if err := os.WriteFile(filepath.Join(root, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "lib", "src")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromDir(nested)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	if cfg.Root != root {
		t.Fatalf("Root = %q, want %q", cfg.Root, root)
	}

	if _, err := LoadFromDir(t.TempDir()); !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.rs")
	if _, ok, err := DigestFile(path); ok || err != nil {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}
	if err := os.WriteFile(path, []byte("fn main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, ok, err := DigestFile(path)
	if err != nil || !ok || d != DigestBytes([]byte("fn main() {}")) {
		t.Fatalf("digest mismatch: ok=%v err=%v", ok, err)
	}
}

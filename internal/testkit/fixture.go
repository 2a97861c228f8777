package testkit

import (
	"os"
	"path/filepath"
	"testing"

	"bridgegen/internal/raw"
)

// Crate wraps item JSON into a dumped crate document.
func Crate(name, items string) string {
	return `{"crate": "` + name + `", "items": [` + items + `]}`
}

// APICrate is Crate with items placed in a public `api` module.
func APICrate(name, items string) string {
	return Crate(name, `{"kind": "mod", "name": "api", "vis": "pub", "items": [`+items+`]}`)
}

// DecodePack decodes crate documents into a raw pack.
func DecodePack(tb testing.TB, docs ...string) *raw.Pack {
	tb.Helper()
	pack := raw.NewPack()
	for _, d := range docs {
		f, err := raw.DecodeBytes([]byte(d))
		if err != nil {
			tb.Fatalf("decode fixture: %v", err)
		}
		pack.Add(f)
	}
	return pack
}

// Project is an on-disk project: a manifest plus pre-dumped crates.
type Project struct {
	Root     string
	Manifest string
}

// Path joins slash-separated rel onto the project root.
func (p Project) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// ReadFile reads a project file, failing the test when it is missing.
func (p Project) ReadFile(tb testing.TB, rel string) []byte {
	tb.Helper()
	data, err := os.ReadFile(p.Path(rel))
	if err != nil {
		tb.Fatalf("read %s: %v", rel, err)
	}
	return data
}

// WriteProject lays out a project in a temp dir. dumps maps crate names to
// their documents, written as dumps/<crate>.json.
func WriteProject(tb testing.TB, manifest string, dumps map[string]string) Project {
	tb.Helper()
	p := Project{Root: tb.TempDir()}
	p.Manifest = p.Path("bridgegen.toml")
	write(tb, p.Manifest, manifest)
	for name, doc := range dumps {
		write(tb, p.Path("dumps/"+name+".json"), doc)
	}
	return p
}

func write(tb testing.TB, path, content string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatal(err)
	}
}

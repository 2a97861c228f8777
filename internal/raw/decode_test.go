package raw

import (
	"bytes"
	"strings"
	"testing"
)

const sampleCrate = `{
  "crate": "app",
  "items": [
    {"kind": "mod", "name": "api", "vis": "pub", "items": [
      {"kind": "struct", "name": "Point", "vis": "pub", "shape": "named",
       "fields": [{"name": "x", "vis": "pub", "type": "f64"}, {"name": "y", "vis": "pub", "type": "f64"}]},
      {"kind": "fn", "name": "add", "vis": "pub",
       "fn": {"params": [{"name": "a", "type": "Point"}, {"name": "b", "type": "&Point"}], "ret": "Point"}},
      {"kind": "struct", "name": "Engine", "vis": "pub", "attrs": [{"path": "bridge", "args": ["opaque"]}]},
      {"kind": "use", "vis": "pub", "use": "crate::models::{Color, Shape as Figure}"}
    ]}
  ]
}`

func TestDecodeSample(t *testing.T) {
	f, err := DecodeBytes([]byte(sampleCrate))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Crate != "app" || len(f.Items) != 1 {
		t.Fatalf("unexpected file: %+v", f)
	}
	api := f.Items[0]
	if api.Kind != ItemMod || len(api.Items) != 4 {
		t.Fatalf("expected api module with 4 items, got %+v", api)
	}
	add := api.Items[1]
	if add.Fn == nil || len(add.Fn.Params) != 2 || add.Fn.Params[1].Type.Kind != TypeRef {
		t.Fatalf("unexpected add signature: %+v", add.Fn)
	}
	engine := api.Items[2]
	if opts := engine.Bridge(); !opts.Present || !opts.Opaque {
		t.Fatalf("expected opaque bridge options, got %+v", opts)
	}
	use := api.Items[3].Use
	if len(use) != 2 || use[1].Name() != "Figure" {
		t.Fatalf("unexpected use tree: %v", use)
	}
}

func TestEncodeDecodeKeepsTypeText(t *testing.T) {
	f, err := DecodeBytes([]byte(sampleCrate))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(buf.String(), `"ret": "Point"`) {
		t.Fatalf("encoded output lost type text:\n%s", buf.String())
	}
	again, err := DecodeBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("decode encoded: %v", err)
	}
	if got := again.Items[0].Items[1].Fn.Ret.String(); got != "Point" {
		t.Fatalf("ret type = %q", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no crate", `{"items": []}`, "missing crate name"},
		{"unknown field", `{"crate": "a", "items": [], "extra": 1}`, "unknown field"},
		{"fn without sig", `{"crate": "a", "items": [{"kind": "fn", "name": "f"}]}`, "missing signature"},
		{"alias without target", `{"crate": "a", "items": [{"kind": "type", "name": "T"}]}`, "missing target"},
		{"bad kind", `{"crate": "a", "items": [{"kind": "widget"}]}`, "unknown item kind"},
		{"bad type", `{"crate": "a", "items": [{"kind": "type", "name": "T", "target": "Vec<"}]}`, "syntax error"},
		{"untyped field", `{"crate": "a", "items": [{"kind": "struct", "name": "S", "fields": [{"name": "x"}]}]}`, "has no type"},
		{"nested", `{"crate": "a", "items": [{"kind": "mod", "name": "m", "items": [{"kind": "fn", "name": "g"}]}]}`, "mod m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.doc))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestBridgeOptionsMirrors(t *testing.T) {
	it := Item{Attrs: []Attr{
		{Path: "derive", Args: []string{"Clone"}},
		{Path: "bridge", Args: []string{"sync", "mirror(ext::Color, ext::Shade)"}},
	}}
	opts := it.Bridge()
	if !opts.Sync || len(opts.Mirrors) != 2 || opts.Mirrors[1] != "ext::Shade" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if !it.HasAttr("derive") || it.HasAttr("serde") {
		t.Fatalf("HasAttr mismatch")
	}
}

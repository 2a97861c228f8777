package hir_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"bridgegen/internal/diag"
	"bridgegen/internal/hir"
	"bridgegen/internal/raw"
	"bridgegen/internal/testkit"
)

func build(t *testing.T, cfg hir.Config, docs ...string) (*hir.Pack, error) {
	t.Helper()
	pack := testkit.DecodePack(t, docs...)
	return hir.Build(context.Background(), cfg, pack)
}

func mustBuild(t *testing.T, cfg hir.Config, docs ...string) *hir.Pack {
	t.Helper()
	p, err := build(t, cfg, docs...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return p
}

var appConfig = hir.Config{Primary: []string{"app"}, BridgeModules: []string{"app::api"}}

func paths(items []*hir.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path.String()
	}
	return out
}

func hasDiag(p *hir.Pack, code diag.Code, item string) bool {
	for _, d := range p.Diagnostics() {
		if d.Code == code && d.Location.Item == item {
			return true
		}
	}
	return false
}

const visibilityCrate = `{"crate": "app", "items": [
  {"kind": "mod", "name": "api", "vis": "pub", "items": [
    {"kind": "fn", "name": "add", "vis": "pub", "fn": {"params": [{"name": "a", "type": "i32"}], "ret": "i32"}},
    {"kind": "fn", "name": "helper", "fn": {}},
    {"kind": "fn", "name": "scoped", "vis": "pub(crate)", "fn": {}},
    {"kind": "mod", "name": "hidden", "items": [
      {"kind": "fn", "name": "deep", "vis": "pub", "fn": {}}
    ]},
    {"kind": "const", "name": "LIMIT", "vis": "pub"},
    {"kind": "fn", "name": "skipped", "vis": "pub", "attrs": [{"path": "bridge", "args": ["ignore"]}], "fn": {}}
  ]},
  {"kind": "fn", "name": "outside", "vis": "pub", "fn": {}},
  {"kind": "fn", "name": "tagged", "vis": "pub", "attrs": [{"path": "bridge"}], "fn": {}},
  {"kind": "mod", "name": "third_party", "vis": "pub", "items": []}
]}`

func TestBridgedFunctionsRespectVisibility(t *testing.T) {
	p := mustBuild(t, appConfig, visibilityCrate)
	got := paths(p.BridgedFunctions())
	want := []string{"app::tagged", "app::api::add"}
	if !slices.Equal(got, want) {
		t.Fatalf("bridged = %v, want %v", got, want)
	}
	for _, it := range p.BridgedFunctions() {
		if it.Vis != hir.VisPublic {
			t.Fatalf("bridged item %s has effective visibility %s", it.Path, it.Vis)
		}
	}
	deep := p.Crate("app").Module("api.hidden").Func("deep")
	if deep == nil || deep.Vis != hir.VisPrivate || deep.DeclaredVis != hir.VisPublic {
		t.Fatalf("deep: unexpected %+v", deep)
	}
	checks := []struct {
		code diag.Code
		item string
	}{
		{diag.ResUnbridgedItem, "helper"},
		{diag.ResUnbridgedItem, "deep"},
		{diag.ResIgnoredItem, "LIMIT"},
		{diag.ResIgnoredItem, "skipped"},
		{diag.ResThirdPartySkipped, "third_party"},
	}
	for _, c := range checks {
		if !hasDiag(p, c.code, c.item) {
			t.Errorf("missing %s diagnostic for %s", c.code.ID(), c.item)
		}
	}
	if p.Crate("app").Module("api").Func("skipped") != nil {
		t.Fatalf("ignored item must not be classified")
	}
}

const raisedCrate = `{"crate": "app", "items": [
  {"kind": "mod", "name": "api", "vis": "pub", "items": [
    {"kind": "use", "vis": "pub", "use": "self::inner::hello"},
    {"kind": "use", "vis": "pub", "use": "self::inner::Counter"},
    {"kind": "mod", "name": "inner", "items": [
      {"kind": "fn", "name": "hello", "vis": "pub", "fn": {"ret": "String"}},
      {"kind": "fn", "name": "unseen", "vis": "pub", "fn": {}},
      {"kind": "struct", "name": "Counter", "vis": "pub", "shape": "named", "fields": [{"name": "n", "vis": "pub", "type": "u32"}]},
      {"kind": "impl", "impl": {"self": "Counter", "items": [
        {"kind": "fn", "name": "bump", "vis": "pub", "fn": {"receiver": "&mut self"}}
      ]}}
    ]}
  ]}
]}`

func TestReexportedFunctionsAreBridged(t *testing.T) {
	p := mustBuild(t, appConfig, raisedCrate)
	got := paths(p.BridgedFunctions())
	for _, want := range []string{"app::api::inner::hello", "app::api::inner::Counter::bump"} {
		if !slices.Contains(got, want) {
			t.Fatalf("bridged = %v, want %s", got, want)
		}
	}
	if slices.Contains(got, "app::api::inner::unseen") {
		t.Fatalf("unseen is private but bridged")
	}
	if hasDiag(p, diag.ResUnbridgedItem, "hello") {
		t.Fatalf("re-exported hello reported as unreachable")
	}
	if !hasDiag(p, diag.ResUnbridgedItem, "unseen") {
		t.Fatalf("missing %s diagnostic for unseen", diag.ResUnbridgedItem.ID())
	}
}

const chainCrate = `{"crate": "app", "items": [
  {"kind": "mod", "name": "models", "items": [
    {"kind": "struct", "name": "Point", "vis": "pub", "shape": "named",
     "fields": [{"name": "x", "vis": "pub", "type": "f64"}, {"name": "y", "vis": "pub", "type": "f64"}]},
    {"kind": "struct", "name": "Secret", "shape": "unit"}
  ]},
  {"kind": "mod", "name": "shapes", "vis": "pub", "items": [
    {"kind": "use", "vis": "pub", "use": "crate::models::Point"}
  ]},
  {"kind": "mod", "name": "api", "vis": "pub", "items": [
    {"kind": "use", "vis": "pub", "use": "crate::shapes::Point as Pt"},
    {"kind": "use", "vis": "pub", "use": "serde::Serialize"},
    {"kind": "use", "use": "super::models::*"},
    {"kind": "fn", "name": "origin", "vis": "pub", "fn": {"ret": "Pt"}}
  ]}
]}`

func TestReexportChainResolvesToCanonicalItem(t *testing.T) {
	p := mustBuild(t, appConfig, chainCrate)
	it, err := p.Lookup("app::api::Pt")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got := it.Path.String(); got != "app::models::Point" {
		t.Fatalf("resolved to %s", got)
	}
	if it.Vis != hir.VisPublic {
		t.Fatalf("re-exported item should be reachable, vis = %s", it.Vis)
	}
	api := p.Crate("app").Module("api")
	if api.Reexports[0].Target == nil || api.Reexports[0].Target.String() != "app::models::Point" {
		t.Fatalf("edge target = %v", api.Reexports[0].Target)
	}
	if !api.Reexports[1].External {
		t.Fatalf("serde edge should be external")
	}

	origin := api.Func("origin")
	res, err := p.ResolveType(api.Ref(), origin.Func.Ret.Path)
	if err != nil || res.Item != it {
		t.Fatalf("ResolveType(Pt) = %+v, %v", res, err)
	}
	res, err = p.ResolveType(api.Ref(), raw.MustParseType("std::collections::HashMap<u8, u8>").Path)
	if err != nil || res.External == "" {
		t.Fatalf("std path should be external, got %+v, %v", res, err)
	}

	// globs only import names visible to the importer
	if _, err := p.ResolveType(api.Ref(), raw.MustParseType("Secret").Path); !errors.Is(err, hir.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := p.ResolveType(api.Ref(), raw.MustParseType("super::models::Secret").Path); !errors.Is(err, hir.ErrPrivate) {
		t.Fatalf("expected private error, got %v", err)
	}
	if _, err := p.Lookup("app::api::Missing"); !errors.Is(err, hir.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReexportFailures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "cycle",
			doc: `{"crate": "app", "items": [
			  {"kind": "mod", "name": "a", "vis": "pub", "items": [{"kind": "use", "vis": "pub", "use": "crate::b::X"}]},
			  {"kind": "mod", "name": "b", "vis": "pub", "items": [{"kind": "use", "vis": "pub", "use": "crate::a::X"}]}
			]}`,
			want: hir.ErrCyclicReexport,
		},
		{
			name: "self cycle through alias",
			doc: `{"crate": "app", "items": [
			  {"kind": "use", "vis": "pub", "use": "self::Y as X"},
			  {"kind": "use", "vis": "pub", "use": "self::X as Y"}
			]}`,
			want: hir.ErrCyclicReexport,
		},
		{
			name: "missing target",
			doc: `{"crate": "app", "items": [
			  {"kind": "mod", "name": "models", "vis": "pub", "items": []},
			  {"kind": "use", "vis": "pub", "use": "crate::models::Missing"}
			]}`,
			want: hir.ErrUnknownReexportTarget,
		},
		{
			name: "private target",
			doc: `{"crate": "app", "items": [
			  {"kind": "mod", "name": "models", "vis": "pub", "items": [
			    {"kind": "mod", "name": "inner", "items": [{"kind": "struct", "name": "S"}]}
			  ]},
			  {"kind": "use", "vis": "pub", "use": "crate::models::inner::S"}
			]}`,
			want: hir.ErrUnknownReexportTarget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, appConfig, tt.doc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var rerr *hir.ResolutionError
			if !errors.As(err, &rerr) || rerr.Crate != "app" {
				t.Fatalf("expected ResolutionError for app, got %#v", err)
			}
		})
	}
}

func TestGlobCycleTerminates(t *testing.T) {
	doc := `{"crate": "app", "items": [
	  {"kind": "mod", "name": "a", "vis": "pub", "items": [{"kind": "use", "vis": "pub", "use": "crate::b::*"}]},
	  {"kind": "mod", "name": "b", "vis": "pub", "items": [
	    {"kind": "use", "vis": "pub", "use": "crate::a::*"},
	    {"kind": "struct", "name": "Here", "vis": "pub"}
	  ]}
	]}`
	p := mustBuild(t, appConfig, doc)
	if _, err := p.Lookup("app::a::Nowhere"); !errors.Is(err, hir.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	it, err := p.Lookup("app::a::Here")
	if err != nil || it.Path.String() != "app::b::Here" {
		t.Fatalf("glob lookup = %v, %v", it, err)
	}
}

const extCrate = `{"crate": "ext", "items": [
  {"kind": "struct", "name": "Color", "shape": "named", "fields": [{"name": "r", "type": "u8"}]},
  {"kind": "struct", "name": "Plain", "shape": "unit"}
]}`

func TestMirrorLinksPrivateTarget(t *testing.T) {
	app := `{"crate": "app", "items": [
	  {"kind": "mod", "name": "api", "vis": "pub", "items": [
	    {"kind": "struct", "name": "_Color", "vis": "pub", "attrs": [{"path": "bridge", "args": ["mirror(ext::Color)"]}],
	     "shape": "named", "fields": [{"name": "r", "vis": "pub", "type": "u8"}]}
	  ]}
	]}`
	cfg := appConfig
	cfg.Dependencies = []string{"ext"}
	p := mustBuild(t, cfg, app, extCrate)
	m := p.Crate("app").Module("api").Type("_Color")
	if m.Mirror == nil || m.Mirror.String() != "ext::Color" {
		t.Fatalf("mirror = %v", m.Mirror)
	}
	if !p.IsMirrorTarget(*m.Mirror) {
		t.Fatalf("ext::Color should be a mirror target")
	}
	if _, err := p.Lookup("ext::Color"); err != nil {
		t.Fatalf("mirror target must stay visible: %v", err)
	}
	if _, err := p.Lookup("ext::Plain"); !errors.Is(err, hir.ErrPrivate) {
		t.Fatalf("private non-mirror item must be hidden, got %v", err)
	}
}

func TestUnknownMirrorTarget(t *testing.T) {
	for _, target := range []string{"ext::Nope", "std::string::String", "ext"} {
		t.Run(target, func(t *testing.T) {
			app := `{"crate": "app", "items": [
			  {"kind": "struct", "name": "M", "vis": "pub", "attrs": [{"path": "bridge", "args": ["mirror(` + target + `)"]}]}
			]}`
			_, err := build(t, appConfig, app, extCrate)
			if !errors.Is(err, hir.ErrUnknownMirrorTarget) {
				t.Fatalf("expected unknown mirror target, got %v", err)
			}
		})
	}
}

func TestDuplicates(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "two functions",
			doc: `{"crate": "app", "items": [
			  {"kind": "fn", "name": "f", "vis": "pub", "fn": {}},
			  {"kind": "fn", "name": "f", "fn": {}}
			]}`,
			want: hir.ErrDuplicateItem,
		},
		{
			name: "struct and module",
			doc: `{"crate": "app", "items": [
			  {"kind": "struct", "name": "api"},
			  {"kind": "mod", "name": "api", "items": []}
			]}`,
			want: hir.ErrDuplicateItem,
		},
		{
			name: "field",
			doc: `{"crate": "app", "items": [
			  {"kind": "struct", "name": "S", "shape": "named", "fields": [{"name": "a", "type": "u8"}, {"name": "a", "type": "u16"}]}
			]}`,
			want: hir.ErrDuplicateMember,
		},
		{
			name: "variant",
			doc: `{"crate": "app", "items": [
			  {"kind": "enum", "name": "E", "variants": [{"name": "A"}, {"name": "A"}]}
			]}`,
			want: hir.ErrDuplicateMember,
		},
		{
			name: "method",
			doc: `{"crate": "app", "items": [
			  {"kind": "struct", "name": "S", "vis": "pub"},
			  {"kind": "impl", "impl": {"self": "S", "items": [{"kind": "fn", "name": "m", "fn": {}}]}},
			  {"kind": "impl", "impl": {"self": "S", "items": [{"kind": "fn", "name": "m", "fn": {}}]}}
			]}`,
			want: hir.ErrDuplicateItem,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := build(t, appConfig, tt.doc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// a function and a struct live in different namespaces
	ok := `{"crate": "app", "items": [
	  {"kind": "struct", "name": "thing"},
	  {"kind": "fn", "name": "thing", "fn": {}}
	]}`
	if _, err := build(t, appConfig, ok); err != nil {
		t.Fatalf("different namespaces must not clash: %v", err)
	}
}

const methodsCrate = `{"crate": "app", "items": [
  {"kind": "mod", "name": "api", "vis": "pub", "items": [
    {"kind": "struct", "name": "Point", "vis": "pub", "shape": "named", "fields": [{"name": "x", "vis": "pub", "type": "f64"}]},
    {"kind": "impl", "impl": {"self": "Point", "items": [
      {"kind": "fn", "name": "new", "vis": "pub", "fn": {"params": [{"name": "x", "type": "f64"}], "ret": "Self"}},
      {"kind": "fn", "name": "norm", "vis": "pub", "fn": {"receiver": "&self", "ret": "f64"}},
      {"kind": "fn", "name": "internal", "fn": {"receiver": "&self"}}
    ]}},
    {"kind": "impl", "impl": {"self": "Point", "trait": "Clone", "items": [
      {"kind": "fn", "name": "clone", "fn": {"receiver": "&self", "ret": "Self"}}
    ]}},
    {"kind": "fn", "name": "load", "vis": "pub", "fn": {"ret": "Result<Point, String>"}},
    {"kind": "fn", "name": "count", "vis": "pub", "fn": {"async": true, "ret": "anyhow::Result<u32>"}},
    {"kind": "fn", "name": "now", "vis": "pub", "attrs": [{"path": "bridge", "args": ["sync"]}], "fn": {"ret": "Result<(), String>"}}
  ]}
]}`

func TestMethodsAndSignatures(t *testing.T) {
	p := mustBuild(t, appConfig, methodsCrate)
	point, err := p.Lookup("app::api::Point")
	if err != nil {
		t.Fatalf("lookup Point: %v", err)
	}
	methods := p.Methods(point.Path)
	if got := paths(methods); !slices.Equal(got, []string{"app::api::Point::new", "app::api::Point::norm", "app::api::Point::internal"}) {
		t.Fatalf("methods = %v", got)
	}
	if !methods[0].Bridged || !methods[1].Bridged || methods[2].Bridged {
		t.Fatalf("unexpected bridged flags: %v %v %v", methods[0].Bridged, methods[1].Bridged, methods[2].Bridged)
	}
	if methods[1].Func.Receiver != raw.RecvRef || !methods[1].Func.IsMethod() {
		t.Fatalf("norm receiver = %q", methods[1].Func.Receiver)
	}
	if it, err := p.Lookup("app::api::Point::norm"); err != nil || it != methods[1] {
		t.Fatalf("method lookup = %v, %v", it, err)
	}
	if !hasDiag(p, diag.ResIgnoredItem, "Point") {
		t.Fatalf("trait impl should be reported as ignored")
	}

	api := p.Crate("app").Module("api")
	load := api.Func("load").Func
	if !load.Fallible || load.Ret.String() != "Point" || load.Err.String() != "String" || load.Mode != hir.ExecNormal {
		t.Fatalf("load = %+v", load)
	}
	count := api.Func("count").Func
	if !count.Fallible || count.Err != nil || count.Ret.String() != "u32" || count.Mode != hir.ExecAsync {
		t.Fatalf("count = %+v", count)
	}
	now := api.Func("now").Func
	if !now.Fallible || now.Ret != nil || now.Mode != hir.ExecSync {
		t.Fatalf("now = %+v", now)
	}
}

func TestMissingPrimaryCrate(t *testing.T) {
	_, err := build(t, hir.Config{Primary: []string{"ghost"}}, extCrate)
	if !errors.Is(err, hir.ErrUnknownCrate) {
		t.Fatalf("expected unknown crate, got %v", err)
	}
	p := mustBuild(t, hir.Config{Primary: []string{"ext"}, Dependencies: []string{"ghost"}}, extCrate)
	if !hasDiag(p, diag.ResUnknownCrate, "") {
		t.Fatalf("missing dependency should be a warning")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	cfg := appConfig
	cfg.Dependencies = []string{"ext"}
	var dumps, encodings []string
	for _, jobs := range []int{1, 4, 1} {
		cfg.Jobs = jobs
		p := mustBuild(t, cfg, chainCrate, extCrate)
		var text, bin bytes.Buffer
		if err := hir.Dump(&text, p); err != nil {
			t.Fatalf("dump: %v", err)
		}
		if err := hir.Encode(&bin, p); err != nil {
			t.Fatalf("encode: %v", err)
		}
		dumps = append(dumps, text.String())
		encodings = append(encodings, bin.String())
	}
	for i := 1; i < len(dumps); i++ {
		if dumps[i] != dumps[0] {
			t.Fatalf("dump %d differs:\n%s\nvs\n%s", i, dumps[i], dumps[0])
		}
		if encodings[i] != encodings[0] {
			t.Fatalf("encoding %d differs", i)
		}
	}
	if !bytes.Contains([]byte(dumps[0]), []byte("use [pub] crate::shapes::Point as Pt -> app::models::Point")) {
		t.Fatalf("dump lacks resolved edge:\n%s", dumps[0])
	}
}

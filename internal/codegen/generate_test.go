package codegen_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"bridgegen/internal/codegen"
	"bridgegen/internal/diag"
	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
	"bridgegen/internal/testkit"
)

func lowerApp(t *testing.T, items string) *mir.Document {
	t.Helper()
	pack := testkit.DecodePack(t, testkit.APICrate("app", items))
	hp, err := hir.Build(context.Background(), hir.Config{Primary: []string{"app"}, BridgeModules: []string{"app::api"}}, pack)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	d, err := mir.Lower(hp, mir.Options{})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return d
}

func generate(t *testing.T, items string) *codegen.Output {
	t.Helper()
	out, err := codegen.Generate(lowerApp(t, items), codegen.Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return out
}

func mustContain(t *testing.T, what string, src []byte, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !bytes.Contains(src, []byte(w)) {
			t.Fatalf("%s lacks %q:\n%s", what, w, src)
		}
	}
}

const pointItems = `
  {"kind": "struct", "name": "Point", "vis": "pub", "shape": "named",
   "fields": [{"name": "x", "vis": "pub", "type": "f64"}, {"name": "y", "vis": "pub", "type": "f64"}]},
  {"kind": "fn", "name": "add", "vis": "pub", "fn": {"params": [{"name": "a", "type": "Point"}, {"name": "b", "type": "Point"}], "ret": "Point"}},
  {"kind": "impl", "impl": {"self": "Point", "items": [
    {"kind": "fn", "name": "norm", "vis": "pub", "fn": {"receiver": "&self", "ret": "f64"}}
  ]}}`

func TestPointScenario(t *testing.T) {
	out := generate(t, pointItems)

	mustContain(t, "native glue", out.Native,
		"pub struct wire_cst_Point {",
		"pub extern \"C\" fn frbgen_app_wire_add(port_: i64, a: wire_cst_Point, b: wire_cst_Point) {",
		"crate::api::add(api_a, api_b)",
		"crate::api::Point::norm(&api_that)",
		"impl CstDecode<crate::api::Point> for wire_cst_Point {",
		"impl IntoWire<wire_cst_Point> for crate::api::Point {",
	)
	mustContain(t, "managed bindings", out.Managed,
		"class Point {",
		"final double x;",
		"Future<Point> add({required Point a, required Point b}) {",
		"Future<double> pointNorm({required Point that}) {",
		"_wire.frbgen_app_wire_add(port, aWire.ref, bWire.ref);",
	)
	header := codegen.RenderHeader(out.Description)
	mustContain(t, "header", header,
		"struct wire_cst_Point {",
		"  double x;",
		"void frbgen_app_wire_add(int64_t port_, wire_cst_Point a, wire_cst_Point b);",
		"#endif // BRIDGEGEN_APP_H",
	)
	// a by-value result is posted as one C allocation and freed by the managed side
	mustContain(t, "native glue", out.Native, "bridge_runtime::new_leak_plain_ptr(IntoWire::<wire_cst_Point>::into_wire(")
	mustContain(t, "managed bindings", out.Managed, "malloc.free(ptr);")
	mustLack(t, "native glue", out.Native, "drop_Point")
	mustLack(t, "managed bindings", out.Managed, "_drop_Point")
}

func mustLack(t *testing.T, what string, src []byte, unwanted ...string) {
	t.Helper()
	for _, u := range unwanted {
		if bytes.Contains(src, []byte(u)) {
			t.Fatalf("%s contains %q:\n%s", what, u, src)
		}
	}
}

const plainItems = `
  {"kind": "struct", "name": "Point", "vis": "pub", "shape": "named",
   "fields": [{"name": "x", "vis": "pub", "type": "f64"}, {"name": "y", "vis": "pub", "type": "f64"}]},
  {"kind": "struct", "name": "Segment", "vis": "pub", "shape": "named",
   "fields": [{"name": "head", "vis": "pub", "type": "Point"}, {"name": "tail", "vis": "pub", "type": "Point"}]},
  {"kind": "enum", "name": "Shape", "vis": "pub", "variants": [
    {"name": "Empty", "shape": "unit"},
    {"name": "Line", "shape": "named", "fields": [{"name": "seg", "type": "Segment"}]}
  ]},
  {"kind": "fn", "name": "span", "vis": "pub", "attrs": [{"path": "bridge", "args": ["sync"]}],
   "fn": {"params": [{"name": "a", "type": "Point"}, {"name": "b", "type": "Point"}], "ret": "Segment"}},
  {"kind": "fn", "name": "split", "vis": "pub", "attrs": [{"path": "bridge", "args": ["sync"]}],
   "fn": {"params": [{"name": "s", "type": "Segment"}], "ret": "Result<Segment, String>"}},
  {"kind": "fn", "name": "outline", "vis": "pub", "fn": {"params": [{"name": "s", "type": "Segment"}], "ret": "Shape"}}`

func TestPlainResultsHaveNoDisposers(t *testing.T) {
	d := lowerApp(t, plainItems)
	if got := d.Disposable(); len(got) != 0 {
		t.Fatalf("disposable = %v, want none", got)
	}
	out, err := codegen.Generate(d, codegen.Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	mustContain(t, "native glue", out.Native,
		"pub head: wire_cst_Point,",
		"pub seg: wire_cst_Segment,",
		"pub value: wire_cst_Segment,",
		"impl CstDecode<crate::api::Segment> for wire_cst_Segment {",
		"impl CstDecode<crate::api::Segment> for *mut wire_cst_Segment {",
		"impl IntoWire<wire_cst_Shape> for crate::api::Shape {",
		"bridge_runtime::new_leak_plain_ptr(IntoWire::<wire_cst_Segment>::into_wire(",
		"bridge_runtime::new_leak_plain_ptr(IntoWire::<wire_cst_Shape>::into_wire(",
		"pub extern \"C\" fn frbgen_app_drop_result_split(",
	)
	mustContain(t, "managed bindings", out.Managed,
		"_cstFill_Point(raw.head, target.head);",
		"return _cstRead_Segment(raw.ref);",
		"return _cstRead_Segment(raw.ref.value);",
		"malloc.free(raw);",
		"return _cstRead_Shape(ptr.ref);",
		"malloc.free(ptr);",
	)
	for _, item := range []string{"Point", "Segment", "Shape"} {
		mustLack(t, "native glue", out.Native, "frbgen_app_drop_"+item)
		mustLack(t, "managed bindings", out.Managed, "_drop_"+item)
	}
	header := codegen.RenderHeader(out.Description)
	mustContain(t, "header", header, "  wire_cst_Point head;")
	if err := testkit.CheckArtifactInvariants(out); err != nil {
		t.Fatal(err)
	}
}

const ownedItems = `
  {"kind": "use", "use": "std::collections::HashMap"},
  {"kind": "struct", "name": "User", "vis": "pub", "shape": "named",
   "fields": [{"name": "name", "vis": "pub", "type": "String"}, {"name": "tags", "vis": "pub", "type": "HashMap<String, Vec<Option<i32>>>"}]},
  {"kind": "enum", "name": "Color", "vis": "pub", "variants": [{"name": "Red"}, {"name": "Green"}]},
  {"kind": "enum", "name": "Event", "vis": "pub", "variants": [
    {"name": "Quit", "shape": "unit"},
    {"name": "Move", "shape": "tuple", "fields": [{"type": "i32"}, {"type": "i32"}]},
    {"name": "Say", "shape": "named", "fields": [{"name": "text", "type": "String"}, {"name": "color", "type": "Color"}]}
  ]},
  {"kind": "fn", "name": "find", "vis": "pub", "fn": {"params": [{"name": "id", "type": "u64"}], "ret": "Result<Option<User>, String>"}},
  {"kind": "fn", "name": "save", "vis": "pub", "fn": {"params": [{"name": "user", "type": "User"}]}},
  {"kind": "fn", "name": "next_event", "vis": "pub", "fn": {"async": true, "ret": "anyhow::Result<Event>"}},
  {"kind": "fn", "name": "paint", "vis": "pub", "attrs": [{"path": "bridge", "args": ["sync"]}], "fn": {"params": [{"name": "c", "type": "Color"}], "ret": "Color"}}`

func TestDisposersArePairedAcrossArtifacts(t *testing.T) {
	d := lowerApp(t, ownedItems)
	out, err := codegen.Generate(d, codegen.Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	disposable := d.Disposable()
	if len(disposable) != 2 {
		t.Fatalf("disposable = %v, want User and Event", disposable)
	}
	symbols := out.Description.Symbols()
	for _, id := range disposable {
		sym := "frbgen_app_drop_" + id.Symbol
		found := false
		for _, s := range symbols {
			found = found || s == sym
		}
		if !found {
			t.Fatalf("interface lacks %s: %v", sym, symbols)
		}
		mustContain(t, "native glue", out.Native, "pub extern \"C\" fn "+sym+"(")
		mustContain(t, "managed bindings", out.Managed, "wire."+sym+"(ptr);")
		mustContain(t, "ffigen config", out.FfigenConfig, "- "+sym)
	}
	if n := bytes.Count(out.Native, []byte("pub extern \"C\" fn frbgen_app_drop_User(")); n != 1 {
		t.Fatalf("drop_User defined %d times", n)
	}
}

func TestEnumsAndCollections(t *testing.T) {
	out := generate(t, ownedItems)

	mustContain(t, "native glue", out.Native,
		"pub union wire_cst_Event_kind {",
		"pub Move: wire_cst_Event_Move,",
		"impl CstDecode<crate::api::Color> for i32 {",
		"1 => crate::api::Color::Green,",
		"crate::api::Event::Say { text, color } =>",
		"pub struct wire_cst_map_String_list_opt_prim_i_32 {",
		"pub extern \"C\" fn frbgen_app_cst_new_list_prim_u_8(len: i32) -> *mut wire_cst_list_prim_u_8 {",
		"pub extern \"C\" fn frbgen_app_cst_new_box_prim_i_32() -> *mut i32 {",
		"bridge_runtime::handle_async(port_, async move {",
		"crate::api::next_event().await",
		"Err(err_) => Err(IntoWire::<*mut wire_cst_list_prim_u_8>::into_wire(err_.to_string())),",
		"pub extern \"C\" fn frbgen_app_wire_paint(c: i32) -> i32 {",
	)
	mustContain(t, "managed bindings", out.Managed,
		"enum Color {",
		"sealed class Event {",
		"final class Event_Move extends Event {",
		"const Event_Move(this.field0, this.field1);",
		"const Event_Say({required this.text, required this.color});",
		"Future<User?> find({required int id}) {",
		"Color paint({required Color c}) {",
		"return Color.values[_wire.frbgen_app_wire_paint(c.index)];",
		"decodeError: _take_String,",
	)
	// ffigen keeps the header's own struct and union names
	mustContain(t, "ffigen config", out.FfigenConfig, "name: BridgeWire", "- wire_cst_Event_kind", "entry-points:")
}

const opaqueItems = `
  {"kind": "struct", "name": "Engine", "vis": "pub", "attrs": [{"path": "bridge", "args": ["opaque"]}], "shape": "named",
   "fields": [{"name": "pool", "type": "std::sync::Arc<Pool>"}]},
  {"kind": "fn", "name": "start", "vis": "pub", "fn": {"ret": "Engine"}},
  {"kind": "fn", "name": "stats", "vis": "pub", "fn": {"params": [{"name": "e", "type": "&Engine"}], "ret": "Vec<u8>"}}`

func TestOpaqueReleasedExactlyOnce(t *testing.T) {
	out := generate(t, opaqueItems)

	if n := bytes.Count(out.Native, []byte("fn frbgen_app_release_Engine(")); n != 1 {
		t.Fatalf("release defined %d times", n)
	}
	mustContain(t, "native glue", out.Native,
		"unsafe { bridge_runtime::RustOpaque::<crate::api::Engine>::release_raw(ptr) }",
		"bridge_runtime::RustOpaque::new(output_)",
		"crate::api::stats(&*api_e)",
	)
	mustContain(t, "managed bindings", out.Managed,
		"final class Engine implements ffi.Finalizable {",
		"'frbgen_app_release_Engine'",
		"_bridge._finalizerEngine.detach(this);",
		"_bridge._wire.frbgen_app_release_Engine(_ptr);",
		"Future<Uint8List> stats({required Engine e}) {",
	)
	// the finalizer is detached before the explicit release, so only one runs
	dispose := out.Managed[bytes.Index(out.Managed, []byte("void dispose() {")):]
	if bytes.Index(dispose, []byte("detach(this)")) > bytes.Index(dispose, []byte("frbgen_app_release_Engine(_ptr)")) {
		t.Fatalf("dispose releases before detaching the finalizer")
	}
}

const syncItems = `
  {"kind": "fn", "name": "now", "vis": "pub", "attrs": [{"path": "bridge", "args": ["sync"]}], "fn": {"ret": "Result<u64, String>"}},
  {"kind": "fn", "name": "reset", "vis": "pub", "attrs": [{"path": "bridge", "args": ["sync"]}], "fn": {"ret": "Result<(), String>"}}`

func TestSyncFallibleResults(t *testing.T) {
	out := generate(t, syncItems)

	mustContain(t, "native glue", out.Native,
		"pub struct wire_cst_result_now {",
		"pub extern \"C\" fn frbgen_app_wire_now() -> *mut wire_cst_result_now {",
		"pub extern \"C\" fn frbgen_app_drop_result_now(ptr: *mut wire_cst_result_now) {",
		"Ok(_) => wire_cst_result_reset { ok: true, error: unsafe { std::mem::zeroed() } },",
	)
	mustContain(t, "managed bindings", out.Managed,
		"int now() {",
		"_wire.frbgen_app_drop_result_now(raw);",
		"void reset() {",
	)
	if strings.Contains(string(out.Native), "wire_cst_result_reset {\n    pub ok: bool,\n    pub value") {
		t.Fatalf("unit result must not carry a value member")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	items := ownedItems + "," + opaqueItems
	a, b := generate(t, items), generate(t, items)
	pairs := []struct {
		name string
		x, y []byte
	}{
		{"native", a.Native, b.Native},
		{"interface", a.Interface, b.Interface},
		{"ffigen", a.FfigenConfig, b.FfigenConfig},
		{"managed", a.Managed, b.Managed},
	}
	for _, p := range pairs {
		if !bytes.Equal(p.x, p.y) {
			t.Fatalf("%s output differs between runs", p.name)
		}
	}
}

func TestInterfaceRoundTripsThroughHeader(t *testing.T) {
	out := generate(t, ownedItems)
	parsed, err := codegen.ParseInterface(out.Interface)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(codegen.RenderHeader(parsed), codegen.RenderHeader(out.Description)) {
		t.Fatalf("header differs after reparsing the description")
	}
	if _, err := codegen.ParseInterface([]byte(`{"version": 99}`)); err == nil {
		t.Fatalf("unknown description version accepted")
	}
}

func TestEmissionErrors(t *testing.T) {
	_, err := codegen.Generate(nil, codegen.Options{})
	var ee *codegen.EmissionError
	if !errors.As(err, &ee) || !errors.Is(err, codegen.ErrInvalidDocument) {
		t.Fatalf("nil document: %v", err)
	}
	if ee.Code() != diag.EmtInvalidDocument {
		t.Fatalf("code = %s", ee.Code().ID())
	}

	tool := &codegen.EmissionError{Collaborator: "ffigen", Err: errors.New("exit status 1"), Output: "missing header"}
	if !errors.Is(tool, codegen.ErrCollaboratorFailed) || errors.Is(tool, codegen.ErrInvalidDocument) {
		t.Fatalf("collaborator error matched the wrong sentinel")
	}
	if !strings.Contains(tool.Error(), "missing header") {
		t.Fatalf("collaborator output dropped: %q", tool.Error())
	}
}

const sharedItems = `
  {"kind": "struct", "name": "Config", "vis": "pub", "shape": "named",
   "fields": [{"name": "name", "vis": "pub", "type": "String"}]},
  {"kind": "fn", "name": "load", "vis": "pub", "fn": {"ret": "Config"}}`

func TestPrimaryCratesSharingItemNames(t *testing.T) {
	cfg := hir.Config{Primary: []string{"alpha", "beta"}, BridgeModules: []string{"alpha::api", "beta::api"}}
	pack := testkit.DecodePack(t, testkit.APICrate("alpha", sharedItems), testkit.APICrate("beta", sharedItems))
	hp, err := hir.Build(context.Background(), cfg, pack)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	d, err := mir.Lower(hp, mir.Options{})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	out, err := codegen.Generate(d, codegen.Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	mustContain(t, "native glue", out.Native,
		"pub struct wire_cst_alpha__Config {",
		"pub struct wire_cst_beta__Config {",
		"pub extern \"C\" fn frbgen_alpha_wire_alpha__load(port_: i64) {",
		"pub extern \"C\" fn frbgen_beta_wire_beta__load(port_: i64) {",
		"pub extern \"C\" fn frbgen_alpha_drop_alpha__Config(",
		"pub extern \"C\" fn frbgen_beta_drop_beta__Config(",
	)
	mustContain(t, "managed bindings", out.Managed,
		"class AlphaConfig {",
		"class BetaConfig {",
		"Future<AlphaConfig> alphaLoad() {",
		"Future<BetaConfig> betaLoad() {",
	)
	if err := testkit.CheckArtifactInvariants(out); err != nil {
		t.Fatal(err)
	}
}

package mir_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"bridgegen/internal/diag"
	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
	"bridgegen/internal/testkit"
	"bridgegen/internal/types"
)

var appConfig = hir.Config{Primary: []string{"app"}, BridgeModules: []string{"app::api"}}

func lower(t *testing.T, docs ...string) (*mir.Document, error) {
	t.Helper()
	pack := testkit.DecodePack(t, docs...)
	hp, err := hir.Build(context.Background(), appConfig, pack)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return mir.Lower(hp, mir.Options{})
}

func mustLower(t *testing.T, docs ...string) *mir.Document {
	t.Helper()
	d, err := lower(t, docs...)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return d
}

// apiCrate wraps items into the app crate's bridge module.
func apiCrate(items string) string {
	return `{"crate": "app", "items": [{"kind": "mod", "name": "api", "vis": "pub", "items": [` + items + `]}]}`
}

func funcKeys(d *mir.Document) []string {
	out := make([]string, len(d.Funcs))
	for i, f := range d.Funcs {
		out[i] = f.Ident.Key
	}
	return out
}

func findFunc(t *testing.T, d *mir.Document, key string) *mir.Func {
	t.Helper()
	for _, f := range d.Funcs {
		if f.Ident.Key == key {
			return f
		}
	}
	t.Fatalf("function %s not lowered; have %v", key, funcKeys(d))
	return nil
}

const pointItems = `
  {"kind": "struct", "name": "Point", "vis": "pub", "shape": "named",
   "fields": [{"name": "x", "vis": "pub", "type": "f64"}, {"name": "y", "vis": "pub", "type": "f64"}]},
  {"kind": "fn", "name": "add", "vis": "pub", "fn": {"params": [{"name": "a", "type": "Point"}, {"name": "b", "type": "Point"}], "ret": "Point"}},
  {"kind": "impl", "impl": {"self": "Point", "items": [
    {"kind": "fn", "name": "norm", "vis": "pub", "fn": {"receiver": "&self", "ret": "f64"}}
  ]}}`

func TestPointScenario(t *testing.T) {
	d := mustLower(t, apiCrate(pointItems))
	if got, want := funcKeys(d), []string{"app::Point::norm", "app::add"}; !slices.Equal(got, want) {
		t.Fatalf("funcs = %v, want %v", got, want)
	}
	if len(d.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(d.Records))
	}
	rec := d.Records[0]
	if rec.Ident.Key != "app::Point" || rec.Ident.Symbol != "Point" || rec.Own != mir.ByValue {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Native != "app::api::Point" || len(rec.Fields) != 2 || rec.Fields[0].Name != "x" {
		t.Fatalf("record layout = %+v", rec)
	}
	add := findFunc(t, d, "app::add")
	if add.Path != "app::api::add" || len(add.Params) != 2 || add.Ret.Type != rec.Type {
		t.Fatalf("add = %+v", add)
	}
	for _, p := range add.Params {
		if p.Type != rec.Type || p.Own != mir.ByValue {
			t.Fatalf("param %s = %+v", p.Name, p.Value)
		}
	}
	norm := findFunc(t, d, "app::Point::norm")
	if norm.Path != "app::api::Point::norm" || norm.Ident.Symbol != "Point__norm" {
		t.Fatalf("norm = %+v", norm)
	}
	if len(norm.Params) != 1 || norm.Params[0].Name != "that" || norm.Params[0].Own != mir.Borrowed {
		t.Fatalf("norm receiver = %+v", norm.Params)
	}
	if norm.Receiver != mir.RecvRef || norm.Owner != rec.Type {
		t.Fatalf("norm owner = %d receiver = %d", norm.Owner, norm.Receiver)
	}
	if len(d.Disposable()) != 0 {
		t.Fatalf("plain data must not need disposers: %v", d.Disposable())
	}
}

const opaqueItems = `
  {"kind": "struct", "name": "Engine", "vis": "pub", "attrs": [{"path": "bridge", "args": ["opaque"]}], "shape": "named",
   "fields": [{"name": "pool", "type": "std::sync::Arc<Pool>"}]},
  {"kind": "fn", "name": "start", "vis": "pub", "fn": {"ret": "Engine"}},
  {"kind": "fn", "name": "stats", "vis": "pub", "fn": {"params": [{"name": "e", "type": "&Engine"}], "ret": "Vec<u8>"}},
  {"kind": "fn", "name": "connect", "vis": "pub", "fn": {"params": [{"name": "url", "type": "&str"}], "ret": "RustOpaque<db::Conn>"}}`

func TestOpaqueHandles(t *testing.T) {
	d := mustLower(t, apiCrate(opaqueItems))
	if len(d.Opaques) != 2 || len(d.Records) != 0 {
		t.Fatalf("opaques = %d records = %d", len(d.Opaques), len(d.Records))
	}
	keys := []string{d.Opaques[0].Ident.Key, d.Opaques[1].Ident.Key}
	if !slices.Equal(keys, []string{"app::Conn", "app::Engine"}) {
		t.Fatalf("opaque keys = %v", keys)
	}
	start := findFunc(t, d, "app::start")
	if start.Ret.Own != mir.Handle || d.Opaque(start.Ret.Type) == nil {
		t.Fatalf("start ret = %+v", start.Ret)
	}
	stats := findFunc(t, d, "app::stats")
	if stats.Params[0].Own != mir.Handle || stats.Params[0].Type != start.Ret.Type {
		t.Fatalf("&Engine = %+v", stats.Params[0])
	}
	if stats.Ret.Type != d.Types.Builtins().Bytes {
		t.Fatalf("Vec<u8> lowered to %s", types.Label(d.Types, stats.Ret.Type))
	}
	conn := findFunc(t, d, "app::connect")
	if conn.Params[0].Type != d.Types.Builtins().String || conn.Params[0].Own != mir.Borrowed {
		t.Fatalf("&str = %+v", conn.Params[0])
	}
	if conn.Ret.Own != mir.Handle || conn.Ret.Native != "RustOpaque<db::Conn>" {
		t.Fatalf("connect ret = %+v", conn.Ret)
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
  {"kind": "type", "name": "UserId", "vis": "pub", "target": "u64"},
  {"kind": "fn", "name": "find", "vis": "pub", "fn": {"params": [{"name": "id", "type": "UserId"}], "ret": "Result<Option<User>, String>"}},
  {"kind": "fn", "name": "next_event", "vis": "pub", "fn": {"async": true, "ret": "anyhow::Result<Event>"}},
  {"kind": "fn", "name": "boxed", "vis": "pub", "fn": {"params": [{"name": "c", "type": "Box<Color>"}]}}`

func TestOwnershipAndShapes(t *testing.T) {
	d := mustLower(t, apiCrate(ownedItems))
	b := d.Types.Builtins()

	find := findFunc(t, d, "app::find")
	if find.Params[0].Type != b.Prim(types.PrimU64) || find.Params[0].Own != mir.ByValue {
		t.Fatalf("alias param = %+v", find.Params[0])
	}
	if !find.Fallible() || find.Err.Type != b.String {
		t.Fatalf("find error = %+v", find.Err)
	}
	opt := d.Types.MustLookup(find.Ret.Type)
	if opt.Kind != types.KindOptional || find.Ret.Own != mir.Owned {
		t.Fatalf("find ret = %s [%s]", types.Label(d.Types, find.Ret.Type), find.Ret.Own)
	}
	user := d.Record(opt.Elem)
	if user == nil || user.Own != mir.Owned {
		t.Fatalf("User must be owned: %+v", user)
	}
	if got := types.Label(d.Types, user.Fields[1].Type); got != "Map<String, Vec<Option<i32>>>" {
		t.Fatalf("tags = %s", got)
	}

	next := findFunc(t, d, "app::next_event")
	if next.Mode != hir.ExecAsync || next.Err == nil || next.Err.Type != b.String {
		t.Fatalf("next_event = %+v", next)
	}
	event := d.Enum(next.Ret.Type)
	if event == nil || event.Own != mir.Owned || event.UnitOnly() {
		t.Fatalf("Event = %+v", event)
	}
	shapes := []types.Shape{types.ShapeUnit, types.ShapeTuple, types.ShapeStruct}
	for i, v := range event.Variants {
		if v.Shape != shapes[i] {
			t.Fatalf("variant %s shape = %s", v.Name, v.Shape)
		}
	}
	if event.Variants[1].Fields[0].Name != "0" || !event.Variants[1].Fields[0].Positional {
		t.Fatalf("tuple variant fields = %+v", event.Variants[1].Fields)
	}

	boxed := findFunc(t, d, "app::boxed")
	color := d.Enum(boxed.Params[0].Type)
	if color == nil || color.Own != mir.ByValue || !color.UnitOnly() || boxed.Params[0].Own != mir.Owned {
		t.Fatalf("Box<Color> = %+v", boxed.Params[0])
	}

	var disposable []string
	for _, id := range d.Disposable() {
		disposable = append(disposable, id.Key)
	}
	if !slices.Equal(disposable, []string{"app::Event", "app::User"}) {
		t.Fatalf("disposable = %v", disposable)
	}
}

const genericItems = `
  {"kind": "struct", "name": "Page", "vis": "pub", "generics": ["T"], "shape": "named",
   "fields": [{"name": "items", "vis": "pub", "type": "Vec<T>"}, {"name": "next", "vis": "pub", "type": "Option<u32>"}]},
  {"kind": "struct", "name": "Node", "vis": "pub", "shape": "named",
   "fields": [{"name": "children", "vis": "pub", "type": "Vec<Node>"}]},
  {"kind": "fn", "name": "numbers", "vis": "pub", "fn": {"ret": "Page<i32>"}},
  {"kind": "fn", "name": "names", "vis": "pub", "fn": {"ret": "Page<String>"}},
  {"kind": "fn", "name": "again", "vis": "pub", "fn": {"ret": "Page<i32>"}},
  {"kind": "fn", "name": "tree", "vis": "pub", "fn": {"ret": "Node"}}`

func TestGenericInstancesAndRecursion(t *testing.T) {
	d := mustLower(t, apiCrate(genericItems))
	var keys []string
	for _, r := range d.Records {
		keys = append(keys, r.Ident.Key)
	}
	if want := []string{"app::Node", "app::Page<String>", "app::Page<i32>"}; !slices.Equal(keys, want) {
		t.Fatalf("records = %v, want %v", keys, want)
	}
	if findFunc(t, d, "app::numbers").Ret.Type != findFunc(t, d, "app::again").Ret.Type {
		t.Fatalf("identical instances must share a TypeID")
	}
	node := d.Record(findFunc(t, d, "app::tree").Ret.Type)
	if node.Own != mir.Owned || node.Fields[0].Own != mir.Owned {
		t.Fatalf("recursive record = %+v", node)
	}
	page := d.Record(findFunc(t, d, "app::numbers").Ret.Type)
	if page.Native != "app::api::Page<i32>" || page.Ident.Symbol != "Page_i32" {
		t.Fatalf("instance = %+v", page.Ident)
	}
}

func TestLoweringFailures(t *testing.T) {
	cases := []struct {
		name  string
		items string
		want  error
	}{
		{"trait object", `{"kind": "fn", "name": "f", "vis": "pub", "fn": {"params": [{"name": "x", "type": "Box<dyn Display>"}]}}`, mir.ErrUnsupportedType},
		{"tuple", `{"kind": "fn", "name": "f", "vis": "pub", "fn": {"ret": "(i32, i32)"}}`, mir.ErrUnsupportedType},
		{"nested result", `{"kind": "fn", "name": "f", "vis": "pub", "fn": {"params": [{"name": "x", "type": "Option<Result<i32, String>>"}]}}`, mir.ErrUnsupportedType},
		{"unknown path", `{"kind": "fn", "name": "f", "vis": "pub", "fn": {"params": [{"name": "x", "type": "Mystery"}]}}`, mir.ErrUnsupportedType},
		{"free generic", `{"kind": "fn", "name": "f", "vis": "pub", "generics": ["T"], "fn": {"params": [{"name": "x", "type": "Vec<T>"}]}}`, mir.ErrUnresolvedGeneric},
		{"mut borrow", `{"kind": "struct", "name": "P", "vis": "pub", "shape": "unit"},
		  {"kind": "fn", "name": "f", "vis": "pub", "fn": {"params": [{"name": "p", "type": "&mut P"}]}}`, mir.ErrConflictingOwnership},
		{"opaque and borrowed", `{"kind": "struct", "name": "P", "vis": "pub", "shape": "unit", "attrs": [{"path": "bridge", "args": ["opaque", "borrowed"]}]},
		  {"kind": "fn", "name": "f", "vis": "pub", "fn": {"params": [{"name": "p", "type": "P"}]}}`, mir.ErrConflictingOwnership},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lower(t, apiCrate(tc.items))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var le *mir.LoweringError
			if !errors.As(err, &le) || le.Item != "app::api::f" {
				t.Fatalf("error location = %+v", le)
			}
		})
	}
}

const collidingCrate = `{"crate": "app", "items": [
  {"kind": "mod", "name": "a", "vis": "pub", "items": [
    {"kind": "fn", "name": "get", "vis": "pub", "attrs": [{"path": "bridge"}], "fn": {"ret": "u8"}}
  ]},
  {"kind": "mod", "name": "b", "vis": "pub", "items": [
    {"kind": "fn", "name": "get", "vis": "pub", "attrs": [{"path": "bridge"}], "fn": {"ret": "u16"}}
  ]}
]}`

func TestCollidingIdentifiersAreDisambiguated(t *testing.T) {
	d := mustLower(t, collidingCrate)
	if got, want := funcKeys(d), []string{"app::a::get", "app::b::get"}; !slices.Equal(got, want) {
		t.Fatalf("funcs = %v, want %v", got, want)
	}
	if d.Funcs[0].Ident.Symbol != "a__get" {
		t.Fatalf("symbol = %q", d.Funcs[0].Ident.Symbol)
	}
	found := false
	for _, dg := range d.Diagnostics {
		found = found || dg.Code == diag.LowDisambiguated && dg.Location.Item == "app::get"
	}
	if !found {
		t.Fatalf("missing disambiguation note: %v", d.Diagnostics)
	}
}

const configItems = `
  {"kind": "struct", "name": "Config", "vis": "pub", "shape": "named", "fields": [{"name": "name", "vis": "pub", "type": "String"}]},
  {"kind": "fn", "name": "load", "vis": "pub", "fn": {"ret": "Config"}}`

func TestSymbolsKeepCrateWhenCratesCollide(t *testing.T) {
	cfg := hir.Config{
		Primary:       []string{"alpha", "beta", "gamma"},
		BridgeModules: []string{"alpha::api", "beta::api", "gamma::api"},
	}
	pack := testkit.DecodePack(t, testkit.APICrate("alpha", configItems), testkit.APICrate("beta", configItems),
		testkit.APICrate("gamma", `{"kind": "fn", "name": "ping", "vis": "pub", "fn": {}}`))
	hp, err := hir.Build(context.Background(), cfg, pack)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	d, err := mir.Lower(hp, mir.Options{})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	var records []string
	for _, r := range d.Records {
		records = append(records, r.Ident.Key+"="+r.Ident.Symbol)
	}
	if want := []string{"alpha::Config=alpha__Config", "beta::Config=beta__Config"}; !slices.Equal(records, want) {
		t.Fatalf("records = %v, want %v", records, want)
	}
	var fns []string
	for _, f := range d.Funcs {
		fns = append(fns, f.Ident.Key+"="+f.Ident.Symbol)
	}
	if want := []string{"alpha::load=alpha__load", "beta::load=beta__load", "gamma::ping=ping"}; !slices.Equal(fns, want) {
		t.Fatalf("funcs = %v, want %v", fns, want)
	}
	if err := mir.Validate(d); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCollidingSymbolsAreDuplicateIdentifiers(t *testing.T) {
	_, err := lower(t, apiCrate(`
	  {"kind": "struct", "name": "Foo", "vis": "pub", "shape": "unit"},
	  {"kind": "impl", "impl": {"self": "Foo", "items": [
	    {"kind": "fn", "name": "bar", "vis": "pub", "fn": {"receiver": "&self"}}]}},
	  {"kind": "fn", "name": "Foo__bar", "vis": "pub", "fn": {}}`))
	if !errors.Is(err, mir.ErrDuplicateIdentifier) {
		t.Fatalf("expected duplicate identifier, got %v", err)
	}
}

func movedCrate(module string, items ...string) string {
	return `{"crate": "app", "items": [{"kind": "mod", "name": "` + module + `", "vis": "pub", "items": [` +
		strings.Join(items, ",") + `]}]}`
}

func TestIdentifiersSurviveRenameAndReorder(t *testing.T) {
	point := `{"kind": "struct", "name": "Point", "vis": "pub", "attrs": [{"path": "bridge"}], "shape": "named", "fields": [{"name": "x", "type": "i64"}]}`
	mk := `{"kind": "fn", "name": "make", "vis": "pub", "attrs": [{"path": "bridge"}], "fn": {"ret": "Point"}}`
	take := `{"kind": "fn", "name": "take", "vis": "pub", "attrs": [{"path": "bridge"}], "fn": {"params": [{"name": "p", "type": "Vec<Point>"}]}}`

	var snapshots [][]byte
	var hashes [][]uint64
	for _, src := range []string{
		movedCrate("geo", point, mk, take),
		movedCrate("shapes", take, mk, point),
	} {
		d := mustLower(t, src)
		var buf bytes.Buffer
		if err := mir.Encode(&buf, d); err != nil {
			t.Fatalf("encode: %v", err)
		}
		snapshots = append(snapshots, buf.Bytes())
		var hs []uint64
		for _, f := range d.Funcs {
			hs = append(hs, f.Ident.Hash)
		}
		hs = append(hs, d.Records[0].Ident.Hash)
		hashes = append(hashes, hs)
	}
	if !slices.Equal(hashes[0], hashes[1]) {
		t.Fatalf("hashes changed: %v vs %v", hashes[0], hashes[1])
	}
	// native paths differ with the module, identifiers and TypeIDs do not
	if bytes.Equal(snapshots[0], snapshots[1]) {
		t.Fatalf("expected native paths to differ between modules")
	}
}

func TestLowerIsDeterministic(t *testing.T) {
	var dumps []string
	for range 3 {
		d := mustLower(t, apiCrate(ownedItems+","+genericItems))
		if err := mir.Validate(d); err != nil {
			t.Fatalf("validate: %v", err)
		}
		var buf bytes.Buffer
		if err := mir.Dump(&buf, d); err != nil {
			t.Fatalf("dump: %v", err)
		}
		if err := mir.Encode(&buf, d); err != nil {
			t.Fatalf("encode: %v", err)
		}
		dumps = append(dumps, buf.String())
	}
	if dumps[0] != dumps[1] || dumps[1] != dumps[2] {
		t.Fatalf("lowering is not deterministic")
	}
}

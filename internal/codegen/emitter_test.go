package codegen

import "testing"

func TestEmitterKeepsPercentSigns(t *testing.T) {
	e := &emitter{unit: "  "}
	e.open("fn f() {")
	e.line(`println!("100%s {}", x);`)
	e.linef("let n = %d;", 3)
	e.openf("if %s {", "ok")
	e.line("")
	e.close("}")
	e.close("}")
	want := "fn f() {\n  println!(\"100%s {}\", x);\n  let n = 3;\n  if ok {\n\n  }\n}\n"
	if got := string(e.bytes()); got != want {
		t.Fatalf("emitted:\n%s\nwant:\n%s", got, want)
	}
}

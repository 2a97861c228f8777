// Package fuzztests houses Go fuzz harnesses for the input side of the
// generator: the Rust type and use-tree parsers and the syntax-tree decoder
// followed by resolution and lowering. They guard against panics and hangs
// on arbitrary dumper output.
package fuzztests

package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const (
	maxFuzzInput = 1 << 16
	maxSeedBytes = 64 << 10
)

var typeSeeds = []string{
	"i32",
	"Vec<Option<String>>",
	"HashMap<String, Vec<u8>>",
	"&'a str",
	"&mut Foo",
	"[u8; 32]",
	"(i32, String)",
	"Box<dyn Fn(i32) -> bool + Send>",
	"impl Iterator<Item = u8>",
	"anyhow::Result<()>",
	"RustOpaque<Mutex<db::Conn>>",
	"crate::api::Page<i32>",
}

var useSeeds = []string{
	"crate::api::Point",
	"super::model::*",
	"self::{a, b::{c, d as e}}",
	"db::Conn as Connection",
}

var dumpSeeds = []string{
	`{"crate": "app", "items": []}`,
	`{"crate": "app", "items": [{"kind": "mod", "name": "api", "vis": "pub", "items": [
	  {"kind": "struct", "name": "Point", "vis": "pub", "shape": "named", "fields": [{"name": "x", "vis": "pub", "type": "f64"}]},
	  {"kind": "fn", "name": "add", "vis": "pub", "fn": {"params": [{"name": "a", "type": "Point"}], "ret": "Point"}}]}]}`,
	`{"crate": "app", "items": [{"kind": "mod", "name": "api", "vis": "pub", "items": [
	  {"kind": "use", "vis": "pub", "use": "self::api::*"}]}]}`,
}

// addDumpSeeds adds the built-in dumps and every *.json file under testdata.
func addDumpSeeds(f *testing.F) {
	for _, s := range dumpSeeds {
		f.Add([]byte(s))
	}
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil || len(src) > maxSeedBytes {
			return nil
		}
		f.Add(src)
		return nil
	})
}

func clip(input []byte) []byte {
	if len(input) > maxFuzzInput {
		input = input[:maxFuzzInput]
	}
	return append([]byte(nil), input...)
}

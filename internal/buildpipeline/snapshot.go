package buildpipeline

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"bridgegen/internal/hir"
	"bridgegen/internal/mir"
)

// IsBinarySnapshot reports whether path selects the msgpack encoding.
func IsBinarySnapshot(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".msgpack" || ext == ".mp"
}

// WriteHIRSnapshot writes pack as msgpack when binary is set and as the
// text dump otherwise.
func WriteHIRSnapshot(w io.Writer, pack *hir.Pack, binary bool) error {
	if binary {
		return hir.Encode(w, pack)
	}
	return hir.Dump(w, pack)
}

// WriteMIRSnapshot is WriteHIRSnapshot for a lowered document.
func WriteMIRSnapshot(w io.Writer, doc *mir.Document, binary bool) error {
	if binary {
		return mir.Encode(w, doc)
	}
	return mir.Dump(w, doc)
}

func encodeSnapshot(path string, encode func(io.Writer, bool) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, IsBinarySnapshot(path)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

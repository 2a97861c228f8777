package raw

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Decode reads one crate syntax tree in the dumper's JSON format.
func Decode(r io.Reader) (*File, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode syntax tree: %w", err)
	}
	if f.Crate == "" {
		return nil, fmt.Errorf("decode syntax tree: missing crate name")
	}
	if err := validateItems(f.Items); err != nil {
		return nil, fmt.Errorf("crate %s: %w", f.Crate, err)
	}
	return &f, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (*File, error) {
	return Decode(bytes.NewReader(data))
}

// DecodeFile decodes a dumped syntax tree from disk.
func DecodeFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	file, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Encode writes the file back in the dumper's JSON format.
func Encode(w io.Writer, f *File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

func validateItems(items []Item) error {
	for i := range items {
		it := &items[i]
		switch it.Kind {
		case ItemFn:
			if it.Fn == nil {
				return fmt.Errorf("fn %q: missing signature", it.Name)
			}
			for _, p := range it.Fn.Params {
				if p.Type == nil {
					return fmt.Errorf("fn %q: parameter %q has no type", it.Name, p.Name)
				}
			}
		case ItemType:
			if it.Target == nil {
				return fmt.Errorf("type %q: missing target", it.Name)
			}
		case ItemImpl:
			if it.Impl == nil || it.Impl.Self == nil {
				return fmt.Errorf("impl at line %d: missing self type", it.Line)
			}
			if err := validateItems(it.Impl.Items); err != nil {
				return err
			}
		case ItemMod:
			if err := validateItems(it.Items); err != nil {
				return fmt.Errorf("mod %s: %w", it.Name, err)
			}
		case ItemStruct:
			if err := validateFields(it.Name, it.Fields); err != nil {
				return err
			}
		case ItemEnum:
			for _, v := range it.Variants {
				if err := validateFields(it.Name+"::"+v.Name, v.Fields); err != nil {
					return err
				}
			}
		case ItemUse, ItemConst, ItemStatic, ItemTrait, ItemMacro, ItemOther:
		default:
			return fmt.Errorf("unknown item kind %q", it.Kind)
		}
	}
	return nil
}

func validateFields(owner string, fields []Field) error {
	for i, f := range fields {
		if f.Type == nil {
			return fmt.Errorf("%s: field %d (%q) has no type", owner, i, f.Name)
		}
	}
	return nil
}

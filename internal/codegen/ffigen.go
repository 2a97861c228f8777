package codegen

import (
	"bytes"
	"slices"

	"gopkg.in/yaml.v3"
)

type ffigenConfig struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Output      string        `yaml:"output"`
	Headers     ffigenHeaders `yaml:"headers"`
	Functions   ffigenInclude `yaml:"functions"`
	Structs     ffigenInclude `yaml:"structs"`
	Unions      ffigenInclude `yaml:"unions"`
	Comments    bool          `yaml:"comments"`
	Preamble    string        `yaml:"preamble"`
}

type ffigenHeaders struct {
	EntryPoints       []string `yaml:"entry-points"`
	IncludeDirectives []string `yaml:"include-directives"`
}

type ffigenInclude struct {
	Include []string `yaml:"include"`
}

// renderFfigen writes the request for the managed low-level generator.
// Every generated symbol is listed explicitly so nothing else leaks in.
func renderFfigen(a *abi, opts Options) ([]byte, error) {
	cfg := ffigenConfig{
		Name:        opts.WireClass,
		Description: "Low-level bindings for " + a.t.ns,
		Output:      opts.LowLevelOutput,
		Headers: ffigenHeaders{
			EntryPoints:       []string{opts.Header},
			IncludeDirectives: []string{opts.Header},
		},
		Functions: ffigenInclude{Include: []string{}},
		Structs:   ffigenInclude{Include: []string{}},
		Unions:    ffigenInclude{Include: []string{}},
		Preamble:  "// Code generated by bridgegen. DO NOT EDIT.\n// ignore_for_file: type=lint\n",
	}
	for _, e := range a.entries() {
		cfg.Functions.Include = append(cfg.Functions.Include, e.symbol)
	}
	for _, st := range a.structs() {
		if st.union {
			cfg.Unions.Include = append(cfg.Unions.Include, st.name)
		} else {
			cfg.Structs.Include = append(cfg.Structs.Include, st.name)
		}
	}
	slices.Sort(cfg.Functions.Include)
	slices.Sort(cfg.Structs.Include)
	slices.Sort(cfg.Unions.Include)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Package testkit holds helpers shared by package tests: project fixtures
// and cross-artifact invariant checks.
package testkit

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"bridgegen/internal/codegen"
)

var (
	nativeExport = regexp.MustCompile(`pub extern "C" fn (frbgen_\w+)\(`)
	managedCall  = regexp.MustCompile(`\b_?wire\.(frbgen_\w+)\(`)
)

// CheckArtifactInvariants verifies that the generated artifacts agree on
// the exported symbol set:
// 1) every described symbol is exported by the native glue and vice versa
// 2) the managed-generator request includes exactly the described symbols
// 3) the managed bindings call only described symbols
// 4) every owned allocation has a matching disposer in the description
func CheckArtifactInvariants(out *codegen.Output) error {
	if out == nil || out.Description == nil {
		return fmt.Errorf("nil output or description")
	}
	described := out.Description.Symbols()
	set := make(map[string]bool, len(described))
	for _, s := range described {
		if set[s] {
			return fmt.Errorf("symbol %s described twice", s)
		}
		set[s] = true
	}

	// 1) native exports match the description
	exported := matches(nativeExport, out.Native)
	if !slices.Equal(sortedCopy(exported), sortedCopy(described)) {
		return fmt.Errorf("native exports %v, description lists %v", exported, described)
	}

	// 2) the ffigen request includes the same functions
	var req struct {
		Functions struct {
			Include []string `yaml:"include"`
		} `yaml:"functions"`
	}
	if err := yaml.Unmarshal(out.FfigenConfig, &req); err != nil {
		return fmt.Errorf("managed generator request: %w", err)
	}
	if !slices.Equal(req.Functions.Include, sortedCopy(described)) {
		return fmt.Errorf("managed generator includes %v, description lists %v", req.Functions.Include, described)
	}

	// 3) managed bindings stay within the described surface
	for _, s := range matches(managedCall, out.Managed) {
		if !set[s] {
			return fmt.Errorf("managed bindings call undescribed symbol %s", s)
		}
	}

	// 4) allocations and disposers come in pairs
	for _, f := range out.Description.Functions {
		if f.Kind != "drop_result" {
			continue
		}
		call := bytes.Replace([]byte(f.Symbol), []byte("_drop_result_"), []byte("_wire_"), 1)
		if !set[string(call)] {
			return fmt.Errorf("result disposer %s has no call %s", f.Symbol, call)
		}
	}
	return nil
}

func matches(re *regexp.Regexp, src []byte) []string {
	var out []string
	for _, m := range re.FindAllSubmatch(src, -1) {
		out = append(out, string(m[1]))
	}
	return out
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

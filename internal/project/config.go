package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"bridgegen/internal/diag"
)

// ThirdPartyDirName is the vendored-code directory skipped by module walks.
const ThirdPartyDirName = "third_party"

// Config is the decoded bridgegen.toml.
type Config struct {
	// Path is the manifest file, Root its directory. Relative paths in the
	// manifest are resolved against Root.
	Path string `toml:"-"`
	Root string `toml:"-"`

	Package PackageSection `toml:"package"`
	Crates  []CrateSpec    `toml:"crates"`
	Output  OutputSection  `toml:"output"`
	Tools   ToolsSection   `toml:"tools"`
}

type PackageSection struct {
	Name string `toml:"name"`
}

// CrateSpec is one [[crates]] entry.
type CrateSpec struct {
	Name          string   `toml:"name"`
	Root          string   `toml:"root"`
	Primary       bool     `toml:"primary"`
	BridgeModules []string `toml:"bridge_modules"`
	// Dump is an optional pre-dumped syntax tree used instead of running the extractor.
	Dump string `toml:"dump"`
}

type OutputSection struct {
	Native          string `toml:"native"`
	Interface       string `toml:"interface"`
	Header          string `toml:"header"`
	Managed         string `toml:"managed"`
	ManagedLowLevel string `toml:"managed_low_level"`
	FfigenConfig    string `toml:"ffigen_config"`
}

type ToolsSection struct {
	Extract        []string `toml:"extract"`
	Header         []string `toml:"header"`
	Managed        []string `toml:"managed"`
	Shell          string   `toml:"shell"`
	Rustfmt        string   `toml:"rustfmt"`
	Dart           string   `toml:"dart"`
	DartLineLength int      `toml:"dart_line_length"`
	BuildRunner    bool     `toml:"build_runner"`
	Upgrade        []string `toml:"upgrade"`
}

// ErrManifestNotFound is returned by LoadFromDir when no manifest exists
// in the directory or any parent.
var ErrManifestNotFound = errors.New(ManifestName + " not found")

// ConfigError names the manifest key that failed validation.
type ConfigError struct {
	Path string
	Key  string
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Key, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Key, e.Msg)
}

// Code classifies the error for diagnostics.
func (e *ConfigError) Code() diag.Code { return diag.PrjInvalidConfig }

// LoadFromDir finds the manifest by walking up from startDir and loads it.
func LoadFromDir(startDir string) (*Config, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w (searched from %s)", ErrManifestNotFound, startDir)
	}
	return Load(path)
}

// Load decodes, defaults and validates the manifest at path.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	meta, err := toml.DecodeFile(abs, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", abs, err)
	}
	return finish(&cfg, meta, abs)
}

// Parse decodes manifest text as if it lived at path.
func Parse(data, path string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return finish(&cfg, meta, path)
}

func finish(cfg *Config, meta toml.MetaData, path string) (*Config, error) {
	cfg.Path = path
	cfg.Root = filepath.Dir(path)
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &ConfigError{Path: path, Key: undecoded[0].String(), Msg: "unknown key"}
	}
	if !meta.IsDefined("package") {
		return nil, &ConfigError{Path: path, Key: "package", Msg: "missing section"}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset keys. A lone crate becomes primary and primary
// crates without bridge_modules bridge the `api` module.
func (c *Config) ApplyDefaults() {
	if c.Package.Name == "" && len(c.Crates) > 0 {
		c.Package.Name = c.Crates[0].Name
	}
	if len(c.Crates) == 1 {
		c.Crates[0].Primary = true
	}
	for i := range c.Crates {
		cr := &c.Crates[i]
		cr.Name = strings.TrimSpace(cr.Name)
		if cr.Root == "" {
			cr.Root = "."
		}
		if cr.Primary && len(cr.BridgeModules) == 0 {
			cr.BridgeModules = []string{"api"}
		}
		for j, m := range cr.BridgeModules {
			cr.BridgeModules[j] = NormalizeModulePath(m)
		}
	}
	o := &c.Output
	setDefault(&o.Native, "rust/src/bridge_generated.rs")
	setDefault(&o.Interface, "rust/bridge_generated.json")
	setDefault(&o.Header, "rust/bridge_generated.h")
	setDefault(&o.Managed, "lib/bridge_generated.dart")
	setDefault(&o.ManagedLowLevel, "lib/bridge_generated.io.dart")
	setDefault(&o.FfigenConfig, ".dart_tool/bridgegen/ffigen.yaml")

	t := &c.Tools
	setDefault(&t.Rustfmt, "rustfmt")
	setDefault(&t.Dart, "dart")
	if t.DartLineLength == 0 {
		t.DartLineLength = 80
	}
}

func setDefault(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}

// Validate checks the defaulted configuration.
func (c *Config) Validate() error {
	fail := func(key, format string, args ...any) error {
		return &ConfigError{Path: c.Path, Key: key, Msg: fmt.Sprintf(format, args...)}
	}
	if !IsValidCrateIdent(c.Package.Name) {
		return fail("package.name", "invalid name %q", c.Package.Name)
	}
	if len(c.Crates) == 0 {
		return fail("crates", "at least one [[crates]] entry is required")
	}
	seen := make(map[string]bool, len(c.Crates))
	primaries := 0
	for i, cr := range c.Crates {
		key := fmt.Sprintf("crates[%d]", i)
		if !IsValidCrateIdent(cr.Name) {
			return fail(key+".name", "invalid crate name %q", cr.Name)
		}
		if seen[cr.Name] {
			return fail(key+".name", "duplicate crate %q", cr.Name)
		}
		seen[cr.Name] = true
		if cr.Primary {
			primaries++
		}
		for j, m := range cr.BridgeModules {
			for _, seg := range strings.Split(m, ".") {
				if !IsValidCrateIdent(seg) {
					return fail(fmt.Sprintf("%s.bridge_modules[%d]", key, j), "invalid module path %q", m)
				}
			}
		}
		if len(c.Tools.Extract) == 0 && cr.Dump == "" {
			return fail(key+".dump", "crate %q has no dump file and tools.extract is empty", cr.Name)
		}
	}
	if primaries == 0 {
		return fail("crates", "no crate is marked primary")
	}
	if !slices.Contains([]string{"", "sh", "cmd", "powershell"}, c.Tools.Shell) {
		return fail("tools.shell", "unsupported shell %q (expected sh|cmd|powershell)", c.Tools.Shell)
	}
	if c.Tools.DartLineLength < 0 {
		return fail("tools.dart_line_length", "must be positive")
	}
	return nil
}

// Primary returns the primary crate names in declaration order.
func (c *Config) Primary() []string {
	var out []string
	for _, cr := range c.Crates {
		if cr.Primary {
			out = append(out, cr.Name)
		}
	}
	return out
}

// Dependencies returns the non-primary crate names in declaration order.
func (c *Config) Dependencies() []string {
	var out []string
	for _, cr := range c.Crates {
		if !cr.Primary {
			out = append(out, cr.Name)
		}
	}
	return out
}

// BridgeModules returns crate-qualified bridge module paths such as "app::api.inner".
func (c *Config) BridgeModules() []string {
	var out []string
	for _, cr := range c.Crates {
		for _, m := range cr.BridgeModules {
			out = append(out, cr.Name+"::"+m)
		}
	}
	return out
}

// Abs resolves a manifest-relative path.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

// NormalizeModulePath accepts `a::b`, `crate::a::b` or `a.b` and returns `a.b`.
func NormalizeModulePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "crate::")
	p = strings.ReplaceAll(p, "::", ".")
	return strings.Trim(p, ".")
}

// IsValidCrateIdent reports whether name is an ASCII identifier.
func IsValidCrateIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r > unicode.MaxASCII {
			return false
		}
		if i == 0 && r != '_' && !unicode.IsLetter(r) {
			return false
		}
		if i > 0 && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

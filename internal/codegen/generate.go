// Package codegen emits every artifact of a generation run from one MIR
// document: the native glue, the interface description, the request for
// the managed low-level generator and the managed bindings. All four share
// the identifiers of the document, and identical documents produce
// byte-identical output.
package codegen

import (
	"errors"
	"fmt"
	"strings"

	"bridgegen/internal/diag"
	"bridgegen/internal/mir"
)

// Sentinels matched by EmissionError.Is.
var (
	ErrInvalidDocument    = errors.New("document cannot be emitted")
	ErrCollaboratorFailed = errors.New("collaborator failed")
)

// EmissionError reports a failure producing an artifact. Collaborator is
// set when an external tool failed, with its captured output.
type EmissionError struct {
	Collaborator string
	Err          error
	Output       string
}

func (e *EmissionError) Error() string {
	if e.Collaborator == "" {
		return fmt.Sprintf("emit: %v", e.Err)
	}
	msg := fmt.Sprintf("emit: %s: %v", e.Collaborator, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *EmissionError) Unwrap() error { return e.Err }

func (e *EmissionError) Is(target error) bool {
	switch target {
	case ErrInvalidDocument:
		return e.Collaborator == ""
	case ErrCollaboratorFailed:
		return e.Collaborator != ""
	}
	return false
}

// Code is the diagnostic code of the failure.
func (e *EmissionError) Code() diag.Code {
	if e.Collaborator == "" {
		return diag.EmtInvalidDocument
	}
	return diag.EmtCollaboratorFailed
}

// Options control naming and cross-references between the artifacts.
type Options struct {
	// Namespace prefixes shared helper symbols. Defaults to the first crate.
	Namespace string
	// HostCrate is the crate the native glue is compiled into; its paths
	// are emitted as crate:: paths. Defaults to the first crate.
	HostCrate string
	// Header is the C header path handed to the managed generator.
	Header string
	// LowLevelOutput is where the managed generator writes its declarations.
	LowLevelOutput string
	// LowLevelImport is how the managed bindings import LowLevelOutput.
	LowLevelImport string
	// LibName is the dynamic library stem the managed bindings open.
	LibName string
	// WireClass names the low-level bindings class.
	WireClass string
	// APIClass names the managed entry class.
	APIClass string
}

func (o Options) withDefaults(doc *mir.Document) Options {
	first := ""
	if len(doc.Crates) > 0 {
		first = doc.Crates[0]
	}
	if o.Namespace == "" {
		o.Namespace = first
	}
	if o.HostCrate == "" {
		o.HostCrate = first
	}
	if o.Header == "" {
		o.Header = "bridge_generated.h"
	}
	if o.LowLevelOutput == "" {
		o.LowLevelOutput = "lib/bridge_generated.io.dart"
	}
	if o.LowLevelImport == "" {
		parts := strings.Split(o.LowLevelOutput, "/")
		o.LowLevelImport = parts[len(parts)-1]
	}
	if o.LibName == "" {
		o.LibName = o.HostCrate
	}
	if o.WireClass == "" {
		o.WireClass = "BridgeWire"
	}
	if o.APIClass == "" {
		o.APIClass = upperCamel(o.Namespace) + "Bridge"
	}
	return o
}

// Output holds the generated artifacts.
type Output struct {
	Native       []byte
	Interface    []byte
	FfigenConfig []byte
	Managed      []byte
	// Description is the decoded form of Interface.
	Description *Interface
}

// Generate emits all artifacts for doc.
func Generate(doc *mir.Document, opts Options) (*Output, error) {
	if doc == nil {
		return nil, &EmissionError{Err: errors.New("no document")}
	}
	if err := mir.Validate(doc); err != nil {
		return nil, &EmissionError{Err: err}
	}
	opts = opts.withDefaults(doc)
	t := newWireTable(doc, opts.Namespace, opts.HostCrate)
	if err := t.collect(); err != nil {
		return nil, &EmissionError{Err: err}
	}
	a, err := buildABI(doc, t, opts)
	if err != nil {
		return nil, &EmissionError{Err: err}
	}

	out := &Output{Description: a.describe()}
	out.Native = emitNative(a)
	if out.Interface, err = out.Description.Marshal(); err != nil {
		return nil, &EmissionError{Err: fmt.Errorf("interface description: %w", err)}
	}
	if out.FfigenConfig, err = renderFfigen(a, opts); err != nil {
		return nil, &EmissionError{Err: fmt.Errorf("managed generator request: %w", err)}
	}
	out.Managed = emitManaged(a, opts)
	return out, nil
}

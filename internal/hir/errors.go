package hir

import (
	"errors"
	"fmt"

	"bridgegen/internal/diag"
)

// Sentinels matched by ResolutionError.Is.
var (
	ErrCyclicReexport        = errors.New("cyclic re-export")
	ErrUnknownMirrorTarget   = errors.New("unknown mirror target")
	ErrDuplicateItem         = errors.New("duplicate item")
	ErrDuplicateMember       = errors.New("duplicate member")
	ErrUnknownReexportTarget = errors.New("unknown re-export target")
	ErrUnknownCrate          = errors.New("unknown crate")
	// ErrNotFound and ErrPrivate are returned by lookups, never by Build.
	ErrNotFound = errors.New("not found")
	ErrPrivate  = errors.New("not visible")
)

// ResolutionError is a fatal resolution failure with the offending location.
type ResolutionError struct {
	Code   diag.Code
	Crate  string
	Module string
	Item   string
	Detail string
}

func (e *ResolutionError) Error() string {
	loc := diag.Location{Crate: e.Crate, Module: e.Module, Item: e.Item}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code.Title(), loc)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code.Title(), loc, e.Detail)
}

// Location returns the diagnostic location of the error.
func (e *ResolutionError) Location() diag.Location {
	return diag.Location{Crate: e.Crate, Module: e.Module, Item: e.Item}
}

func (e *ResolutionError) Is(target error) bool {
	switch target {
	case ErrCyclicReexport:
		return e.Code == diag.ResCyclicReexport
	case ErrUnknownMirrorTarget:
		return e.Code == diag.ResUnknownMirrorTarget
	case ErrDuplicateItem:
		return e.Code == diag.ResDuplicateItem
	case ErrDuplicateMember:
		return e.Code == diag.ResDuplicateMember
	case ErrUnknownReexportTarget:
		return e.Code == diag.ResUnknownReexportTarget
	case ErrUnknownCrate:
		return e.Code == diag.ResUnknownCrate
	}
	return false
}

func resolutionErr(code diag.Code, crate, module, item, format string, args ...any) *ResolutionError {
	return &ResolutionError{Code: code, Crate: crate, Module: module, Item: item, Detail: fmt.Sprintf(format, args...)}
}

package mir

import (
	"errors"
	"fmt"

	"bridgegen/internal/diag"
)

// Sentinels matched by LoweringError.Is.
var (
	ErrUnsupportedType      = errors.New("unsupported type")
	ErrUnresolvedGeneric    = errors.New("unresolved generic")
	ErrConflictingOwnership = errors.New("conflicting ownership")
	ErrDuplicateIdentifier  = errors.New("duplicate identifier")
)

// LoweringError is a fatal lowering failure. Item is the canonical path of
// the item being lowered, Construct the native construct that failed.
type LoweringError struct {
	Code      diag.Code
	Item      string
	Construct string
	Detail    string
}

func (e *LoweringError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code.Title(), e.Item)
	if e.Construct != "" {
		msg += fmt.Sprintf(" (%s)", e.Construct)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *LoweringError) Is(target error) bool {
	switch target {
	case ErrUnsupportedType:
		return e.Code == diag.LowUnsupportedType
	case ErrUnresolvedGeneric:
		return e.Code == diag.LowUnresolvedGeneric
	case ErrConflictingOwnership:
		return e.Code == diag.LowConflictingOwnership
	case ErrDuplicateIdentifier:
		return e.Code == diag.LowDuplicateIdentifier
	}
	return false
}

// Location returns the diagnostic location of the error.
func (e *LoweringError) Location() diag.Location {
	return diag.Location{Item: e.Item, Construct: e.Construct}
}

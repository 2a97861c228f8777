package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Extraction (external syntax dumper)
	ExtInfo          Code = 1000
	ExtCommandFailed Code = 1001
	ExtDecode        Code = 1002
	ExtMissingCrate  Code = 1003
	ExtFatalOutput   Code = 1004

	// Resolution (HIR)
	ResInfo                  Code = 2000
	ResCyclicReexport        Code = 2001
	ResUnknownMirrorTarget   Code = 2002
	ResDuplicateItem         Code = 2003
	ResDuplicateMember       Code = 2004
	ResUnknownReexportTarget Code = 2005
	ResUnknownCrate          Code = 2006
	ResIgnoredItem           Code = 2010
	ResUnbridgedItem         Code = 2011
	ResThirdPartySkipped     Code = 2012
	ResMethodOwnerMissing    Code = 2013

	// Lowering (MIR)
	LowInfo                 Code = 3000
	LowUnsupportedType      Code = 3001
	LowUnresolvedGeneric    Code = 3002
	LowConflictingOwnership Code = 3003
	LowDuplicateIdentifier  Code = 3004
	LowInvariant            Code = 3005
	LowDisambiguated        Code = 3010

	// Emission (codegen and collaborators)
	EmtInfo               Code = 4000
	EmtCollaboratorFailed Code = 4001
	EmtInvalidDocument    Code = 4002
	EmtWriteFailed        Code = 4003

	// Project configuration
	PrjInfo             Code = 5000
	PrjManifestNotFound Code = 5001
	PrjInvalidConfig    Code = 5002

	// Observability
	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:              "Unknown error",
		ExtInfo:                  "Extraction information",
		ExtCommandFailed:         "Syntax dumper failed",
		ExtDecode:                "Malformed syntax tree",
		ExtMissingCrate:          "Crate missing from syntax pack",
		ExtFatalOutput:           "Collaborator reported a fatal error on stdout",
		ResInfo:                  "Resolution information",
		ResCyclicReexport:        "Cyclic re-export",
		ResUnknownMirrorTarget:   "Unknown mirror target",
		ResDuplicateItem:         "Duplicate item in module",
		ResDuplicateMember:       "Duplicate field or variant",
		ResUnknownReexportTarget: "Unknown re-export target",
		ResUnknownCrate:          "Configured crate not in pack",
		ResIgnoredItem:           "Item ignored",
		ResUnbridgedItem:         "Public item not bridged",
		ResThirdPartySkipped:     "Vendored module skipped",
		ResMethodOwnerMissing:    "Impl block for unknown type",
		LowInfo:                  "Lowering information",
		LowUnsupportedType:       "Unsupported type",
		LowUnresolvedGeneric:     "Unresolved generic parameter",
		LowConflictingOwnership:  "Conflicting ownership annotation",
		LowDuplicateIdentifier:   "Duplicate bridge identifier",
		LowInvariant:             "MIR invariant violated",
		LowDisambiguated:         "Identifier disambiguated by module path",
		EmtInfo:                  "Emission information",
		EmtCollaboratorFailed:    "Collaborator failed",
		EmtInvalidDocument:       "Document cannot be emitted",
		EmtWriteFailed:           "Artifact write failed",
		PrjInfo:                  "Project information",
		PrjManifestNotFound:      "bridgegen.toml not found",
		PrjInvalidConfig:         "Invalid project configuration",
		ObsInfo:                  "Observability information",
		ObsTimings:               "Stage timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("EXT%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("EMT%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("PRJ%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

package diag

import (
	"sort"

	"fortio.org/safecast"
)

type Bag struct {
	items []Diagnostic
	max   uint16
}

// NewBag returns a bag that keeps at most max diagnostics.
func NewBag(max int) *Bag {
	limit, err := safecast.Conv[uint16](max)
	if err != nil {
		limit = ^uint16(0)
	}
	return &Bag{
		items: make([]Diagnostic, 0, min(max, 64)),
		max:   limit,
	}
}

// Add appends d unless the limit is reached. It reports whether d was kept.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() uint16 {
	return b.max
}

// HasErrors reports whether any diagnostic has Severity >= Error.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any diagnostic has Severity >= Warning.
func (b *Bag) HasWarnings() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.items)
}

// Items returns the backing slice. Callers must not modify it.
func (b *Bag) Items() []Diagnostic {
	if b == nil {
		return nil
	}
	return b.items
}

// Merge appends all diagnostics of other, growing the limit when needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	newTotal := len(b.items) + len(other.items)
	if newTotal > int(b.max) {
		if limit, err := safecast.Conv[uint16](newTotal); err == nil {
			b.max = limit
		} else {
			b.max = ^uint16(0)
		}
	}
	b.items = append(b.items, other.items...)
}

// Sort orders diagnostics by location path, construct, severity (desc) and
// code so output is stable across runs.
func (b *Bag) Sort() {
	SortDiagnostics(b.items)
}

// SortDiagnostics sorts a slice in the order used by Bag.Sort.
func SortDiagnostics(items []Diagnostic) {
	sort.SliceStable(items, func(i, j int) bool {
		di, dj := items[i], items[j]
		if pi, pj := di.Location.Path(), dj.Location.Path(); pi != pj {
			return pi < pj
		}
		if di.Location.Construct != dj.Location.Construct {
			return di.Location.Construct < dj.Location.Construct
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		if di.Code != dj.Code {
			return di.Code < dj.Code
		}
		return di.Message < dj.Message
	})
}

type dedupKey struct {
	code Code
	loc  Location
	msg  string
}

// Dedup drops repeated diagnostics with the same code, location and message.
func (b *Bag) Dedup() {
	seen := make(map[dedupKey]bool, len(b.items))
	newitems := make([]Diagnostic, 0, len(b.items))
	for _, d := range b.items {
		key := dedupKey{code: d.Code, loc: d.Location, msg: d.Message}
		if seen[key] {
			continue
		}
		seen[key] = true
		newitems = append(newitems, d)
	}
	b.items = newitems
}

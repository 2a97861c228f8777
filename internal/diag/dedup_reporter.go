package diag

// DedupReporter wraps another Reporter and suppresses diagnostics with the
// same code, severity, location and message.
type DedupReporter struct {
	next Reporter
	seen map[dedupReporterKey]struct{}
}

type dedupReporterKey struct {
	code Code
	sev  Severity
	loc  Location
	msg  string
}

// NewDedupReporter returns a Reporter that filters out duplicates while
// forwarding unique diagnostics to next.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupReporterKey]struct{}),
	}
}

func (r *DedupReporter) Report(d Diagnostic) {
	if r == nil {
		return
	}
	key := dedupReporterKey{code: d.Code, sev: d.Severity, loc: d.Location, msg: d.Message}
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(d)
	}
}

package diag

// Reporter is the minimal contract for receiving diagnostics from a stage.
// Implementations: BagReporter, DedupReporter.
type Reporter interface {
	Report(d Diagnostic)
}

// ReportBuilder accumulates diagnostic details before emitting to a Reporter.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

// NewReportBuilder constructs a builder bound to r.
func NewReportBuilder(r Reporter, sev Severity, code Code, loc Location, msg string) *ReportBuilder {
	return &ReportBuilder{
		reporter: r,
		diag:     New(sev, code, loc, msg),
	}
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, loc Location, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevWarning, code, loc, msg)
}

// ReportInfo is a shortcut for SevInfo diagnostics.
func ReportInfo(r Reporter, code Code, loc Location, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevInfo, code, loc, msg)
}

// WithNote appends a note to the diagnostic.
func (b *ReportBuilder) WithNote(loc Location, msg string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.WithNote(loc, msg)
	return b
}

// Emit sends the diagnostic to the underlying reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted {
		return
	}
	if b.reporter != nil {
		b.reporter.Report(b.diag)
	}
	b.emitted = true
}

// BagReporter writes into a *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(d)
}

package diag

import (
	"fmt"
	"strings"
)

// FormatShort renders diagnostics one per line in the form
//
//	info RES2010 app::api::helper ignored by #[bridge(ignore)]
//
// Input order is kept; callers sort the bag first when they need stable output.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	var b strings.Builder
	for i, d := range diags {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s %s", d.Severity.Label(), d.Code.ID(), d.Location, sanitizeMessage(d.Message))
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(&b, "\nnote %s %s %s", d.Code.ID(), n.Location, sanitizeMessage(n.Msg))
		}
	}
	return b.String()
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}

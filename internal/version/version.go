// Package version carries build metadata for the bridgegen CLI.
package version

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// These variables can be overridden at build time via -ldflags.
var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// InterfaceRevision is the interface description layout this build emits.
	InterfaceRevision = 1

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	nameColor    = color.New(color.FgCyan, color.Bold)
	versionColor = color.New(color.FgGreen, color.Bold)
	metaColor    = color.New(color.Faint)
)

// Banner renders the one-line version banner. Colours follow fatih/color,
// which disables them when stdout is not a terminal or NO_COLOR is set.
func Banner() string {
	var b strings.Builder
	b.WriteString(nameColor.Sprint("bridgegen"))
	b.WriteString(" ")
	b.WriteString(versionColor.Sprint(Version))
	var meta []string
	if GitCommit != "" {
		commit := GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		meta = append(meta, "commit "+commit)
	}
	if BuildDate != "" {
		meta = append(meta, "built "+BuildDate)
	}
	meta = append(meta, fmt.Sprintf("interface v%d", InterfaceRevision))
	b.WriteString(" ")
	b.WriteString(metaColor.Sprint("(" + strings.Join(meta, ", ") + ")"))
	return b.String()
}

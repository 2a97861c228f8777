package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestBanner(t *testing.T) {
	color.NoColor = true
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = origVersion, origCommit, origDate })

	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"0.1.0-dev", "", "", "bridgegen 0.1.0-dev (interface v1)"},
		{"1.2.3", "abc123def4567890", "2026-01-15T10:30:00Z", "bridgegen 1.2.3 (commit abc123def456, built 2026-01-15T10:30:00Z, interface v1)"},
		{"1.2.3", "abc123", "", "bridgegen 1.2.3 (commit abc123, interface v1)"},
	}
	for _, tt := range tests {
		Version, GitCommit, BuildDate = tt.version, tt.commit, tt.date
		if got := Banner(); got != tt.want {
			t.Errorf("Banner() = %q, want %q", got, tt.want)
		}
	}
}

func TestInterfaceRevisionIsSet(t *testing.T) {
	if InterfaceRevision <= 0 || strings.TrimSpace(Version) == "" {
		t.Fatalf("missing defaults: version %q revision %d", Version, InterfaceRevision)
	}
}

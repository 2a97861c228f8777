package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bridgegen/internal/version"
)

type versionPayload struct {
	Tool              string `json:"tool"`
	Version           string `json:"version"`
	InterfaceRevision int    `json:"interface_revision"`
	GitCommit         string `json:"git_commit,omitempty"`
	BuildDate         string `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch strings.ToLower(format) {
		case "pretty":
			fmt.Fprintln(out, version.Banner())
			return nil
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(versionPayload{
				Tool:              "bridgegen",
				Version:           strings.TrimSpace(version.Version),
				InterfaceRevision: version.InterfaceRevision,
				GitCommit:         strings.TrimSpace(version.GitCommit),
				BuildDate:         strings.TrimSpace(version.BuildDate),
			})
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
		}
	},
}

func init() {
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

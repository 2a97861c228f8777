package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bridgegen/internal/buildpipeline"
)

var inspectCmd = &cobra.Command{
	Use:       "inspect hir|mir",
	Short:     "Print the resolved items or the lowered document",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"hir", "mir"},
	RunE:      inspectExecution,
}

func init() {
	inspectCmd.Flags().String("format", "text", "output format (text|msgpack)")
	inspectCmd.Flags().Int("jobs", 0, "parallel crate jobs (0 = GOMAXPROCS)")
}

func inspectExecution(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	var binary bool
	switch format {
	case "text":
	case "msgpack":
		binary = true
	default:
		return fmt.Errorf("unsupported format %q (expected text|msgpack)", format)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	stop := buildpipeline.StageResolve
	if args[0] == "mir" {
		stop = buildpipeline.StageLower
	}
	res, err := buildpipeline.Generate(cmd.Context(), &buildpipeline.Request{
		Config:    cfg,
		Jobs:      jobs,
		DryRun:    true,
		StopAfter: stop,
	})
	printDiagnostics(cmd.ErrOrStderr(), res.Diagnostics)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if args[0] == "mir" {
		return buildpipeline.WriteMIRSnapshot(out, res.Document, binary)
	}
	return buildpipeline.WriteHIRSnapshot(out, res.Pack, binary)
}

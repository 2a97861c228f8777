package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"bridgegen/internal/buildpipeline"
	"bridgegen/internal/diag"
	"bridgegen/internal/project"
	"bridgegen/internal/ui"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate bridge artifacts for the configured crates",
	Args:  cobra.NoArgs,
	RunE:  generateExecution,
}

func init() {
	f := generateCmd.Flags()
	f.Bool("dry-run", false, "compute every artifact without writing files or running collaborators")
	f.Bool("no-polish", false, "skip formatters and post-processing commands")
	f.Int("jobs", 0, "parallel crate jobs (0 = GOMAXPROCS)")
	f.String("ui", "auto", "progress UI mode (auto|on|off)")
	f.String("emit-hir", "", "write the resolved item snapshot to this path (.msgpack for binary)")
	f.String("emit-mir", "", "write the lowered document snapshot to this path (.msgpack for binary)")
	f.Bool("print-commands", false, "echo collaborator command lines")
}

func generateExecution(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	dryRun, err := f.GetBool("dry-run")
	if err != nil {
		return err
	}
	noPolish, err := f.GetBool("no-polish")
	if err != nil {
		return err
	}
	jobs, err := f.GetInt("jobs")
	if err != nil {
		return err
	}
	uiValue, err := f.GetString("ui")
	if err != nil {
		return err
	}
	emitHIR, err := f.GetString("emit-hir")
	if err != nil {
		return err
	}
	emitMIR, err := f.GetString("emit-mir")
	if err != nil {
		return err
	}
	printCommands, err := f.GetBool("print-commands")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	if jobs < 0 {
		return fmt.Errorf("--jobs must not be negative")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req := &buildpipeline.Request{
		Config:   cfg,
		Jobs:     jobs,
		DryRun:   dryRun,
		NoPolish: noPolish,
		EmitHIR:  emitHIR,
		EmitMIR:  emitMIR,
	}
	useTUI := !quiet && shouldUseTUI(mode)
	if printCommands && !useTUI {
		req.PrintCommands = cmd.ErrOrStderr()
	}

	var res buildpipeline.Result
	if useTUI {
		res, err = runWithUI(cmd.Context(), "bridgegen "+cfg.Package.Name, req)
	} else {
		res, err = buildpipeline.Generate(cmd.Context(), req)
	}

	out := cmd.OutOrStdout()
	printDiagnostics(cmd.ErrOrStderr(), res.Diagnostics)
	if err != nil {
		return err
	}
	if !quiet {
		printArtifacts(out, cfg, res.Artifacts, dryRun)
	}
	if showTimings {
		printStageTimings(out, res.Timings)
	}
	if hasErrors(res.Diagnostics) {
		return errDiagnostics
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*project.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		return project.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := project.LoadFromDir(wd)
	if errors.Is(err, project.ErrManifestNotFound) {
		return nil, fmt.Errorf("%w; pass --config or run inside a project", err)
	}
	return cfg, err
}

type outcome struct {
	result buildpipeline.Result
	err    error
}

func runWithUI(ctx context.Context, title string, req *buildpipeline.Request) (buildpipeline.Result, error) {
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan outcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = buildpipeline.ChannelSink{Ch: events}
		res, err := buildpipeline.Generate(ctx, &reqCopy)
		outcomeCh <- outcome{result: res, err: err}
		close(events)
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// the UI may quit early; keep draining so the pipeline can finish
	go func() {
		for range events {
		}
	}()
	res := <-outcomeCh
	if uiErr != nil {
		return res.result, uiErr
	}
	return res.result, res.err
}

func hasErrors(items []diag.Diagnostic) bool {
	for _, d := range items {
		if d.Severity >= diag.SevError {
			return true
		}
	}
	return false
}

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"bridgegen/internal/buildpipeline"
	"bridgegen/internal/diag"
	"bridgegen/internal/project"
)

var (
	writtenColor = color.New(color.FgGreen)
	keptColor    = color.New(color.Faint)
	warnColor    = color.New(color.FgYellow)
)

func printDiagnostics(out io.Writer, items []diag.Diagnostic) {
	if len(items) == 0 {
		return
	}
	text := diag.FormatShort(items, true)
	fmt.Fprintln(out, warnColor.Sprint(text))
}

func printArtifacts(out io.Writer, cfg *project.Config, artifacts []buildpipeline.Artifact, dryRun bool) {
	for _, a := range artifacts {
		path := a.Path
		if rel, err := filepath.Rel(cfg.Root, a.Path); err == nil {
			path = filepath.ToSlash(rel)
		}
		var state string
		switch {
		case dryRun:
			state = keptColor.Sprintf("%-9s", "dry-run")
		case a.Written:
			state = writtenColor.Sprintf("%-9s", "written")
		default:
			state = keptColor.Sprintf("%-9s", "unchanged")
		}
		fmt.Fprintf(out, "%s %-13s %s\n", state, a.Kind, path)
	}
}

func printStageTimings(out io.Writer, timings buildpipeline.Timings) {
	var total time.Duration
	for _, stage := range buildpipeline.Stages {
		if !timings.Has(stage) {
			continue
		}
		d := timings.Duration(stage)
		total += d
		fmt.Fprintf(out, "%-9s %8.1f ms\n", stage, toMillis(d))
	}
	fmt.Fprintf(out, "%-9s %8.1f ms\n", "total", toMillis(total))
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

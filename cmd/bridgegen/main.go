// Command bridgegen generates FFI glue between Rust crates and Dart.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bridgegen/internal/prof"
	"bridgegen/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "bridgegen",
	Short:         "Rust to Dart FFI bridge generator",
	Long:          "bridgegen reads Rust crates and emits C ABI glue, an interface description, a C header and Dart bindings.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyColorFlag(cmd); err != nil {
			return err
		}
		cleanup, err := setupTracing(cmd)
		if err != nil {
			return err
		}
		stopProfiles, err := startProfiles(cmd)
		if err != nil {
			cleanup()
			return err
		}
		traceCleanup = func() {
			if err := stopProfiles(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
			}
			cleanup()
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if traceCleanup != nil {
			traceCleanup()
			traceCleanup = nil
		}
	},
}

var traceCleanup func()

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show stage timings")
	rootCmd.PersistentFlags().String("config", "", "path to bridgegen.toml (default: search upwards from the working directory)")
	addTraceFlags(rootCmd)
	rootCmd.PersistentFlags().String("cpuprofile", "", "write a CPU profile to this file")
	rootCmd.PersistentFlags().String("memprofile", "", "write a heap profile to this file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to this file")
}

func startProfiles(cmd *cobra.Command) (func() error, error) {
	f := cmd.Root().PersistentFlags()
	var cfg prof.Config
	var err error
	if cfg.CPU, err = f.GetString("cpuprofile"); err != nil {
		return nil, err
	}
	if cfg.Mem, err = f.GetString("memprofile"); err != nil {
		return nil, err
	}
	if cfg.Trace, err = f.GetString("runtime-trace"); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return func() error { return nil }, nil
	}
	s, err := prof.Start(cfg)
	if err != nil {
		return nil, fmt.Errorf("start profiling: %w", err)
	}
	return s.Stop, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if traceCleanup != nil {
			traceCleanup()
		}
		printError(err)
		os.Exit(exitCode(err))
	}
}

var errorColor = color.New(color.FgRed, color.Bold)

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", errorColor.Sprint("error:"), err)
}

// errDiagnostics signals that findings were already printed.
var errDiagnostics = errors.New("generation reported errors")

func exitCode(err error) int {
	if errors.Is(err, errDiagnostics) {
		return 2
	}
	return 1
}

func applyColorFlag(cmd *cobra.Command) error {
	value, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch value {
	case "auto":
		color.NoColor = !isTerminal(os.Stdout) || os.Getenv("NO_COLOR") != ""
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", value)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

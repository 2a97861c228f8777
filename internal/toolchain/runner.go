// Package toolchain runs the external collaborators of a generation run:
// the syntax dumper, header and managed generators, formatters and the
// optional post-processing steps.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"bridgegen/internal/trace"
)

// ShellMode selects how a command line is launched.
type ShellMode string

const (
	// ShellNone execs the first argument directly.
	ShellNone       ShellMode = ""
	ShellSh         ShellMode = "sh"
	ShellCmd        ShellMode = "cmd"
	ShellPowerShell ShellMode = "powershell"
)

// ParseShellMode validates a configured shell name.
func ParseShellMode(s string) (ShellMode, error) {
	switch m := ShellMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ShellNone, ShellSh, ShellCmd, ShellPowerShell:
		return m, nil
	}
	return ShellNone, fmt.Errorf("unsupported shell %q (expected sh|cmd|powershell)", s)
}

// Command is one external invocation.
type Command struct {
	Args  []string
	Dir   string
	// Env entries are KEY=VALUE pairs added to the inherited environment.
	Env   []string
	Shell ShellMode
}

func (c Command) String() string { return strings.Join(c.Args, " ") }

// Argv returns the program and arguments the command is launched with.
// Shell modes pass the arguments as one command line, quoted for that shell.
func (c Command) Argv() (string, []string, error) {
	if len(c.Args) == 0 || strings.TrimSpace(c.Args[0]) == "" {
		return "", nil, errors.New("empty command")
	}
	switch c.Shell {
	case ShellSh:
		return "sh", []string{"-c", joinQuoted(c.Args, needsQuote, shQuote)}, nil
	case ShellCmd:
		return "cmd", []string{"/C", joinQuoted(c.Args, needsQuote, cmdQuote)}, nil
	case ShellPowerShell:
		// the call operator runs a quoted program name instead of echoing it
		return "powershell", []string{"-NoProfile", "-Command", "& " + joinQuoted(c.Args, always, psQuote)}, nil
	}
	return c.Args[0], c.Args[1:], nil
}

func joinQuoted(args []string, special func(rune) bool, quote func(string) string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && strings.IndexFunc(a, special) < 0 {
			quoted[i] = a
			continue
		}
		quoted[i] = quote(a)
	}
	return strings.Join(quoted, " ")
}

func shQuote(a string) string { return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'" }

func cmdQuote(a string) string { return `"` + strings.ReplaceAll(a, `"`, `""`) + `"` }

func psQuote(a string) string { return "'" + strings.ReplaceAll(a, "'", "''") + "'" }

func always(rune) bool { return true }

func needsQuote(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r))
}

// Output is what a finished command left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Elapsed  time.Duration
	// Warnings are suspicious findings on an otherwise successful run.
	Warnings []string
}

// Runner executes commands.
type Runner interface {
	Execute(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs commands as child processes. A non-zero exit is not an
// error here; see CheckExitCode.
type ExecRunner struct{}

// fatalMarker on stdout of a successful run usually means a tool printed a
// failure without setting its exit code.
const fatalMarker = "fatal error"

func (ExecRunner) Execute(ctx context.Context, cmd Command) (Output, error) {
	name, args, err := cmd.Argv()
	if err != nil {
		return Output{}, err
	}
	span, ctx := trace.StartSpan(ctx, trace.ScopeCrate, "collaborator:"+cmd.Args[0])
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	runErr := c.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Elapsed: time.Since(start)}
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		span.WithExtra("error", runErr.Error()).End("failed to start")
		return out, fmt.Errorf("%s: %w", cmd.Args[0], runErr)
	}
	if out.ExitCode == 0 && bytes.Contains(bytes.ToLower(out.Stdout), []byte(fatalMarker)) {
		w := fmt.Sprintf("%s succeeded but its output mentions %q", cmd.Args[0], fatalMarker)
		out.Warnings = append(out.Warnings, w)
		trace.Point(ctx, trace.ScopeCrate, "collaborator:warning", w)
	}
	span.WithExtra("exit", fmt.Sprint(out.ExitCode)).End(cmd.String())
	return out, nil
}

// CommandError is a collaborator that exited with a non-zero status.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// CheckExitCode turns a failed run into a *CommandError carrying stderr.
func CheckExitCode(cmd Command, out Output) error {
	if out.ExitCode == 0 {
		return nil
	}
	return &CommandError{Command: cmd.String(), ExitCode: out.ExitCode, Stderr: string(out.Stderr)}
}

// Run executes cmd and checks its exit code.
func Run(ctx context.Context, r Runner, cmd Command) (Output, error) {
	out, err := r.Execute(ctx, cmd)
	if err != nil {
		return out, err
	}
	return out, CheckExitCode(cmd, out)
}

// Expand substitutes {name} placeholders in every argument.
func Expand(args []string, vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// EchoRunner prints each command line to W before handing it to Next.
type EchoRunner struct {
	Next Runner
	W    io.Writer
}

func (r EchoRunner) Execute(ctx context.Context, cmd Command) (Output, error) {
	if r.W != nil {
		if cmd.Dir != "" {
			fmt.Fprintf(r.W, "(cd %s) %s\n", cmd.Dir, cmd)
		} else {
			fmt.Fprintln(r.W, cmd.String())
		}
	}
	return r.Next.Execute(ctx, cmd)
}

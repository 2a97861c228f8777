package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bridgegen/internal/trace"
)

func addTraceFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("trace", "", "write a trace to this file (- for stderr)")
	f.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	f.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	f.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	f.Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")
}

// setupTracing attaches the configured tracer to the command context and
// returns the function that flushes and closes it.
func setupTracing(cmd *cobra.Command) (func(), error) {
	f := cmd.Root().PersistentFlags()
	output, err := f.GetString("trace")
	if err != nil {
		return nil, err
	}
	levelStr, err := f.GetString("trace-level")
	if err != nil {
		return nil, err
	}
	modeStr, err := f.GetString("trace-mode")
	if err != nil {
		return nil, err
	}
	ringSize, err := f.GetInt("trace-ring-size")
	if err != nil {
		return nil, err
	}
	heartbeatEvery, err := f.GetDuration("trace-heartbeat")
	if err != nil {
		return nil, err
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace level: %w", err)
	}
	if level == trace.LevelOff && output == "" {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}
	if level == trace.LevelOff {
		// a trace file without a level means phase tracing
		level = trace.LevelPhase
	}
	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace mode: %w", err)
	}
	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: output,
		RingSize:   ringSize,
		Heartbeat:  heartbeatEvery,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))

	var heartbeat *trace.Heartbeat
	if heartbeatEvery > 0 {
		heartbeat = trace.StartHeartbeat(tracer, heartbeatEvery)
	}
	start := time.Now()
	return func() {
		if heartbeat != nil {
			heartbeat.Stop()
		}
		trace.Point(cmd.Context(), trace.ScopeDriver, "exit", time.Since(start).Round(time.Millisecond).String())
		if ring := trace.Ring(tracer); ring != nil && output == "" {
			_ = ring.Dump(cmd.ErrOrStderr(), trace.FormatText)
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}, nil
}

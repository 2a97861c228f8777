// Package prof captures Go runtime profiles of a generator run.
package prof

import (
	"errors"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Config names the profile outputs; empty paths disable a profile.
type Config struct {
	CPU   string
	Mem   string
	Trace string
}

// Enabled reports whether any profile is requested.
func (c Config) Enabled() bool { return c.CPU != "" || c.Mem != "" || c.Trace != "" }

// Session is an active set of profiles. Only one CPU profile and one
// runtime trace can run per process.
type Session struct {
	cfg       Config
	cpuFile   *os.File
	traceFile *os.File
}

// Start begins the CPU profile and runtime trace named by cfg. On error
// nothing is left running.
func Start(cfg Config) (*Session, error) {
	s := &Session{cfg: cfg}
	if cfg.CPU != "" {
		f, err := os.Create(cfg.CPU)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		s.cpuFile = f
	}
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			s.stopCPU()
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopCPU()
			return nil, err
		}
		s.traceFile = f
	}
	return s, nil
}

// Stop ends running profiles and writes the heap profile if requested.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.traceFile != nil {
		trace.Stop()
		errs = append(errs, s.traceFile.Close())
		s.traceFile = nil
	}
	errs = append(errs, s.stopCPU())
	if s.cfg.Mem != "" {
		errs = append(errs, writeMem(s.cfg.Mem))
	}
	return errors.Join(errs...)
}

func (s *Session) stopCPU() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil
	return err
}

func writeMem(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}

// Package sandbox runs model-generated scripts with bounded time and
// resources. Scripts are untrusted: the docker sandbox isolates them, the
// process sandbox only bounds them.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// ScriptName is the file a script is written to inside the working
// directory. Artifact scans skip it.
const ScriptName = "_skillbench_script.py"

// DefaultImage is built from docker/sandbox/Dockerfile and carries the
// document libraries generated scripts import.
const DefaultImage = "skillbench-sandbox:latest"

const (
	ModeDocker  = "docker"
	ModeProcess = "process"
	ModeAuto    = "auto"
)

type Config struct {
	Mode      string
	Image     string
	Python    string
	Timeout   time.Duration
	MemoryMB  int64
	CPUs      float64
	PidsLimit int64
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeAuto
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 128
	}
	return c
}

type Request struct {
	// Script renders the program given the directory it will see as its
	// working and output directory.
	Script  func(dir string) string
	WorkDir string
	Timeout time.Duration
}

type Outcome struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Output   string
}

// Executor runs one script against a working directory.
type Executor interface {
	// Dir is the path the script sees for the host working directory.
	Dir(hostDir string) string
	Exec(ctx context.Context, req Request) (*Outcome, error)
	Name() string
}

// New builds the executor for cfg.Mode.
func New(cfg Config) (Executor, error) {
	cfg = cfg.withDefaults()
	switch cfg.Mode {
	case ModeDocker:
		return NewDocker(cfg), nil
	case ModeProcess:
		return NewProcess(cfg), nil
	case ModeAuto:
		return &Auto{Primary: NewDocker(cfg), Fallback: NewProcess(cfg)}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", cfg.Mode)
	}
}

// Auto prefers Primary and switches to Fallback for good the first time
// Primary cannot run a script at all. A script that fails on Primary only
// because a Python module is missing there is retried once on Fallback.
type Auto struct {
	Primary  Executor
	Fallback Executor
	degraded bool
}

func (a *Auto) active() Executor {
	if a.degraded {
		return a.Fallback
	}
	return a.Primary
}

func (a *Auto) Name() string { return a.active().Name() }

func (a *Auto) Dir(hostDir string) string { return a.active().Dir(hostDir) }

// Exec runs on the primary and retries on the fallback when the primary
// cannot run scripts at all or lacks a module the script imports.
func (a *Auto) Exec(ctx context.Context, req Request) (*Outcome, error) {
	if a.degraded {
		return a.Fallback.Exec(ctx, req)
	}
	out, err := a.Primary.Exec(ctx, req)
	if err != nil {
		slog.Warn("sandbox unavailable, falling back", "from", a.Primary.Name(), "to", a.Fallback.Name(), "err", err)
		a.degraded = true
		return a.Fallback.Exec(ctx, req)
	}
	if mod := MissingModule(out); mod != "" {
		slog.Warn("module missing in sandbox, retrying script", "module", mod, "from", a.Primary.Name(), "to", a.Fallback.Name())
		return a.Fallback.Exec(ctx, req)
	}
	return out, nil
}

var missingModule = regexp.MustCompile(`ModuleNotFoundError: No module named '([^']+)'`)

// MissingModule returns the module a failed script could not import, or
// "" when it failed for another reason.
func MissingModule(out *Outcome) string {
	if out == nil || out.ExitCode == 0 || out.TimedOut {
		return ""
	}
	m := missingModule.FindStringSubmatch(out.Output)
	if m == nil {
		return ""
	}
	return m[1]
}

// writeScript places code in the working directory and returns its host
// path and a cleanup func.
func writeScript(workDir, code string) (string, func(), error) {
	path := filepath.Join(workDir, ScriptName)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", nil, fmt.Errorf("writing script: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}

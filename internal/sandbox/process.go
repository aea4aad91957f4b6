package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/signalnine/skillbench/internal/docker"
)

const maxOutputBytes = 64 << 10

// Process runs scripts as a local child process in its own process group,
// with the harness's environment. It bounds run time only; the script can
// reach anything the harness can.
type Process struct {
	cfg Config
}

func NewProcess(cfg Config) *Process {
	return &Process{cfg: cfg.withDefaults()}
}

func (p *Process) Name() string { return ModeProcess }

func (p *Process) Dir(hostDir string) string { return hostDir }

func (p *Process) Exec(ctx context.Context, req Request) (*Outcome, error) {
	bin, err := exec.LookPath(p.cfg.Python)
	if err != nil {
		return nil, fmt.Errorf("finding interpreter %s: %w", p.cfg.Python, err)
	}
	script, cleanup, err := writeScript(req.WorkDir, req.Script(p.Dir(req.WorkDir)))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, script)
	cmd.Dir = req.WorkDir
	// The parent environment carries the interpreter's package setup
	// (PYTHONPATH, VIRTUAL_ENV, user site under HOME). Later entries win.
	cmd.Env = append(os.Environ(),
		"OUTPUT_DIR="+req.WorkDir,
		"MPLCONFIGDIR="+req.WorkDir,
	)
	var out bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &out, max: maxOutputBytes}
	cmd.Stderr = cmd.Stdout
	cmd.WaitDelay = 2 * time.Second
	setupProcessGroup(cmd)

	start := time.Now()
	err = cmd.Run()
	res := &Outcome{Duration: time.Since(start), Output: out.String()}
	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = docker.TimeoutExitCode
		return res, nil
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("running script: %w", err)
	}
	return res, nil
}

type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

package sandbox

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/signalnine/skillbench/internal/docker"
)

// Docker runs scripts in a throwaway container that sees only the working
// directory.
type Docker struct {
	cfg Config
	// Run and EnsureImage are swapped out in tests.
	Run         func(ctx context.Context, opts *docker.RunOpts) (*docker.RunResult, error)
	EnsureImage func(ctx context.Context, image string) error

	prepareOnce sync.Once
	prepareErr  error
}

func NewDocker(cfg Config) *Docker {
	return &Docker{cfg: cfg.withDefaults(), Run: docker.RunContainer, EnsureImage: docker.EnsureImage}
}

// Prepare checks once that the daemon is reachable and the image is
// present, pulling it if needed. Every later call returns the same result.
func (d *Docker) Prepare(ctx context.Context) error {
	d.prepareOnce.Do(func() {
		if err := d.EnsureImage(ctx, d.cfg.Image); err != nil {
			d.prepareErr = fmt.Errorf("sandbox image %s unavailable (build it from docker/sandbox): %w", d.cfg.Image, err)
		}
	})
	return d.prepareErr
}

func (d *Docker) Name() string { return ModeDocker }

func (d *Docker) Dir(string) string { return docker.WorkspaceTarget }

func (d *Docker) Exec(ctx context.Context, req Request) (*Outcome, error) {
	if err := d.Prepare(ctx); err != nil {
		return nil, err
	}
	_, cleanup, err := writeScript(req.WorkDir, req.Script(d.Dir(req.WorkDir)))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}
	res, err := d.Run(ctx, &docker.RunOpts{
		Image:       d.cfg.Image,
		Command:     []string{d.cfg.Python, path.Join(docker.WorkspaceTarget, ScriptName)},
		WorkDir:     req.WorkDir,
		Env:         map[string]string{"OUTPUT_DIR": docker.WorkspaceTarget, "HOME": "/tmp", "MPLCONFIGDIR": "/tmp"},
		Timeout:     timeout,
		CPULimit:    d.cfg.CPUs,
		MemoryLimit: d.cfg.MemoryMB << 20,
		PidsLimit:   d.cfg.PidsLimit,
		UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	})
	if err != nil {
		return nil, fmt.Errorf("running sandbox container: %w", err)
	}
	return &Outcome{
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
		Duration: res.Duration,
		Output:   res.Logs,
	}, nil
}

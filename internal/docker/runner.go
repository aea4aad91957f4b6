package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// WorkspaceTarget is where the task's working directory appears inside the
// container.
const WorkspaceTarget = "/workspace"

// TimeoutExitCode is reported when a container is killed for running past
// its deadline.
const TimeoutExitCode = 124

// SandboxLabel marks every container this package creates.
const SandboxLabel = "skillbench"

const maxLogBytes = 64 << 10

type RunOpts struct {
	Image   string
	Command []string
	// WorkDir is bind-mounted read-write at WorkspaceTarget. Nothing else
	// from the host is visible.
	WorkDir     string
	Env         map[string]string
	Timeout     time.Duration
	CPULimit    float64
	MemoryLimit int64
	PidsLimit   int64
	UserID      string
	// Network defaults to "none".
	Network string
}

type RunResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Logs     string
}

// Configs translates opts into the container and host configuration of a
// locked-down sandbox: read-only root, no capabilities, tmpfs /tmp, and the
// working directory as the only mount.
func Configs(opts *RunOpts) (*container.Config, *container.HostConfig) {
	env := make([]string, 0, len(opts.Env))
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		env = append(env, k+"="+opts.Env[k])
	}
	cfg := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Command,
		Env:        env,
		WorkingDir: WorkspaceTarget,
		User:       opts.UserID,
		Labels:     map[string]string{SandboxLabel: "sandbox"},
	}

	network := opts.Network
	if network == "" {
		network = "none"
	}
	useInit := true
	host := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: opts.WorkDir,
			Target: WorkspaceTarget,
		}},
		Init:           &useInit,
		NetworkMode:    container.NetworkMode(network),
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=64m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
	}
	host.NanoCPUs = int64(opts.CPULimit * 1e9)
	host.Memory = opts.MemoryLimit
	if opts.PidsLimit > 0 {
		pids := opts.PidsLimit
		host.PidsLimit = &pids
	}
	return cfg, host
}

// EnsureImage makes image available to the daemon, pulling it when it is
// not present locally. It also fails when the daemon is unreachable.
func EnsureImage(ctx context.Context, image string) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	_, err = cli.ImageInspect(ctx, image)
	if err == nil {
		return nil
	}
	if !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("inspecting image %s: %w", image, err)
	}
	slog.Info("pulling sandbox image", "image", image)
	pull, err := cli.ImagePull(ctx, image, client.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", image, err)
	}
	defer pull.Close()
	if err := pull.Wait(ctx); err != nil {
		return fmt.Errorf("pulling image %s: %w", image, err)
	}
	return nil
}

// RunContainer runs a throwaway sandbox container, waits for it up to
// opts.Timeout, and removes it. A timeout is a result, not an error.
func RunContainer(ctx context.Context, opts *RunOpts) (*RunResult, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	cfg, host := Configs(opts)
	created, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{Config: cfg, HostConfig: host})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	id := created.ID
	defer cli.ContainerRemove(context.Background(), id, client.ContainerRemoveOptions{Force: true})

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	res := &RunResult{}
	res.ExitCode, res.TimedOut = wait(ctx, cli, id, opts.Timeout)
	res.Duration = time.Since(start)
	res.Logs = containerLogs(cli, id)
	return res, nil
}

// wait blocks until the container exits or timeout passes, killing it in
// the latter case.
func wait(ctx context.Context, cli *client.Client, id string, timeout time.Duration) (exitCode int, timedOut bool) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	waited := cli.ContainerWait(waitCtx, id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case status := <-waited.Result:
			return int(status.StatusCode), false
		case err := <-waited.Error:
			if err == nil {
				continue
			}
			cli.ContainerKill(context.Background(), id, client.ContainerKillOptions{Signal: "SIGKILL"})
			slog.Debug("sandbox container killed", "container", shortID(id), "timeout", timeout, "err", err)
			return TimeoutExitCode, true
		}
	}
}

func containerLogs(cli *client.Client, id string) string {
	logs, err := cli.ContainerLogs(context.Background(), id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: "100"})
	if err != nil || logs == nil {
		return ""
	}
	defer logs.Close()
	data, _ := io.ReadAll(io.LimitReader(logs, maxLogBytes))
	return string(data)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Package gateway runs a local LiteLLM proxy so provider credentials stay
// in one process and every model is reachable through one
// OpenAI-compatible endpoint.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signalnine/skillbench/internal/completion"
	"github.com/signalnine/skillbench/internal/config"
)

// HealthPath is polled until the proxy answers.
const HealthPath = "/health/liveliness"

const defaultStartTimeout = 30 * time.Second

type Gateway struct {
	// Addr is the host:port the proxy listens on.
	Addr    string
	LogPath string
	cmd     *exec.Cmd
	exited  chan error
	logFile *os.File
}

type StartOpts struct {
	// Command defaults to "litellm".
	Command        string
	ConfigFile     string
	SecretsEnvFile string
	LogDir         string
	// Port 0 picks a free loopback port.
	Port         int
	StartTimeout time.Duration
}

// OptsFromConfig maps the gateway and secrets sections onto StartOpts.
func OptsFromConfig(cfg *config.Config) *StartOpts {
	return &StartOpts{
		Command:        cfg.Gateway.Command,
		ConfigFile:     cfg.Gateway.Config,
		SecretsEnvFile: cfg.Secrets.EnvFile,
		LogDir:         cfg.Gateway.LogDir,
		Port:           cfg.Gateway.Port,
		StartTimeout:   cfg.Gateway.StartTimeout(),
	}
}

// BaseURL is the value for completion.ClientOpts.BaseURL.
func (g *Gateway) BaseURL() string {
	return "http://" + g.Addr + "/v1"
}

// Start launches the proxy and blocks until it answers its health check,
// exits, or the start timeout passes.
func Start(ctx context.Context, opts *StartOpts) (*Gateway, error) {
	addr, err := listenAddr(opts.Port)
	if err != nil {
		return nil, err
	}
	_, port, _ := net.SplitHostPort(addr)

	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating gateway log dir: %w", err)
	}
	g := &Gateway{Addr: addr, LogPath: filepath.Join(opts.LogDir, "litellm-"+port+".log")}
	if g.logFile, err = os.Create(g.LogPath); err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	command := opts.Command
	if command == "" {
		command = "litellm"
	}
	args := []string{"--host", "127.0.0.1", "--port", port}
	if opts.ConfigFile != "" {
		args = append(args, "--config", opts.ConfigFile)
	}
	g.cmd = exec.CommandContext(ctx, command, args...)
	g.cmd.Stdout = g.logFile
	g.cmd.Stderr = g.logFile
	g.cmd.Env = os.Environ()
	if opts.SecretsEnvFile != "" {
		secrets, err := completion.ReadEnvFile(opts.SecretsEnvFile)
		if err != nil {
			g.logFile.Close()
			return nil, fmt.Errorf("reading secrets env file: %w", err)
		}
		g.cmd.Env = append(g.cmd.Env, secrets...)
	}

	if err := g.cmd.Start(); err != nil {
		g.logFile.Close()
		return nil, fmt.Errorf("starting %s: %w", command, err)
	}
	g.exited = make(chan error, 1)
	go func() { g.exited <- g.cmd.Wait() }()

	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	if err := g.awaitHealthy(ctx, timeout); err != nil {
		g.Stop()
		return nil, fmt.Errorf("%s did not start (see %s): %w", command, g.LogPath, err)
	}
	slog.Info("gateway started", "addr", addr, "log", g.LogPath)
	return g, nil
}

// listenAddr returns the loopback address for port, reserving a free one
// when port is 0.
func listenAddr(port int) (string, error) {
	if port > 0 {
		return net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("finding free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().String(), nil
}

func (g *Gateway) awaitHealthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := &http.Client{Timeout: time.Second}
	health := "http://" + g.Addr + HealthPath

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, health, nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode < http.StatusInternalServerError {
				return nil
			}
		}
		select {
		case err := <-g.exited:
			g.exited <- err
			if err == nil {
				err = errors.New("exited before becoming healthy")
			}
			return fmt.Errorf("gateway process ended: %w", err)
		case <-ctx.Done():
			return fmt.Errorf("%s not healthy after %s", health, timeout)
		case <-tick.C:
		}
	}
}

// Stop kills the proxy and waits for it to exit.
func (g *Gateway) Stop() error {
	if g.cmd != nil && g.cmd.Process != nil {
		g.cmd.Process.Kill()
		if g.exited != nil {
			<-g.exited
			close(g.exited)
			g.exited = nil
		}
	}
	if g.logFile != nil {
		g.logFile.Close()
		g.logFile = nil
	}
	return nil
}

package config_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/skillbench/internal/config"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Models.Judge != "gpt-4o-mini" {
		t.Errorf("expected judge to default to task model, got %q", cfg.Models.Judge)
	}
	if cfg.Sandbox.Mode != "auto" {
		t.Errorf("expected sandbox mode auto, got %q", cfg.Sandbox.Mode)
	}
	if cfg.Sandbox.Timeout() != 30*time.Second {
		t.Errorf("expected 30s block timeout, got %v", cfg.Sandbox.Timeout())
	}
	if cfg.Scoring.TaskWeight != 0.6 || cfg.Scoring.QualityWeight != 0.4 {
		t.Errorf("expected default weights 0.6/0.4, got %v/%v", cfg.Scoring.TaskWeight, cfg.Scoring.QualityWeight)
	}
	if cfg.Scoring.TaskMetric != "criteria" {
		t.Errorf("expected criteria metric, got %q", cfg.Scoring.TaskMetric)
	}
	if cfg.Completion.MaxTokens != 4096 || cfg.Completion.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("unexpected completion defaults: %+v", cfg.Completion)
	}
	if cfg.Quality.Rounds != 1 {
		t.Errorf("expected 1 judge round, got %d", cfg.Quality.Rounds)
	}
	if cfg.Results.Dir != "results" {
		t.Errorf("expected results dir 'results', got %q", cfg.Results.Dir)
	}
	if cfg.Gateway.LogDir != filepath.Join("results", "gateway") {
		t.Errorf("expected gateway logs under results, got %q", cfg.Gateway.LogDir)
	}
	if cfg.Gateway.Port != 0 || cfg.Gateway.StartTimeout() != 30*time.Second {
		t.Errorf("unexpected gateway defaults: port %d, start timeout %v", cfg.Gateway.Port, cfg.Gateway.StartTimeout())
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Models.Judge != "claude-sonnet-4-5" {
		t.Errorf("expected judge model, got %q", cfg.Models.Judge)
	}
	if !cfg.Gateway.Enabled || cfg.Gateway.Config != "litellm.yaml" {
		t.Errorf("unexpected gateway: %+v", cfg.Gateway)
	}
	if cfg.Completion.Delay() != time.Second {
		t.Errorf("expected 1s delay, got %v", cfg.Completion.Delay())
	}
	if cfg.Sandbox.MemoryMB != 1024 || !cfg.Sandbox.KeepArtifacts {
		t.Errorf("unexpected sandbox: %+v", cfg.Sandbox)
	}
	if cfg.Quality.Rounds != 3 || cfg.Quality.Seed != 7 {
		t.Errorf("unexpected quality: %+v", cfg.Quality)
	}
	if cfg.Scoring.TaskMetric != "tasks" || cfg.Scoring.TaskWeight != 0.5 {
		t.Errorf("unexpected scoring: %+v", cfg.Scoring)
	}
	if cfg.Secrets.EnvFile == "" {
		t.Error("expected secrets env_file to be set")
	}
	if cfg.Results.Leaderboard != "out/leaderboard.db" {
		t.Errorf("unexpected leaderboard path %q", cfg.Results.Leaderboard)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"../../testdata/invalid.yaml", "parsing config"},
		{"../../testdata/bad_weights.yaml", "weights must not be negative"},
		{"../../testdata/bad_mode.yaml", "unknown mode"},
	}
	for _, tt := range tests {
		_, err := config.Load(tt.path)
		if err == nil {
			t.Errorf("%s: expected error", tt.path)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error %q does not mention %q", tt.path, err, tt.want)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Models.Task == "" || cfg.Sandbox.Mode != "auto" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Models     Models     `yaml:"models"`
	Completion Completion `yaml:"completion"`
	Gateway    Gateway    `yaml:"gateway"`
	Sandbox    Sandbox    `yaml:"sandbox"`
	Quality    Quality    `yaml:"quality"`
	Scoring    Scoring    `yaml:"scoring"`
	Pricing    Pricing    `yaml:"pricing"`
	Secrets    Secrets    `yaml:"secrets"`
	Results    Results    `yaml:"results"`
}

type Models struct {
	Task  string `yaml:"task"`
	Judge string `yaml:"judge"`
}

type Completion struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DelayMS        int    `yaml:"delay_ms"`
	UsageLog       string `yaml:"usage_log"`
}

// Gateway optionally starts a local LiteLLM proxy that completion calls go
// through instead of base_url.
type Gateway struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
	Config  string `yaml:"config"`
	LogDir  string `yaml:"log_dir"`
	// Port 0 picks a free port.
	Port                int `yaml:"port"`
	StartTimeoutSeconds int `yaml:"start_timeout_seconds"`
}

type Sandbox struct {
	Mode           string  `yaml:"mode"`
	Image          string  `yaml:"image"`
	Python         string  `yaml:"python"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MemoryMB       int64   `yaml:"memory_mb"`
	CPUs           float64 `yaml:"cpus"`
	PidsLimit      int64   `yaml:"pids_limit"`
	WorkDir        string  `yaml:"work_dir"`
	KeepArtifacts  bool    `yaml:"keep_artifacts"`
}

type Quality struct {
	// Rounds is how many judge calls decide each comparison.
	Rounds int `yaml:"rounds"`
	// Seed fixes the presentation coin flips; 0 is random.
	Seed uint64 `yaml:"seed"`
}

type Scoring struct {
	TaskWeight    float64 `yaml:"task_weight"`
	QualityWeight float64 `yaml:"quality_weight"`
	TaskMetric    string  `yaml:"task_metric"`
	// Seed fixes the bootstrap interval; 0 is random.
	Seed int64 `yaml:"seed"`
}

type Pricing struct {
	File string `yaml:"file"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Results struct {
	Dir         string `yaml:"dir"`
	Leaderboard string `yaml:"leaderboard"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	if err := validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Models.Task == "" {
		cfg.Models.Task = "gpt-4o-mini"
	}
	if cfg.Models.Judge == "" {
		cfg.Models.Judge = cfg.Models.Task
	}

	c := &cfg.Completion
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.MaxTokens < 0 || c.TimeoutSeconds < 0 || c.DelayMS < 0 {
		return fmt.Errorf("completion: max_tokens, timeout_seconds and delay_ms must not be negative")
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 120
	}

	if cfg.Gateway.Enabled && cfg.Gateway.Config == "" {
		return fmt.Errorf("gateway: config is required when enabled")
	}
	if cfg.Gateway.Command == "" {
		cfg.Gateway.Command = "litellm"
	}
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 || cfg.Gateway.StartTimeoutSeconds < 0 {
		return fmt.Errorf("gateway: port must be 0-65535 and start_timeout_seconds must not be negative")
	}
	if cfg.Gateway.StartTimeoutSeconds == 0 {
		cfg.Gateway.StartTimeoutSeconds = 30
	}

	s := &cfg.Sandbox
	switch s.Mode {
	case "":
		s.Mode = "auto"
	case "auto", "docker", "process":
	default:
		return fmt.Errorf("sandbox: unknown mode %q (want auto, docker or process)", s.Mode)
	}
	if s.TimeoutSeconds < 0 || s.MemoryMB < 0 || s.CPUs < 0 || s.PidsLimit < 0 {
		return fmt.Errorf("sandbox: limits must not be negative")
	}
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = 30
	}
	if s.MemoryMB == 0 {
		s.MemoryMB = 512
	}
	if s.CPUs == 0 {
		s.CPUs = 1
	}

	if cfg.Quality.Rounds < 0 {
		return fmt.Errorf("quality: rounds must not be negative")
	}
	if cfg.Quality.Rounds == 0 {
		cfg.Quality.Rounds = 1
	}

	sc := &cfg.Scoring
	if sc.TaskWeight < 0 || sc.QualityWeight < 0 {
		return fmt.Errorf("scoring: weights must not be negative")
	}
	if sc.TaskWeight == 0 && sc.QualityWeight == 0 {
		sc.TaskWeight, sc.QualityWeight = 0.6, 0.4
	}
	switch sc.TaskMetric {
	case "":
		sc.TaskMetric = "criteria"
	case "criteria", "tasks":
	default:
		return fmt.Errorf("scoring: unknown task_metric %q (want criteria or tasks)", sc.TaskMetric)
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Gateway.LogDir == "" {
		cfg.Gateway.LogDir = filepath.Join(cfg.Results.Dir, "gateway")
	}
	return nil
}

func (c *Completion) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

func (c *Completion) Delay() time.Duration { return time.Duration(c.DelayMS) * time.Millisecond }

func (g *Gateway) StartTimeout() time.Duration {
	return time.Duration(g.StartTimeoutSeconds) * time.Second
}

func (s *Sandbox) Timeout() time.Duration { return time.Duration(s.TimeoutSeconds) * time.Second }

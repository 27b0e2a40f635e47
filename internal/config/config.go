// Package config loads skilltune's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	LauncherLocal  = "local"
	LauncherDocker = "docker"
)

type Config struct {
	SkillPath string   `yaml:"skill_path"`
	EvalSet   string   `yaml:"eval_set"`
	Agent     Agent    `yaml:"agent"`
	Eval      Eval     `yaml:"eval"`
	Loop      Loop     `yaml:"loop"`
	Rewriter  Rewriter `yaml:"rewriter"`
	Secrets   Secrets  `yaml:"secrets"`
	Results   Results  `yaml:"results"`
	Log       Log      `yaml:"log"`
}

// Agent controls how the decision process is started.
type Agent struct {
	Command  string `yaml:"command"`
	Model    string `yaml:"model"`
	Launcher string `yaml:"launcher"`
	// Image, Env, CPULimit and MemoryLimit apply to the docker launcher.
	Image       string            `yaml:"image"`
	Env         map[string]string `yaml:"env"`
	CPULimit    float64           `yaml:"cpu_limit"`
	MemoryLimit int64             `yaml:"memory_limit"`
	// ProjectRoot defaults to the nearest ancestor with a .claude dir.
	ProjectRoot      string `yaml:"project_root"`
	LenientDetection bool   `yaml:"lenient_detection"`
	PollIntervalMS   int    `yaml:"poll_interval_ms"`
}

type Eval struct {
	Workers          int     `yaml:"workers"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	RunsPerQuery     int     `yaml:"runs_per_query"`
	TriggerThreshold float64 `yaml:"trigger_threshold"`
}

type Loop struct {
	MaxIterations int     `yaml:"max_iterations"`
	Holdout       float64 `yaml:"holdout"`
	Seed          int64   `yaml:"seed"`
}

type Rewriter struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	BaseURL             string `yaml:"base_url"`
	MaxTokens           int64  `yaml:"max_tokens"`
	ThinkingBudget      int64  `yaml:"thinking_budget"`
	MaxDescriptionChars int    `yaml:"max_description_chars"`
	PricingFile         string `yaml:"pricing_file"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is given. Files
// are decoded on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Agent: Agent{
			Command:        "claude",
			Launcher:       LauncherLocal,
			PollIntervalMS: 1000,
		},
		Eval: Eval{
			Workers:          10,
			TimeoutSeconds:   30,
			RunsPerQuery:     3,
			TriggerThreshold: 0.5,
		},
		Loop: Loop{
			MaxIterations: 5,
			Holdout:       0.4,
			Seed:          42,
		},
		Rewriter: Rewriter{
			Provider:            "anthropic",
			MaxTokens:           16000,
			ThinkingBudget:      10000,
			MaxDescriptionChars: 1024,
		},
		Results: Results{Dir: "results"},
		Log:     Log{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does
// not exist and missingOK is set.
func LoadOrDefault(path string, missingOK bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && missingOK && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks ranges and fills fallbacks. It runs again after CLI
// overrides are merged in.
func (cfg *Config) Validate() error {
	a := &cfg.Agent
	if a.Command == "" {
		a.Command = "claude"
	}
	switch a.Launcher {
	case "":
		a.Launcher = LauncherLocal
	case LauncherLocal:
	case LauncherDocker:
		if a.Image == "" {
			return fmt.Errorf("agent.image is required for the docker launcher")
		}
	default:
		return fmt.Errorf("agent.launcher must be %q or %q, got %q", LauncherLocal, LauncherDocker, a.Launcher)
	}
	if a.PollIntervalMS <= 0 {
		a.PollIntervalMS = 1000
	}

	e := &cfg.Eval
	if e.Workers < 1 {
		return fmt.Errorf("eval.workers must be at least 1")
	}
	if e.TimeoutSeconds < 1 {
		return fmt.Errorf("eval.timeout_seconds must be at least 1")
	}
	if e.RunsPerQuery < 1 {
		return fmt.Errorf("eval.runs_per_query must be at least 1")
	}
	if e.TriggerThreshold < 0 || e.TriggerThreshold > 1 {
		return fmt.Errorf("eval.trigger_threshold must be in [0, 1], got %v", e.TriggerThreshold)
	}

	if cfg.Loop.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be at least 1")
	}
	if cfg.Loop.Holdout < 0 || cfg.Loop.Holdout >= 1 {
		return fmt.Errorf("loop.holdout must be in [0, 1), got %v", cfg.Loop.Holdout)
	}

	r := &cfg.Rewriter
	switch r.Provider {
	case "":
		r.Provider = "anthropic"
	case "anthropic", "openai":
	default:
		return fmt.Errorf("rewriter.provider must be anthropic or openai, got %q", r.Provider)
	}
	if r.MaxTokens < 1 {
		r.MaxTokens = 16000
	}
	if r.ThinkingBudget < 0 {
		return fmt.Errorf("rewriter.thinking_budget must not be negative")
	}
	if r.ThinkingBudget > 0 && r.ThinkingBudget >= r.MaxTokens {
		return fmt.Errorf("rewriter.thinking_budget (%d) must be below max_tokens (%d)", r.ThinkingBudget, r.MaxTokens)
	}
	if r.MaxDescriptionChars < 1 {
		r.MaxDescriptionChars = 1024
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	return nil
}

func (a Agent) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

func (e Eval) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// LoadSecrets exports the variables in a dotenv file. Variables already
// set in the environment win. An empty path is a no-op.
func LoadSecrets(envFile string) error {
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("loading secrets from %s: %w", envFile, err)
	}
	return nil
}

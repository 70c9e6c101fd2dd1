// Package projectconfig provides the ProjectConfig struct and loader for
// .textplay.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".textplay.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultEngine    = "copilot-sdk"
	DefaultModel     = "claude-sonnet-4.6"
	DefaultAPIKeyEnv = "GEMINI_API_KEY"
	DefaultTimeout   = 120

	DefaultPolicy      = "model"
	DefaultStrategy    = "thinking"
	DefaultWindowSize  = 10
	DefaultTokenBudget = 4000
	DefaultFixedAction = "open mailbox"

	DefaultEnvironment = "scripted"

	DefaultMaxTurns = 100
	DefaultEpisodes = 1
	DefaultWorkers  = 4

	DefaultTranscript = "transcript.txt"
	DefaultRecordsDir = "results/"
)

// CompletionConfig selects and configures the completion service.
type CompletionConfig struct {
	Engine    string `yaml:"engine,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Timeout   int    `yaml:"timeout,omitempty"`
}

// PolicyConfig holds decision policy settings. Options is passed through to
// the selected policy unchanged.
type PolicyConfig struct {
	Name     string `yaml:"name,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`
	// Context is a transcript context kind; empty lets the strategy choose
	Context     string         `yaml:"context,omitempty"`
	WindowSize  int            `yaml:"window_size,omitempty"`
	TokenBudget int            `yaml:"token_budget,omitempty"`
	FixedAction string         `yaml:"fixed_action,omitempty"`
	Seed        *int64         `yaml:"seed,omitempty"`
	Options     map[string]any `yaml:"options,omitempty"`
}

// EnvironmentConfig says where the game comes from.
type EnvironmentConfig struct {
	Kind    string   `yaml:"kind,omitempty"`
	Script  string   `yaml:"script,omitempty"`
	Command []string `yaml:"command,omitempty"`
	URL     string   `yaml:"url,omitempty"`
}

// EpisodeConfig bounds how much is played.
type EpisodeConfig struct {
	MaxTurns int `yaml:"max_turns,omitempty"`
	Episodes int `yaml:"episodes,omitempty"`
	Workers  int `yaml:"workers,omitempty"`
}

// OutputConfig holds snapshot, record and log destinations.
type OutputConfig struct {
	Transcript  string `yaml:"transcript,omitempty"`
	RecordsDir  string `yaml:"records_dir,omitempty"`
	Compress    *bool  `yaml:"compress,omitempty"`
	SessionLog  string `yaml:"session_log,omitempty"`
	LogFile     string `yaml:"log_file,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	Verbose     *bool  `yaml:"verbose,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .textplay.yaml.
type ProjectConfig struct {
	Completion  CompletionConfig  `yaml:"completion,omitempty"`
	Policy      PolicyConfig      `yaml:"policy,omitempty"`
	Environment EnvironmentConfig `yaml:"environment,omitempty"`
	Episode     EpisodeConfig     `yaml:"episode,omitempty"`
	Output      OutputConfig      `yaml:"output,omitempty"`

	// Path is the file the config was read from, empty for pure defaults.
	Path string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Completion: CompletionConfig{
			Engine:    DefaultEngine,
			Model:     DefaultModel,
			APIKeyEnv: DefaultAPIKeyEnv,
			Timeout:   DefaultTimeout,
		},
		Policy: PolicyConfig{
			Name:        DefaultPolicy,
			Strategy:    DefaultStrategy,
			WindowSize:  DefaultWindowSize,
			TokenBudget: DefaultTokenBudget,
			FixedAction: DefaultFixedAction,
		},
		Environment: EnvironmentConfig{
			Kind: DefaultEnvironment,
		},
		Episode: EpisodeConfig{
			MaxTurns: DefaultMaxTurns,
			Episodes: DefaultEpisodes,
			Workers:  DefaultWorkers,
		},
		Output: OutputConfig{
			Transcript: DefaultTranscript,
			RecordsDir: DefaultRecordsDir,
			Compress:   boolPtr(false),
			Verbose:    boolPtr(false),
		},
	}
}

// Load finds .textplay.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	if err := merge(cfg, data); err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// LoadFile reads an explicit config file. Unlike Load, a missing file is an error.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg := New()
	if err := merge(cfg, data); err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

func merge(cfg *ProjectConfig, data []byte) error {
	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing %s: %w", FileName, err)
	}
	mergeConfig(cfg, &fileCfg)
	return nil
}

// ResolvePath interprets p relative to the directory of the config file.
func (c *ProjectConfig) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

// findConfigFile walks up from dir looking for .textplay.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) (string, []byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Completion
	if src.Completion.Engine != "" {
		dst.Completion.Engine = src.Completion.Engine
	}
	if src.Completion.Model != "" {
		dst.Completion.Model = src.Completion.Model
	}
	if src.Completion.APIKeyEnv != "" {
		dst.Completion.APIKeyEnv = src.Completion.APIKeyEnv
	}
	if src.Completion.Timeout != 0 {
		dst.Completion.Timeout = src.Completion.Timeout
	}

	// Policy
	if src.Policy.Name != "" {
		dst.Policy.Name = src.Policy.Name
	}
	if src.Policy.Strategy != "" {
		dst.Policy.Strategy = src.Policy.Strategy
	}
	if src.Policy.Context != "" {
		dst.Policy.Context = src.Policy.Context
	}
	if src.Policy.WindowSize != 0 {
		dst.Policy.WindowSize = src.Policy.WindowSize
	}
	if src.Policy.TokenBudget != 0 {
		dst.Policy.TokenBudget = src.Policy.TokenBudget
	}
	if src.Policy.FixedAction != "" {
		dst.Policy.FixedAction = src.Policy.FixedAction
	}
	if src.Policy.Seed != nil {
		dst.Policy.Seed = src.Policy.Seed
	}
	if src.Policy.Options != nil {
		dst.Policy.Options = src.Policy.Options
	}

	// Environment
	if src.Environment.Kind != "" {
		dst.Environment.Kind = src.Environment.Kind
	}
	if src.Environment.Script != "" {
		dst.Environment.Script = src.Environment.Script
	}
	if len(src.Environment.Command) > 0 {
		dst.Environment.Command = src.Environment.Command
	}
	if src.Environment.URL != "" {
		dst.Environment.URL = src.Environment.URL
	}

	// Episode
	if src.Episode.MaxTurns != 0 {
		dst.Episode.MaxTurns = src.Episode.MaxTurns
	}
	if src.Episode.Episodes != 0 {
		dst.Episode.Episodes = src.Episode.Episodes
	}
	if src.Episode.Workers != 0 {
		dst.Episode.Workers = src.Episode.Workers
	}

	// Output
	if src.Output.Transcript != "" {
		dst.Output.Transcript = src.Output.Transcript
	}
	if src.Output.RecordsDir != "" {
		dst.Output.RecordsDir = src.Output.RecordsDir
	}
	if src.Output.Compress != nil {
		dst.Output.Compress = src.Output.Compress
	}
	if src.Output.SessionLog != "" {
		dst.Output.SessionLog = src.Output.SessionLog
	}
	if src.Output.LogFile != "" {
		dst.Output.LogFile = src.Output.LogFile
	}
	if src.Output.MetricsAddr != "" {
		dst.Output.MetricsAddr = src.Output.MetricsAddr
	}
	if src.Output.Verbose != nil {
		dst.Output.Verbose = src.Output.Verbose
	}
}

func boolPtr(b bool) *bool {
	return &b
}

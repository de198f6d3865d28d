// Package config provides configuration loading for betterctx.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Explicit --config flag path
//  2. BETTERCTX_CONFIG environment variable
//  3. Default search paths (in order):
//     - ./config.yaml (current directory)
//     - <xdg config home>/betterctx/config.yaml
//
// When an explicit config path is provided the file must exist or loading
// fails. Default search paths are optional; when no file is found the
// defaults below apply. Paths support tilde expansion, and environment
// variables with the BETTERCTX_ prefix override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
)

// Defaults applied when the config file leaves a key unset.
const (
	DefaultProvider        = "anthropic"
	DefaultModel           = "claude-sonnet-4-5"
	DefaultBasePort        = 3420
	DefaultMaxPortAttempts = 30
	DefaultAgentCommand    = "opencode"
)

// GitRetrySettings holds file-level configuration for git network retry
// behaviour. Duration fields are strings ("1s"); use Parse for runtime use.
type GitRetrySettings struct {
	MaxAttempts  int     `mapstructure:"max_attempts"`
	InitialDelay string  `mapstructure:"initial_delay"`
	MaxDelay     string  `mapstructure:"max_delay"`
	Multiplier   float64 `mapstructure:"multiplier"`
	JitterFactor float64 `mapstructure:"jitter_factor"`
}

// ParsedRetryConfig holds the parsed retry configuration with proper Go types.
type ParsedRetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// Parse converts the string-based settings into runtime types.
func (r GitRetrySettings) Parse() (ParsedRetryConfig, error) {
	initialDelay, err := time.ParseDuration(r.InitialDelay)
	if err != nil {
		return ParsedRetryConfig{}, cerrors.NewConfigInvalid(fmt.Sprintf("git.retry.initial_delay: invalid duration %q: %v", r.InitialDelay, err))
	}

	maxDelay, err := time.ParseDuration(r.MaxDelay)
	if err != nil {
		return ParsedRetryConfig{}, cerrors.NewConfigInvalid(fmt.Sprintf("git.retry.max_delay: invalid duration %q: %v", r.MaxDelay, err))
	}

	return ParsedRetryConfig{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   r.Multiplier,
		JitterFactor: r.JitterFactor,
	}, nil
}

// GitConfig holds git-related configuration.
type GitConfig struct {
	Retry GitRetrySettings `mapstructure:"retry"`
}

// AgentConfig selects the backend process and the model injected into it.
type AgentConfig struct {
	Command         string `mapstructure:"command"`
	Provider        string `mapstructure:"provider"`
	Model           string `mapstructure:"model"`
	BasePort        int    `mapstructure:"base_port"`
	MaxPortAttempts int    `mapstructure:"max_port_attempts"`
}

// Config holds the global configuration.
type Config struct {
	ConfigRoot     string      `mapstructure:"config_root"`
	ReposRoot      string      `mapstructure:"repos_root"`
	WorkspacesRoot string      `mapstructure:"workspaces_root"`
	Agent          AgentConfig `mapstructure:"agent"`
	Git            GitConfig   `mapstructure:"git"`
	Debug          bool        `mapstructure:"debug"`
}

// Load reads configuration from the given path (empty means default search
// paths) and applies defaults for anything unset.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, cerrors.NewIOFailed("resolve home directory", err)
	}

	defaultRoot := filepath.Join(xdg.ConfigHome, "betterctx")

	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("config_root", defaultRoot)
	v.SetDefault("agent.command", DefaultAgentCommand)
	v.SetDefault("agent.provider", DefaultProvider)
	v.SetDefault("agent.model", DefaultModel)
	v.SetDefault("agent.base_port", DefaultBasePort)
	v.SetDefault("agent.max_port_attempts", DefaultMaxPortAttempts)
	v.SetDefault("git.retry.max_attempts", 3)
	v.SetDefault("git.retry.initial_delay", "1s")
	v.SetDefault("git.retry.max_delay", "30s")
	v.SetDefault("git.retry.multiplier", 2.0)
	v.SetDefault("git.retry.jitter_factor", 0.25)

	explicitConfigPath := false

	switch {
	case configPath != "":
		v.SetConfigFile(expandPath(configPath, home))

		explicitConfigPath = true
	case os.Getenv("BETTERCTX_CONFIG") != "":
		v.SetConfigFile(expandPath(os.Getenv("BETTERCTX_CONFIG"), home))

		explicitConfigPath = true
	default:
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultRoot)
	}

	v.SetEnvPrefix("BETTERCTX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found: fail fast if an explicit path was
			// provided, otherwise run on defaults.
			if explicitConfigPath {
				return nil, cerrors.NewIOFailed("read config file", fmt.Errorf("config file not found: %s", v.ConfigFileUsed()))
			}
		} else {
			return nil, cerrors.NewIOFailed("read config file", err)
		}
	}

	var cfg Config

	// Strict unmarshal surfaces typos in config keys.
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, cerrors.NewConfigInvalid(fmt.Sprintf("failed to unmarshal: %v", err))
	}

	cfg.ConfigRoot = expandPath(cfg.ConfigRoot, home)

	if cfg.ReposRoot == "" {
		cfg.ReposRoot = filepath.Join(cfg.ConfigRoot, "repos")
	}

	if cfg.WorkspacesRoot == "" {
		cfg.WorkspacesRoot = filepath.Join(cfg.ConfigRoot, "workspaces")
	}

	cfg.ReposRoot = expandPath(cfg.ReposRoot, home)
	cfg.WorkspacesRoot = expandPath(cfg.WorkspacesRoot, home)

	return &cfg, nil
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	if c.ConfigRoot == "" {
		return cerrors.NewConfigInvalid("config_root is required")
	}

	if c.Agent.BasePort <= 0 || c.Agent.BasePort > 65535 {
		return cerrors.NewConfigInvalid(fmt.Sprintf("agent.base_port %d out of range", c.Agent.BasePort))
	}

	if c.Agent.MaxPortAttempts <= 0 {
		return cerrors.NewConfigInvalid("agent.max_port_attempts must be positive")
	}

	if c.Agent.Provider == "" || c.Agent.Model == "" {
		return cerrors.NewConfigInvalid("agent.provider and agent.model are required")
	}

	return nil
}

// RegistryPath returns the location of the resource registry document.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.ConfigRoot, "resources.json")
}

func expandPath(path, home string) string {
	if path == "~" {
		return home
	}

	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(home, path[2:])
	}

	return path
}

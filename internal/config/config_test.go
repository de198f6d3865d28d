package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultProvider, cfg.Agent.Provider)
	assert.Equal(t, DefaultModel, cfg.Agent.Model)
	assert.Equal(t, DefaultBasePort, cfg.Agent.BasePort)
	assert.Equal(t, DefaultMaxPortAttempts, cfg.Agent.MaxPortAttempts)
	assert.Equal(t, DefaultAgentCommand, cfg.Agent.Command)

	assert.NotEmpty(t, cfg.ConfigRoot)
	assert.Equal(t, filepath.Join(cfg.ConfigRoot, "repos"), cfg.ReposRoot)
	assert.Equal(t, filepath.Join(cfg.ConfigRoot, "workspaces"), cfg.WorkspacesRoot)
	assert.Equal(t, filepath.Join(cfg.ConfigRoot, "resources.json"), cfg.RegistryPath())

	require.NoError(t, cfg.Validate())
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
config_root: ` + dir + `
agent:
  provider: openai
  model: gpt-5
  base_port: 4100
git:
  retry:
    max_attempts: 5
    initial_delay: 2s
    max_delay: 10s
    multiplier: 1.5
    jitter_factor: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ConfigRoot)
	assert.Equal(t, "openai", cfg.Agent.Provider)
	assert.Equal(t, "gpt-5", cfg.Agent.Model)
	assert.Equal(t, 4100, cfg.Agent.BasePort)

	retry, err := cfg.Git.Retry.Parse()
	require.NoError(t, err)
	assert.Equal(t, 5, retry.MaxAttempts)
	assert.Equal(t, "2s", retry.InitialDelay.String())
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadUnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(path, []byte("workspase_root: /tmp/x\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ConfigRoot: "/tmp/bctx",
		Agent: AgentConfig{
			Provider:        "anthropic",
			Model:           "claude-sonnet-4-5",
			BasePort:        3420,
			MaxPortAttempts: 30,
		},
	}
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Agent.BasePort = 0
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Agent.MaxPortAttempts = 0
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Agent.Model = ""
	require.Error(t, bad.Validate())
}

func TestRetryParseRejectsBadDurations(t *testing.T) {
	t.Parallel()

	settings := GitRetrySettings{MaxAttempts: 3, InitialDelay: "soon", MaxDelay: "30s"}
	_, err := settings.Parse()
	require.Error(t, err)
}

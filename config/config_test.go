package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesYAMLIntoConfig(t *testing.T) {
	path := writeConfig(t, `
core:
  runtime: local
  max_iterations: 50
  max_budget_per_task: 5.0
llm:
  model: gpt-5
  temperature: 0.2
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Core.Runtime)
	assert.Equal(t, 50, cfg.Core.MaxIterations)
	assert.Equal(t, "gpt-5", cfg.LLM.Model)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 0.0001)
}

func TestLoadRejectsOutOfRangeTemperature(t *testing.T) {
	path := writeConfig(t, `
llm:
  temperature: 5.0
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadEmptyPathYieldsDefaultsOverlaidByEnv(t *testing.T) {
	t.Setenv("LLM_MODEL", "claude-opus")
	t.Setenv("SECURITY_CONFIRMATION_MODE", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "claude-opus", cfg.LLM.Model)
	assert.True(t, cfg.Security.ConfirmationMode)
}

func TestEnvOverlayTakesPrecedenceOverFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: gpt-5
`)
	t.Setenv("LLM_MODEL", "claude-opus")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus", cfg.LLM.Model)
}

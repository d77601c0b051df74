package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketing_post_refiner/generator"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, 8.0, cfg.Workflow.PassThreshold)
	assert.Equal(t, 2, cfg.Workflow.MaxRewrites)
	assert.Equal(t, 500, cfg.CostModel().TokensPerStep)
	assert.Equal(t, 256, cfg.Server.MaxSessions)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: deepseek
  model: deepseek-chat
  base_url: https://api.deepseek.com/v1
  api_key_env: TEST_REFINER_KEY
workflow:
  pass_threshold: 7.5
  max_rewrites: 3
style_guides:
  dir: voices
  watch: true
`)
	t.Setenv("TEST_REFINER_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, generator.Config{PassThreshold: 7.5, MaxRewrites: 3}, cfg.Workflow)
	assert.Equal(t, "voices", cfg.StyleGuides.Dir)
	assert.True(t, cfg.StyleGuides.Watch)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "data/history.db", cfg.Store.Path)

	settings := cfg.LLMSettings()
	assert.Equal(t, "https://api.deepseek.com/v1", settings.BaseURL)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, `{"llm": {"provider": "openai", "api_key": "inline"}, "server": {"addr": ":9090"}}`)
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.LLM.APIKey)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"provider":  "llm:\n  provider: llama\n",
		"threshold": "workflow:\n  pass_threshold: 11\n",
		"budget":    "workflow:\n  max_rewrites: -1\n",
		"cost":      "trace:\n  cost_per_1k: -0.5\n",
		"sessions":  "server:\n  max_sessions: -1\n",
		"syntax":    "llm: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, "workflow:\n  pass_threshold: 11\n"))
	assert.ErrorIs(t, err, generator.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

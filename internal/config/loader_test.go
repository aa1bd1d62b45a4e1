package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadFrom_DefaultsAndOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
llm:
  default_provider: openai
  providers:
    lmstudio:
      timeout: 120s
      base_url: ${TEST_LMSTUDIO_URL:http://localhost:1234/v1}
`)
	writeConfig(t, dir, "config.test.yaml", `
pipeline:
  prompt_max_length: 500
`)
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 120*time.Second, cfg.LLM.Providers["lmstudio"].Timeout)
	assert.Equal(t, "http://localhost:1234/v1", cfg.LLM.Providers["lmstudio"].BaseURL)
	assert.Equal(t, 3, cfg.Pipeline.PromptMinLength)
	assert.Equal(t, 500, cfg.Pipeline.PromptMaxLength)
	assert.Equal(t, int64(10<<20), cfg.Pipeline.MaxImageBytes)
	assert.Equal(t, 3, cfg.Messaging.RedisStream.RetryLimit)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
llm:
  default_provider: openai
`)
	t.Setenv("APP_ENV", "test")
	t.Setenv("LLM_DEFAULT_PROVIDER", "anthropic")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
}

func TestLoadFrom_MissingBaseFile(t *testing.T) {
	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml")
}

func TestLoadFrom_InvalidLengths(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `
pipeline:
  prompt_min_length: 10
  prompt_max_length: 5
`)
	t.Setenv("APP_ENV", "test")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt_max_length")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("PB_SET", "value")

	assert.Equal(t, "a=value", expandEnv("a=${PB_SET}"))
	assert.Equal(t, "b=fallback", expandEnv("b=${PB_UNSET_VAR:fallback}"))
	assert.Equal(t, "c=", expandEnv("c=${PB_UNSET_VAR:}"))
	assert.Equal(t, "d=${PB_UNSET_VAR}", expandEnv("d=${PB_UNSET_VAR}"))
}

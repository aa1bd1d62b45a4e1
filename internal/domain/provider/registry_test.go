package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "prompt-blueprint-api/pkg/errors"
)

func envOf(vals map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vals[key]
		return v, ok
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(WithLookup(envOf(nil)))

	c, err := r.Lookup("  OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.ID)
	assert.True(t, c.Vision)

	_, err = r.Lookup("mistral")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeUnsupportedProvider))
	assert.Contains(t, err.Error(), "Unsupported provider 'mistral'. Supported providers: anthropic, google, lmstudio, openai.")
}

func TestRegistry_Supported_Sorted(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"anthropic", "google", "lmstudio", "openai"}, r.Supported())
}

func TestRegistry_Resolve_CredentialPrecedence(t *testing.T) {
	env := envOf(map[string]string{"OPENAI_API_KEY": "env-key"})
	r := NewRegistry(WithLookup(env))

	tests := []struct {
		name      string
		overrides map[string]string
		want      string
		source    CredentialSource
	}{
		{"environment only", nil, "env-key", CredentialEnvironment},
		{"provider id key", map[string]string{"OpenAI": "ov-1"}, "ov-1", CredentialOverride},
		{"provider api key form", map[string]string{"openai-api-key": "ov-2"}, "ov-2", CredentialOverride},
		{"canonical env name", map[string]string{"OPENAI_API_KEY": "ov-3"}, "ov-3", CredentialOverride},
		{"blank override ignored", map[string]string{"openai": "  "}, "env-key", CredentialEnvironment},
		{"other provider ignored", map[string]string{"anthropic": "x"}, "env-key", CredentialEnvironment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff, err := r.Resolve("openai", tt.overrides, ResolveOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, eff.Credential)
			assert.Equal(t, tt.source, eff.CredentialSource)
		})
	}
}

func TestRegistry_Resolve_MissingCredential(t *testing.T) {
	r := NewRegistry(WithLookup(envOf(nil)))

	_, err := r.Resolve("anthropic", nil, ResolveOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeMissingCredential))
	assert.Contains(t, err.Error(), "Set ANTHROPIC_API_KEY in the environment.")
}

func TestRegistry_Resolve_LocalProviderSkipsCredential(t *testing.T) {
	r := NewRegistry(WithLookup(envOf(map[string]string{
		"LMSTUDIO_BASE_URL": "http://studio:9000/v1",
		"LMSTUDIO_MODEL":    "qwen2.5-7b",
	})))

	eff, err := r.Resolve("lmstudio", nil, ResolveOptions{})
	require.NoError(t, err)
	assert.Empty(t, eff.Credential)
	assert.Equal(t, CredentialNone, eff.CredentialSource)
	assert.Equal(t, "http://studio:9000/v1", eff.BaseURL)
	assert.Equal(t, "qwen2.5-7b", eff.Model)
}

func TestRegistry_Resolve_VisionBeforeCredential(t *testing.T) {
	// anthropic 缺少凭证，但能力校验应先失败
	r := NewRegistry(WithLookup(envOf(nil)))

	_, err := r.Resolve("anthropic", nil, ResolveOptions{RequireVision: true})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeCapabilityUnsupported))
	assert.Contains(t, err.Error(), "Provider 'anthropic' does not support vision-enabled workflows.")

	_, err = r.Resolve("lmstudio", nil, ResolveOptions{RequireVision: true})
	assert.True(t, apperrors.Is(err, apperrors.CodeCapabilityUnsupported))
}

func TestRegistry_Resolve_Tuning(t *testing.T) {
	r := NewRegistry(
		WithLookup(envOf(map[string]string{"GOOGLE_API_KEY": "g"})),
		WithDefaults(Tuning{MaxTokens: 1000, Temperature: 0.5, Timeout: 30 * time.Second}),
		WithTuning("Google", Tuning{Model: "gemini-2.5-pro", Timeout: 90 * time.Second}),
	)

	eff, err := r.Resolve("google", nil, ResolveOptions{RequireVision: true})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", eff.Model)
	assert.Equal(t, 1000, eff.MaxTokens)
	assert.InDelta(t, 0.5, eff.Temperature, 1e-9)
	assert.Equal(t, 90*time.Second, eff.Timeout)
}

func TestRegistry_Configured(t *testing.T) {
	r := NewRegistry(WithLookup(envOf(nil)))

	assert.True(t, r.Configured("lmstudio", nil))
	assert.False(t, r.Configured("openai", nil))
	assert.True(t, r.Configured("openai", map[string]string{"openai_api_key": "k"}))
	assert.False(t, r.Configured("unknown", nil))
}

package studio

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prompt-blueprint-api/internal/application/conversion"
	"prompt-blueprint-api/internal/application/generation"
	"prompt-blueprint-api/internal/domain/blueprint"
	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/workflow/port/porttest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSettings struct {
	provider string
	creds    map[string]string
	nsfw     bool
}

func (f *fakeSettings) DefaultProvider(context.Context) string { return f.provider }
func (f *fakeSettings) Credentials(context.Context) map[string]string { return f.creds }
func (f *fakeSettings) NSFWEnabled(context.Context) bool { return f.nsfw }

type memorySink struct {
	mu      sync.Mutex
	records []*entity.PromptHistory
	err     error
}

func (s *memorySink) Record(_ context.Context, h *entity.PromptHistory) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, h)
	return nil
}

func (s *memorySink) last() *entity.PromptHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	return s.records[len(s.records)-1]
}

func noEnv(string) (string, bool) { return "", false }

func newService(inv *porttest.Invoker, opts ...Option) *Service {
	reg := provider.NewRegistry(provider.WithLookup(noEnv))
	keys := conversion.OverrideKeys()
	return NewService(reg, generation.NewGenerator(inv, keys...), conversion.NewConverter(inv), opts...)
}

func blueprintJSON(t *testing.T) string {
	t.Helper()
	b := blueprint.New(conversion.OverrideKeys()...)
	b.Intent = "portrait"
	b.Prompt.Primary = "a lighthouse at dusk"
	b.Style.Keywords = []string{"moody"}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	return string(raw)
}

func payloadJSON(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"target_model":         "sdxl",
		"model_identifier":     "stabilityai/stable-diffusion-xl-base-1.0",
		"control_assets":       map[string]any{},
		"prompt":               "a lighthouse at dusk, moody",
		"negative_prompt":      "",
		"payload":              map[string]any{"prompt": "a lighthouse at dusk, moody", "steps": 30, "cfg_scale": 7},
		"recommended_settings": map[string]any{"steps": 30},
		"notes":                []string{},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestGenerateFromText_Success(t *testing.T) {
	inv := porttest.Texts("draft", blueprintJSON(t))
	sink := &memorySink{}
	svc := newService(inv,
		WithSettings(&fakeSettings{provider: "openai", creds: map[string]string{"OPENAI_API_KEY": "saved"}}),
		WithHistorySink(sink))

	res := svc.GenerateFromText(context.Background(), TextInput{Prompt: "a lighthouse"})
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Degraded)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, "a lighthouse at dusk", res.Data.Prompt.Primary)
	assert.Equal(t, 40, res.TokenUsage.TotalTokens)
	assert.GreaterOrEqual(t, res.ProcessingTime, 0.0)

	rec := sink.last()
	require.NotNil(t, rec)
	assert.Equal(t, res.HistoryID, rec.ID)
	assert.Equal(t, entity.GenerationKindText, rec.Kind)
	assert.True(t, rec.Success)
	assert.Equal(t, []string{"moody"}, []string(rec.Keywords))
	assert.Equal(t, "saved", inv.Calls()[0].Provider.Credential)
}

func TestGenerateFromText_CallerCredentialWins(t *testing.T) {
	inv := porttest.Texts("draft", blueprintJSON(t))
	svc := newService(inv, WithSettings(&fakeSettings{creds: map[string]string{"OPENAI_API_KEY": "saved"}}))

	res := svc.GenerateFromText(context.Background(), TextInput{
		Prompt:      "a lighthouse",
		Provider:    "openai",
		Credentials: map[string]string{"openai": "caller"},
	})
	require.True(t, res.Success, res.Error)
	for _, c := range inv.Calls() {
		assert.Equal(t, "caller", c.Provider.Credential)
		assert.Equal(t, provider.CredentialOverride, c.Provider.CredentialSource)
	}
}

func TestGenerateFromText_Validation(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"empty", "   ", "Prompt must not be empty."},
		{"too short", "ab", "at least 3 characters"},
		{"too long", strings.Repeat("字", 1001), "at most 1000 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := porttest.Texts("unused")
			svc := newService(inv, WithDefaultProvider("lmstudio"))

			res := svc.GenerateFromText(context.Background(), TextInput{Prompt: tt.prompt})
			assert.False(t, res.Success)
			assert.Equal(t, "InvalidParam", res.ErrorCode)
			assert.Contains(t, res.Error, tt.want)
			assert.Zero(t, inv.CallCount())
		})
	}
}

func TestGenerateFromText_MultibyteWithinLimit(t *testing.T) {
	svc := newService(porttest.Texts("unused"))
	assert.NoError(t, svc.ValidatePrompt(strings.Repeat("字", 1000)))
}

func TestGenerateFromText_ProviderErrors(t *testing.T) {
	inv := porttest.Texts("unused")
	svc := newService(inv)

	res := svc.GenerateFromText(context.Background(), TextInput{Prompt: "a lighthouse", Provider: "mistral"})
	assert.Equal(t, "UnsupportedProvider", res.ErrorCode)

	res = svc.GenerateFromText(context.Background(), TextInput{Prompt: "a lighthouse", Provider: "anthropic"})
	assert.Equal(t, "MissingCredential", res.ErrorCode)
	assert.Zero(t, inv.CallCount())
}

func TestGenerateFromImage_VisionCheckedFirst(t *testing.T) {
	inv := porttest.Texts("unused")
	sink := &memorySink{}
	svc := newService(inv, WithHistorySink(sink))

	res := svc.GenerateFromImage(context.Background(), ImageInput{
		Image:    []byte("\x89PNG\r\n\x1a\n0000"),
		Filename: "ref.png",
		Provider: "anthropic",
	})
	assert.False(t, res.Success)
	assert.Equal(t, "CapabilityUnsupported", res.ErrorCode)
	assert.Zero(t, inv.CallCount())

	rec := sink.last()
	require.NotNil(t, rec)
	assert.False(t, rec.Success)
	assert.Equal(t, "CapabilityUnsupported", rec.ErrorCode)
}

func TestGenerateFromImage_SizeLimit(t *testing.T) {
	svc := newService(porttest.Texts("unused"), WithLimits(Limits{PromptMinLength: 3, PromptMaxLength: 10, MaxImageBytes: 4}))

	res := svc.GenerateFromImage(context.Background(), ImageInput{Image: []byte("12345"), Provider: "lmstudio"})
	assert.Equal(t, "InvalidParam", res.ErrorCode)

	res = svc.GenerateFromImage(context.Background(), ImageInput{Provider: "lmstudio"})
	assert.Equal(t, "InvalidParam", res.ErrorCode)
}

func TestGenerateFromImage_Success(t *testing.T) {
	inv := porttest.Texts("a lighthouse on a cliff", blueprintJSON(t))
	svc := newService(inv)

	res := svc.GenerateFromImage(context.Background(), ImageInput{
		Image:       []byte("\x89PNG\r\n\x1a\n0000"),
		Filename:    "ref.png",
		Provider:    "google",
		Credentials: map[string]string{"GOOGLE_API_KEY": "k"},
	})
	require.True(t, res.Success, res.Error)
	require.NotNil(t, inv.Calls()[0].Request.Attachment)
	assert.Equal(t, "image/png", inv.Calls()[0].Request.Attachment.MIMEType)
}

func TestGenerate_NSFWDefaultFromSettings(t *testing.T) {
	raw := blueprintJSON(t)
	raw = strings.Replace(raw, `"allow_nsfw":false`, `"allow_nsfw":true`, 1)

	inv := porttest.Texts("draft", raw)
	svc := newService(inv, WithSettings(&fakeSettings{provider: "lmstudio", nsfw: false}))
	res := svc.GenerateFromText(context.Background(), TextInput{Prompt: "a lighthouse"})
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Data.Safety.AllowNSFW)

	allowed := true
	inv = porttest.Texts("draft", raw)
	svc = newService(inv, WithSettings(&fakeSettings{provider: "lmstudio", nsfw: false}))
	res = svc.GenerateFromText(context.Background(), TextInput{Prompt: "a lighthouse", NSFW: &allowed})
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Data.Safety.AllowNSFW)
}

func TestGenerate_InvocationFailure(t *testing.T) {
	inv := porttest.NewInvoker(porttest.Step{Err: errors.New("boom")})
	svc := newService(inv, WithDefaultProvider("lmstudio"))

	res := svc.GenerateFromText(context.Background(), TextInput{Prompt: "a lighthouse"})
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.ErrorCode)
}

func TestGenerate_HistorySinkFailureIgnored(t *testing.T) {
	inv := porttest.Texts("draft", blueprintJSON(t))
	svc := newService(inv, WithDefaultProvider("lmstudio"), WithHistorySink(&memorySink{err: errors.New("down")}))

	res := svc.GenerateFromText(context.Background(), TextInput{Prompt: "a lighthouse"})
	assert.True(t, res.Success)
	assert.Empty(t, res.HistoryID)
}

func TestConvertPrompt_UnknownTargetBeforeProvider(t *testing.T) {
	inv := porttest.Texts("unused")
	svc := newService(inv)

	res := svc.ConvertPrompt(context.Background(), ConvertInput{
		Blueprint: blueprint.New(),
		Target:    "midjourney",
		Provider:  "no-such-provider",
	})
	assert.False(t, res.Success)
	assert.Equal(t, "UnsupportedTarget", res.ErrorCode)
	assert.Zero(t, inv.CallCount())
}

func TestConvertPrompt_InvalidBlueprint(t *testing.T) {
	inv := porttest.Texts("unused")
	svc := newService(inv, WithDefaultProvider("lmstudio"))

	res := svc.ConvertPrompt(context.Background(), ConvertInput{Target: "sdxl"})
	assert.Equal(t, "InvalidParam", res.ErrorCode)
	assert.Zero(t, inv.CallCount())
}

func TestConvertPrompt_Success(t *testing.T) {
	inv := porttest.Texts(payloadJSON(t), payloadJSON(t))
	sink := &memorySink{}
	svc := newService(inv, WithDefaultProvider("lmstudio"), WithHistorySink(sink))

	var bp blueprint.Blueprint
	require.NoError(t, json.Unmarshal([]byte(blueprintJSON(t)), &bp))

	res := svc.ConvertPrompt(context.Background(), ConvertInput{Blueprint: &bp, Target: "SDXL"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "sdxl", res.Target)
	assert.Equal(t, "sdxl", res.Data.TargetModel)
	assert.Equal(t, 2, inv.CallCount())

	rec := sink.last()
	require.NotNil(t, rec)
	assert.Equal(t, entity.GenerationKindConvert, rec.Kind)
	assert.Equal(t, "sdxl", rec.Target)
	assert.Equal(t, "a lighthouse at dusk", rec.InputText)
}

package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-blueprint-api/internal/application/settings"
	"prompt-blueprint-api/internal/application/studio"
	"prompt-blueprint-api/internal/domain/blueprint"
	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/domain/repository"
	"prompt-blueprint-api/internal/infrastructure/messaging"
	apperrors "prompt-blueprint-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePrompts struct {
	text      []studio.TextInput
	image     []studio.ImageInput
	convert   []studio.ConvertInput
	result    *studio.GenerationResult
	converted *studio.ConversionResult
	validErr  error
}

func (f *fakePrompts) GenerateFromText(_ context.Context, in studio.TextInput) *studio.GenerationResult {
	f.text = append(f.text, in)
	return f.result
}

func (f *fakePrompts) GenerateFromImage(_ context.Context, in studio.ImageInput) *studio.GenerationResult {
	f.image = append(f.image, in)
	return f.result
}

func (f *fakePrompts) ConvertPrompt(_ context.Context, in studio.ConvertInput) *studio.ConversionResult {
	f.convert = append(f.convert, in)
	return f.converted
}

func (f *fakePrompts) ValidatePrompt(string) error { return f.validErr }

func perform(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var doc map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	}
	return rec, doc
}

func promptRouter(svc PromptService) *gin.Engine {
	h := NewPromptHandler(svc)
	r := gin.New()
	r.POST("/generate", h.Generate)
	r.POST("/generate/image", h.GenerateFromImage)
	r.POST("/convert", h.Convert)
	r.POST("/validate", h.Validate)
	return r
}

func TestPromptHandler_Generate(t *testing.T) {
	svc := &fakePrompts{result: &studio.GenerationResult{Success: true, Provider: "openai", Data: blueprint.New()}}
	r := promptRouter(svc)

	rec, doc := perform(t, r, http.MethodPost, "/generate", map[string]any{
		"prompt":   "a lighthouse at dusk",
		"provider": "openai",
		"api_keys": map[string]string{"openai": "sk-test"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, doc["success"])
	require.Len(t, svc.text, 1)
	assert.Equal(t, "a lighthouse at dusk", svc.text[0].Prompt)
	assert.Equal(t, "sk-test", svc.text[0].Credentials["openai"])
}

func TestPromptHandler_EnvelopeStatus(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		status int
	}{
		{"validation", apperrors.CodeInvalidParam.Name(), http.StatusBadRequest},
		{"missing credential", apperrors.CodeMissingCredential.Name(), http.StatusOK},
		{"backend", apperrors.CodeTimeout.Name(), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakePrompts{result: &studio.GenerationResult{Error: "failed", ErrorCode: tt.code}}
			rec, doc := perform(t, promptRouter(svc), http.MethodPost, "/generate", map[string]any{"prompt": "x"})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, doc["success"])
			assert.Equal(t, tt.code, doc["error_code"])
		})
	}
}

func TestPromptHandler_MalformedBody(t *testing.T) {
	svc := &fakePrompts{}
	rec, doc := perform(t, promptRouter(svc), http.MethodPost, "/generate", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidParam", doc["error_code"])
	assert.Empty(t, svc.text)
}

func TestPromptHandler_GenerateFromImage(t *testing.T) {
	svc := &fakePrompts{result: &studio.GenerationResult{Success: true}}
	r := promptRouter(svc)
	img := []byte{0x89, 'P', 'N', 'G'}

	rec, _ := perform(t, r, http.MethodPost, "/generate/image", map[string]any{
		"image_base64": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
		"filename":     "photo.png",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.image, 1)
	assert.Equal(t, img, svc.image[0].Image)
	assert.Equal(t, "photo.png", svc.image[0].Filename)

	rec, doc := perform(t, r, http.MethodPost, "/generate/image", map[string]any{"image_base64": "%%%"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Image must be valid base64.", doc["error"])
	assert.Len(t, svc.image, 1)
}

func TestPromptHandler_Convert(t *testing.T) {
	svc := &fakePrompts{converted: &studio.ConversionResult{Success: true, Target: "sdxl"}}
	r := promptRouter(svc)
	bp := blueprint.New("flux", "wan", "sdxl")
	bp.Prompt.Primary = "a lighthouse at dusk"

	rec, doc := perform(t, r, http.MethodPost, "/convert", map[string]any{
		"blueprint": bp,
		"target":    "sdxl",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sdxl", doc["target"])
	require.Len(t, svc.convert, 1)
	require.NotNil(t, svc.convert[0].Blueprint)
	assert.Equal(t, "a lighthouse at dusk", svc.convert[0].Blueprint.Prompt.Primary)
}

func TestPromptHandler_ConvertRejections(t *testing.T) {
	svc := &fakePrompts{}
	r := promptRouter(svc)

	// 蓝图无效且目标未知时，先报告目标
	rec, doc := perform(t, r, http.MethodPost, "/convert", map[string]any{
		"blueprint": map[string]any{"intent": "x"},
		"target":    "midjourney",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "UnsupportedTarget", doc["error_code"])

	rec, doc = perform(t, r, http.MethodPost, "/convert", map[string]any{
		"blueprint": map[string]any{"intent": "x"},
		"target":    "sdxl",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidParam", doc["error_code"])
	assert.Empty(t, svc.convert)
}

func TestPromptHandler_Validate(t *testing.T) {
	svc := &fakePrompts{validErr: apperrors.New(apperrors.CodeInvalidParam, "Prompt must be at least 3 characters long.")}
	rec, doc := perform(t, promptRouter(svc), http.MethodPost, "/validate", map[string]any{"prompt": "猫"})
	assert.Equal(t, http.StatusOK, rec.Code)

	data := doc["data"].(map[string]any)
	assert.Equal(t, false, data["valid"])
	assert.EqualValues(t, 1, data["length"])
	assert.Equal(t, "Prompt must be at least 3 characters long.", data["error"])
}

type fakeSettingsSource struct {
	def   string
	creds map[string]string
}

func (f fakeSettingsSource) DefaultProvider(context.Context) string { return f.def }

func (f fakeSettingsSource) Credentials(context.Context) map[string]string { return f.creds }

func (f fakeSettingsSource) NSFWEnabled(context.Context) bool { return false }

func TestCatalogHandler(t *testing.T) {
	registry := provider.NewRegistry(provider.WithLookup(func(string) (string, bool) { return "", false }))
	h := NewCatalogHandler(registry, fakeSettingsSource{def: "anthropic", creds: map[string]string{"anthropic": "sk-ant"}}, "openai")
	r := gin.New()
	r.GET("/providers", h.ListProviders)
	r.GET("/targets", h.ListTargets)

	rec, doc := perform(t, r, http.MethodGet, "/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := doc["data"].(map[string]any)
	assert.Equal(t, "anthropic", data["default"])

	configured := map[string]bool{}
	for _, p := range data["providers"].([]any) {
		entry := p.(map[string]any)
		configured[entry["id"].(string)] = entry["configured"].(bool)
	}
	assert.Equal(t, map[string]bool{"anthropic": true, "google": false, "lmstudio": true, "openai": false}, configured)

	rec, doc = perform(t, r, http.MethodGet, "/targets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, doc["data"].(map[string]any)["targets"], 3)
}

type fakeHistory struct {
	items map[string]*entity.PromptHistory
	err   error
}

func (f *fakeHistory) List(_ context.Context, _ *repository.HistoryFilter, page, pageSize int) (*repository.PagedResult[*entity.PromptHistory], error) {
	if f.err != nil {
		return nil, f.err
	}
	items := make([]*entity.PromptHistory, 0, len(f.items))
	for _, h := range f.items {
		items = append(items, h)
	}
	return repository.NewPagedResult(items, int64(len(items)), repository.NewPagination(page, pageSize)), nil
}

func (f *fakeHistory) Get(_ context.Context, id string) (*entity.PromptHistory, error) {
	if h, ok := f.items[id]; ok {
		return h, nil
	}
	return nil, apperrors.Newf(apperrors.CodeNotFound, "History entry '%s' not found.", id)
}

func (f *fakeHistory) Recent(context.Context, int) ([]string, error) { return nil, nil }

func (f *fakeHistory) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return apperrors.Newf(apperrors.CodeNotFound, "History entry '%s' not found.", id)
	}
	delete(f.items, id)
	return nil
}

func (f *fakeHistory) Clear(context.Context) (int64, error) {
	n := int64(len(f.items))
	f.items = map[string]*entity.PromptHistory{}
	return n, nil
}

func (f *fakeHistory) Stats(context.Context) (*repository.HistoryStats, error) {
	return &repository.HistoryStats{Total: int64(len(f.items))}, nil
}

func historyRouter(svc HistoryService) *gin.Engine {
	h := NewHistoryHandler(svc)
	r := gin.New()
	r.GET("/history", h.List)
	r.DELETE("/history", h.Clear)
	r.GET("/history/recent", h.Recent)
	r.GET("/history/stats", h.Stats)
	r.GET("/history/:id", h.Get)
	r.DELETE("/history/:id", h.Delete)
	return r
}

func TestHistoryHandler(t *testing.T) {
	entry := entity.NewPromptHistory(entity.GenerationKindText, "a red fox", "openai")
	svc := &fakeHistory{items: map[string]*entity.PromptHistory{entry.ID: entry}}
	r := historyRouter(svc)

	rec, doc := perform(t, r, http.MethodGet, "/history?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, doc["data"].(map[string]any)["items"], 1)
	assert.EqualValues(t, 1, doc["meta"].(map[string]any)["total"])

	rec, doc = perform(t, r, http.MethodGet, "/history/"+entry.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a red fox", doc["data"].(map[string]any)["input_text"])

	rec, doc = perform(t, r, http.MethodGet, "/history/recent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, doc["data"].(map[string]any)["prompts"])

	rec, _ = perform(t, r, http.MethodDelete, "/history/"+entry.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, doc = perform(t, r, http.MethodGet, "/history/"+entry.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", doc["error"].(map[string]any)["error_code"])
}

func TestHistoryHandler_InternalError(t *testing.T) {
	svc := &fakeHistory{err: errors.New("connection reset")}
	rec, doc := perform(t, historyRouter(svc), http.MethodGet, "/history", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to list history", doc["message"])
}

type fakeSettings struct {
	view  *settings.View
	keys  map[string]bool
	patch settings.Patch
}

func (f *fakeSettings) View(context.Context) (*settings.View, error) { return f.view, nil }

func (f *fakeSettings) Update(_ context.Context, patch settings.Patch) (*settings.View, error) {
	if patch.DefaultProvider != nil && *patch.DefaultProvider == "unknown" {
		return nil, apperrors.New(apperrors.CodeUnsupportedProvider, "Unsupported provider 'unknown'.")
	}
	f.patch = patch
	return f.view, nil
}

func (f *fakeSettings) DeleteAPIKey(_ context.Context, id string) (bool, error) {
	found := f.keys[id]
	delete(f.keys, id)
	return found, nil
}

func (f *fakeSettings) Reset(context.Context) (*settings.View, error) { return f.view, nil }

func TestSettingsHandler(t *testing.T) {
	svc := &fakeSettings{
		view: &settings.View{DefaultProvider: "openai", APIKeys: map[string]string{"openai": "sk-t****1234"}},
		keys: map[string]bool{"openai": true},
	}
	h := NewSettingsHandler(svc)
	r := gin.New()
	r.GET("/settings", h.Get)
	r.PUT("/settings", h.Update)
	r.DELETE("/settings/api-keys/:provider", h.DeleteAPIKey)
	r.POST("/settings/reset", h.Reset)

	rec, doc := perform(t, r, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sk-t****1234", doc["data"].(map[string]any)["api_keys"].(map[string]any)["openai"])

	rec, _ = perform(t, r, http.MethodPut, "/settings", map[string]any{"nsfw_enabled": true, "api_keys": map[string]string{"google": ""}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.patch.NSFWEnabled)
	assert.True(t, *svc.patch.NSFWEnabled)
	assert.Contains(t, svc.patch.APIKeys, "google")

	rec, doc = perform(t, r, http.MethodPut, "/settings", map[string]any{"default_provider": "unknown"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UnsupportedProvider", doc["error"].(map[string]any)["error_code"])

	rec, _ = perform(t, r, http.MethodDelete, "/settings/api-keys/openai", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = perform(t, r, http.MethodDelete, "/settings/api-keys/openai", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = perform(t, r, http.MethodPost, "/settings/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeJobs struct {
	submitted []*messaging.PromptJobMessage
	jobs      map[string]*entity.PromptJob
}

func (f *fakeJobs) Submit(_ context.Context, req *messaging.PromptJobMessage) (*entity.PromptJob, error) {
	kind := entity.GenerationKind(req.Kind)
	if !kind.Valid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidParam, "Unknown job kind '%s'.", req.Kind)
	}
	f.submitted = append(f.submitted, req)
	job := entity.NewPromptJob("job-1", kind)
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*entity.PromptJob, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, apperrors.Newf(apperrors.CodeNotFound, "Job '%s' not found.", id)
}

func TestJobHandler(t *testing.T) {
	svc := &fakeJobs{jobs: map[string]*entity.PromptJob{}}
	h := NewJobHandler(svc)
	r := gin.New()
	r.POST("/jobs", h.Submit)
	r.GET("/jobs/:id", h.Get)

	rec, doc := perform(t, r, http.MethodPost, "/jobs", map[string]any{"kind": "text", "prompt": "a red fox"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "pending", doc["data"].(map[string]any)["status"])
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, "a red fox", svc.submitted[0].Prompt)

	rec, _ = perform(t, r, http.MethodPost, "/jobs", map[string]any{"kind": "video"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, doc = perform(t, r, http.MethodGet, "/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-1", doc["data"].(map[string]any)["id"])

	rec, _ = perform(t, r, http.MethodGet, "/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Ready(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	h := NewHealthHandler("v0.1.0", map[string]HealthChecker{"postgres": ok, "redis": ok})
	r := gin.New()
	r.GET("/ready", h.Ready)
	r.GET("/health", h.Health)

	rec, doc := perform(t, r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", doc["status"])

	rec, doc = perform(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v0.1.0", doc["version"])

	h = NewHealthHandler("v0.1.0", map[string]HealthChecker{"postgres": ok, "redis": down})
	r = gin.New()
	r.GET("/ready", h.Ready)
	rec, doc = perform(t, r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", doc["status"])
	assert.Equal(t, "error", doc["checks"].(map[string]any)["redis"].(map[string]any)["status"])
}

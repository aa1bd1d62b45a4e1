package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"prompt-blueprint-api/internal/infrastructure/persistence/redis"
	"prompt-blueprint-api/internal/interfaces/http/dto"
	"prompt-blueprint-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimiter(t *testing.T) *redis.RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewRateLimiter(redis.NewClientFromRedis(rdb))
}

func hit(r *gin.Engine, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_PerClient(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute}, newLimiter(t)))
	r.GET("/v1/jobs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	// 路由模板相同的请求共享配额
	assert.Equal(t, http.StatusOK, hit(r, http.MethodGet, "/v1/jobs/a", "10.0.0.1:1234").Code)
	rec := hit(r, http.MethodGet, "/v1/jobs/b", "10.0.0.1:1234")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = hit(r, http.MethodGet, "/v1/jobs/c", "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "TooManyRequests")

	assert.Equal(t, http.StatusOK, hit(r, http.MethodGet, "/v1/jobs/a", "10.0.0.2:1234").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (brokenLimiter) Remaining(context.Context, string, int, time.Duration) (int, error) {
	return 0, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{Enabled: true, Limit: 1}, brokenLimiter{}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, http.MethodGet, "/ping", "10.0.0.1:1").Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{Enabled: false}, brokenLimiter{}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	rec := hit(r, http.MethodGet, "/ping", "10.0.0.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	rec := hit(r, http.MethodGet, "/ping", "10.0.0.1:1")
	generated := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	for _, bad := range []string{"has space", strings.Repeat("a", maxRequestIDLen+1), "x\"<y>"} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, bad)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		got := rec.Header().Get(RequestIDHeader)
		assert.NotEqual(t, bad, got)
		assert.True(t, validRequestID(got))
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := hit(r, http.MethodGet, "/boom", "10.0.0.1:1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.Contains(t, rec.Body.String(), "Internal")
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"prompt":"far too long"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS(CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}))
	r.POST("/v1/prompts/generate", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/prompts/generate", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "43200", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_WildcardExposesQuotaHeaders(t *testing.T) {
	r := gin.New()
	r.Use(CORS(CORSConfig{}))
	r.GET("/v1/targets", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/v1/targets", nil)
	req.Header.Set("Origin", "http://example.test")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	exposed := strings.ToLower(rec.Header().Get("Access-Control-Expose-Headers"))
	for _, h := range []string{"x-request-id", "x-trace-id", "x-ratelimit-remaining", "retry-after"} {
		assert.Contains(t, exposed, h)
	}
}

func TestMetrics_RouteTemplateAndErrorCode(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.POST("/v1/prompts/convert", func(c *gin.Context) {
		dto.MarkErrorCode(c, "UnsupportedTarget")
		c.JSON(http.StatusOK, gin.H{"error_code": "UnsupportedTarget"})
	})
	r.GET("/v1/jobs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	convertErrors := metrics.HTTPErrorsTotal.WithLabelValues(http.MethodPost, "/v1/prompts/convert", "UnsupportedTarget")
	jobHits := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/jobs/:id", "200")
	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, UnmatchedRoute, "404")
	beforeErrors := testutil.ToFloat64(convertErrors)
	beforeJobs := testutil.ToFloat64(jobHits)
	beforeUnmatched := testutil.ToFloat64(unmatched)

	hit(r, http.MethodPost, "/v1/prompts/convert", "10.0.0.1:1")
	hit(r, http.MethodGet, "/v1/jobs/a", "10.0.0.1:1")
	hit(r, http.MethodGet, "/v1/jobs/b", "10.0.0.1:1")
	hit(r, http.MethodGet, "/no/such/route", "10.0.0.1:1")

	assert.Equal(t, beforeErrors+1, testutil.ToFloat64(convertErrors))
	assert.Equal(t, beforeJobs+2, testutil.ToFloat64(jobHits))
	assert.Equal(t, beforeUnmatched+1, testutil.ToFloat64(unmatched))
}

func TestTraceContext_AnnotatesSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := gin.New()
	r.Use(RequestID())
	r.Use(otelgin.Middleware("prompt-blueprint-api", otelgin.WithTracerProvider(tp)))
	r.Use(TraceContext())
	r.POST("/v1/prompts/generate", func(c *gin.Context) {
		dto.MarkErrorCode(c, "Timeout")
		c.JSON(http.StatusOK, gin.H{"error_code": "Timeout"})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/prompts/generate", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Len(t, sr.Ended(), 1)
	span := sr.Ended()[0]
	assert.Equal(t, span.SpanContext().TraceID().String(), rec.Header().Get(TraceIDHeader))
	assert.Contains(t, span.Attributes(), attribute.String("request.id", "req-42"))
	assert.Contains(t, span.Attributes(), attribute.String("app.error_code", "Timeout"))
	assert.Equal(t, codes.Error, span.Status().Code)
}

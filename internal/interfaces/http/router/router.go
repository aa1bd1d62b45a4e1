// Package router 提供 HTTP 路由配置
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"prompt-blueprint-api/internal/config"
	"prompt-blueprint-api/internal/infrastructure/persistence/redis"
	"prompt-blueprint-api/internal/interfaces/http/handler"
	"prompt-blueprint-api/internal/interfaces/http/middleware"
)

// Handlers 路由所需的处理器集合
type Handlers struct {
	Health   *handler.HealthHandler
	Prompt   *handler.PromptHandler
	Catalog  *handler.CatalogHandler
	History  *handler.HistoryHandler
	Settings *handler.SettingsHandler
	Job      *handler.JobHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器；limiter 为空时不限流
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	// 设置 Gin 模式
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	// 基础中间件
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.BodyLimit(r.cfg.Server.HTTP.MaxBodyBytes))

	// CORS 中间件
	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
		MaxAge:         r.cfg.Security.CORS.MaxAge,
	}))

	// 追踪中间件
	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	// 指标中间件
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点
	if h.Health != nil {
		r.engine.GET("/health", h.Health.Health)
		r.engine.GET("/ready", h.Health.Ready)
		r.engine.GET("/live", h.Health.Live)
	}

	// Prometheus 指标端点
	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: r.cfg.Security.RateLimit.Enabled,
		Limit:   r.cfg.Security.RateLimit.RequestsPerMinute,
		Window:  time.Minute,
		KeyFunc: redis.BuildRateLimitKey,
	}, r.limiter)

	v1 := r.engine.Group("/v1")
	{
		if h.Prompt != nil {
			prompts := v1.Group("/prompts", rateLimit)
			{
				prompts.POST("/generate", h.Prompt.Generate)
				prompts.POST("/generate/image", h.Prompt.GenerateFromImage)
				prompts.POST("/convert", h.Prompt.Convert)
				prompts.POST("/validate", h.Prompt.Validate)
			}
		}

		if h.Catalog != nil {
			v1.GET("/providers", h.Catalog.ListProviders)
			v1.GET("/targets", h.Catalog.ListTargets)
		}

		if h.History != nil {
			history := v1.Group("/history")
			{
				history.GET("", h.History.List)
				history.DELETE("", h.History.Clear)
				history.GET("/recent", h.History.Recent)
				history.GET("/stats", h.History.Stats)
				history.GET("/:id", h.History.Get)
				history.DELETE("/:id", h.History.Delete)
			}
		}

		if h.Settings != nil {
			settings := v1.Group("/settings")
			{
				settings.GET("", h.Settings.Get)
				settings.PUT("", h.Settings.Update)
				settings.DELETE("/api-keys/:provider", h.Settings.DeleteAPIKey)
				settings.POST("/reset", h.Settings.Reset)
			}
		}

		if h.Job != nil {
			jobs := v1.Group("/jobs", rateLimit)
			{
				jobs.POST("", h.Job.Submit)
				jobs.GET("/:id", h.Job.Get)
			}
		}
	}
}

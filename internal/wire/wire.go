// Package wire 组装应用依赖
package wire

import (
	"context"

	"prompt-blueprint-api/internal/application/conversion"
	"prompt-blueprint-api/internal/application/generation"
	"prompt-blueprint-api/internal/application/history"
	"prompt-blueprint-api/internal/application/jobs"
	"prompt-blueprint-api/internal/application/settings"
	"prompt-blueprint-api/internal/application/studio"
	"prompt-blueprint-api/internal/config"
	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/infrastructure/llm"
	"prompt-blueprint-api/internal/infrastructure/messaging"
	"prompt-blueprint-api/internal/infrastructure/persistence/postgres"
	"prompt-blueprint-api/internal/infrastructure/persistence/redis"
	"prompt-blueprint-api/internal/interfaces/http/handler"
	"prompt-blueprint-api/internal/interfaces/http/router"
	"prompt-blueprint-api/pkg/logger"
)

// DataLayer 数据层依赖容器
type DataLayer struct {
	// PostgreSQL
	PgClient     *postgres.Client
	TxManager    *postgres.TxManager
	HistoryRepo  *postgres.HistoryRepository
	SettingsRepo *postgres.SettingsRepository

	// Redis
	RedisClient *redis.Client
	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
	JobStore    *redis.JobStore

	// Messaging
	Producer *messaging.Producer
}

// PostgresOnlyDataLayer 仅包含 PostgreSQL 的数据层（用于 bootstrap）
type PostgresOnlyDataLayer struct {
	PgClient     *postgres.Client
	TxManager    *postgres.TxManager
	SettingsRepo *postgres.SettingsRepository
}

// Services 应用服务集合
type Services struct {
	Registry *provider.Registry
	Settings *settings.Service
	History  *history.Service
	Studio   *studio.Service
	Jobs     *jobs.Service
}

// Worker 任务 worker 依赖
type Worker struct {
	RedisClient *redis.Client
	Processor   *jobs.Processor
}

// cleanups 按注册的逆序执行
type cleanups []func()

func (c *cleanups) add(fn func()) {
	*c = append(*c, fn)
}

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// InitializeDataLayer 初始化数据层
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	var cs cleanups

	pgClient, pgCleanup, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	cs.add(pgCleanup)

	redisClient, redisCleanup, err := ProvideRedisClient(cfg)
	if err != nil {
		cs.run()
		return nil, nil, err
	}
	cs.add(redisCleanup)

	dl := &DataLayer{
		PgClient:     pgClient,
		TxManager:    postgres.NewTxManager(pgClient),
		HistoryRepo:  postgres.NewHistoryRepository(pgClient),
		SettingsRepo: postgres.NewSettingsRepository(pgClient),
		RedisClient:  redisClient,
		Cache:        redis.NewCache(redisClient),
		RateLimiter:  redis.NewRateLimiter(redisClient),
		JobStore:     redis.NewJobStore(redisClient, cfg.Jobs.StatusTTL),
		Producer:     ProvideMessagingProducer(redisClient, cfg),
	}
	logger.Info(ctx, "data layer initialized")
	return dl, cs.run, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL 数据层（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*PostgresOnlyDataLayer, func(), error) {
	pgClient, cleanup, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &PostgresOnlyDataLayer{
		PgClient:     pgClient,
		TxManager:    postgres.NewTxManager(pgClient),
		SettingsRepo: postgres.NewSettingsRepository(pgClient),
	}, cleanup, nil
}

// InitializeServices 基于数据层构建应用服务
func InitializeServices(cfg *config.Config, dl *DataLayer) *Services {
	registry := ProvideRegistry(cfg)
	settingsSvc := ProvideSettingsService(cfg, dl.SettingsRepo, dl.Cache, registry).WithTransactor(dl.TxManager)

	opts := []studio.Option{
		studio.WithSettings(settingsSvc),
		studio.WithLimits(ProvideLimits(cfg)),
		studio.WithDefaultProvider(cfg.LLM.DefaultProvider),
		studio.WithNSFWDefault(cfg.Pipeline.NSFWDefault),
	}
	if sink := ProvideHistorySink(cfg, dl); sink != nil {
		opts = append(opts, studio.WithHistorySink(sink))
	}

	invoker := ProvideInvoker()
	svc := studio.NewService(registry,
		generation.NewGenerator(invoker, conversion.OverrideKeys()...),
		conversion.NewConverter(invoker),
		opts...,
	)

	return &Services{
		Registry: registry,
		Settings: settingsSvc,
		History:  history.NewService(dl.HistoryRepo),
		Studio:   svc,
		Jobs:     jobs.NewService(dl.Producer, dl.JobStore),
	}
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	dl, cleanup, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svcs := InitializeServices(cfg, dl)

	r := router.New(cfg, router.Handlers{
		Health: handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
			"postgres": dl.PgClient,
			"redis":    dl.RedisClient,
		}),
		Prompt:   handler.NewPromptHandler(svcs.Studio),
		Catalog:  handler.NewCatalogHandler(svcs.Registry, svcs.Settings, cfg.LLM.DefaultProvider),
		History:  handler.NewHistoryHandler(svcs.History),
		Settings: handler.NewSettingsHandler(svcs.Settings),
		Job:      handler.NewJobHandler(svcs.Jobs),
	}, dl.RateLimiter)
	return r, cleanup, nil
}

// InitializeWorker 初始化任务 worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	dl, cleanup, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	svcs := InitializeServices(cfg, dl)
	return &Worker{
		RedisClient: dl.RedisClient,
		Processor:   jobs.NewProcessor(svcs.Studio, dl.JobStore),
	}, cleanup, nil
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideRegistry 提供后端注册表，配置中的模型与连接参数覆盖内置默认值
func ProvideRegistry(cfg *config.Config) *provider.Registry {
	opts := []provider.Option{
		provider.WithDefaults(provider.Tuning{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}),
	}
	for id, p := range cfg.LLM.Providers {
		opts = append(opts, provider.WithTuning(id, provider.Tuning{
			Model:       p.Model,
			BaseURL:     p.BaseURL,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			Timeout:     p.Timeout,
		}))
	}
	return provider.NewRegistry(opts...)
}

// ProvideInvoker 提供带用量记录的后端调用器
func ProvideInvoker() *llm.Invoker {
	return llm.NewInvoker(llm.WithUsageRecorder(llm.NewMetricsRecorder()))
}

// ProvideSettingsService 提供设置服务
func ProvideSettingsService(cfg *config.Config, repo *postgres.SettingsRepository, cache settings.Cache, registry *provider.Registry) *settings.Service {
	return settings.NewService(repo, cache, cfg.Settings.CacheTTL, registry, settings.Defaults{
		Provider: cfg.LLM.DefaultProvider,
		NSFW:     cfg.Pipeline.NSFWDefault,
	})
}

// ProvideHistorySink 提供历史记录目的地；未启用时返回 nil
func ProvideHistorySink(cfg *config.Config, dl *DataLayer) history.Sink {
	if !cfg.History.Enabled {
		return nil
	}
	sinks := history.MultiSink{history.NewRepositorySink(dl.HistoryRepo)}
	if cfg.History.PublishStream {
		sinks = append(sinks, history.NewStreamSink(dl.Producer))
	}
	return sinks
}

// ProvideLimits 提供输入校验限制，未配置的项使用默认值
func ProvideLimits(cfg *config.Config) studio.Limits {
	limits := studio.DefaultLimits()
	if cfg.Pipeline.PromptMinLength > 0 {
		limits.PromptMinLength = cfg.Pipeline.PromptMinLength
	}
	if cfg.Pipeline.PromptMaxLength > 0 {
		limits.PromptMaxLength = cfg.Pipeline.PromptMaxLength
	}
	if cfg.Pipeline.MaxImageBytes > 0 {
		limits.MaxImageBytes = int(cfg.Pipeline.MaxImageBytes)
	}
	return limits
}

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"prompt-blueprint-api/internal/config"
	"prompt-blueprint-api/internal/wire"
	"prompt-blueprint-api/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx := context.Background()

	// 2. 初始化数据层（仅 PostgreSQL）
	dataLayer, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 建表
	if err := dataLayer.PgClient.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Schema migrated.")

	// 4. 写入默认设置
	registry := wire.ProvideRegistry(cfg)
	if _, err := registry.Lookup(cfg.LLM.DefaultProvider); err != nil {
		log.Fatalf("invalid default provider %q: %v", cfg.LLM.DefaultProvider, err)
	}
	svc := wire.ProvideSettingsService(cfg, dataLayer.SettingsRepo, nil, registry).
		WithTransactor(dataLayer.TxManager)

	created, err := svc.Seed(ctx)
	if err != nil {
		log.Fatalf("failed to seed settings: %v", err)
	}
	if created {
		fmt.Printf("Default settings created (provider=%s, nsfw=%t).\n", cfg.LLM.DefaultProvider, cfg.Pipeline.NSFWDefault)
	} else {
		fmt.Println("Settings already exist.")
	}

	fmt.Println("Bootstrap completed successfully.")
}

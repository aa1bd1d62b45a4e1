// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"prompt-blueprint-api/internal/config"
	einocallback "prompt-blueprint-api/internal/infrastructure/eino/callback"
	"prompt-blueprint-api/internal/infrastructure/messaging"
	"prompt-blueprint-api/internal/wire"
	"prompt-blueprint-api/pkg/logger"
	"prompt-blueprint-api/pkg/tracer"
)

// dlqAlertThreshold 死信队列告警阈值
const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	einocallback.Init()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	concurrency := cfg.Jobs.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	consumers := make([]*messaging.Consumer, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		consumer := messaging.NewConsumer(worker.RedisClient.Redis(), messaging.ConsumerConfig{
			Stream:        messaging.StreamPromptJobs,
			Group:         consumerGroup(cfg.Messaging.RedisStream.ConsumerGroupPrefix),
			ConsumerName:  fmt.Sprintf("%s-%d", hostnameConsumerName(), i),
			BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
			ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
			RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
			Backoff: messaging.BackoffConfig{
				Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
				Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
				Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
			},
		})
		consumer.RegisterHandler(messaging.MessageTypePromptJob, worker.Processor.Handle)

		if err := consumer.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start consumer", err)
		}
		consumers = append(consumers, consumer)
	}
	go consumers[0].MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "concurrency", concurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	for _, c := range consumers {
		c.Stop()
	}
	cancel()
}

func consumerGroup(prefix string) messaging.ConsumerGroup {
	if prefix == "" {
		return messaging.ConsumerGroupPromptWorker
	}
	return messaging.ConsumerGroup(prefix + "-" + string(messaging.ConsumerGroupPromptWorker))
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Package service 定义跨层共享的领域服务契约
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyPipeline llmCtxKey = "llm_pipeline"
	llmCtxKeyStage    llmCtxKey = "llm_stage"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
)

const unknown = "unknown"

func withValue(ctx context.Context, key llmCtxKey, val string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(val)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOf(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return unknown
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return unknown
	}
	return strings.TrimSpace(s)
}

func WithPipeline(ctx context.Context, pipeline string) context.Context {
	return withValue(ctx, llmCtxKeyPipeline, pipeline)
}

func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, llmCtxKeyStage, stage)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

// WithPipelineStage 同时标注流水线与阶段
func WithPipelineStage(ctx context.Context, pipeline, stage string) context.Context {
	return WithStage(WithPipeline(ctx, pipeline), stage)
}

func PipelineFromContext(ctx context.Context) string {
	return valueOf(ctx, llmCtxKeyPipeline)
}

func StageFromContext(ctx context.Context) string {
	return valueOf(ctx, llmCtxKeyStage)
}

func ProviderFromContext(ctx context.Context) string {
	return valueOf(ctx, llmCtxKeyProvider)
}

package llm

import (
	"context"
	"time"

	llmctx "prompt-blueprint-api/internal/domain/service"
	"prompt-blueprint-api/pkg/logger"
	"prompt-blueprint-api/pkg/metrics"
)

// MetricsRecorder 将 LLM 用量写入 prometheus 并输出调试日志
type MetricsRecorder struct{}

func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

func (r *MetricsRecorder) Record(ctx context.Context, in llmctx.LLMUsageInput) error {
	metrics.RecordLLMCall(in.Provider, in.Model, in.Status,
		time.Duration(in.DurationMs)*time.Millisecond, in.PromptTokens, in.CompletionTokens)
	logger.Debug(ctx, "llm call recorded",
		"pipeline", in.Pipeline,
		"stage", in.Stage,
		"provider", in.Provider,
		"model", in.Model,
		"status", in.Status,
		"prompt_tokens", in.PromptTokens,
		"completion_tokens", in.CompletionTokens,
		"duration_ms", in.DurationMs,
	)
	return nil
}

// Package llm 实现面向多个语言模型后端的单次调用
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"prompt-blueprint-api/internal/domain/provider"
	llmctx "prompt-blueprint-api/internal/domain/service"
	workflowport "prompt-blueprint-api/internal/workflow/port"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/logger"
	"prompt-blueprint-api/pkg/tracer"
)

const defaultTimeout = 60 * time.Second

// Invoker 按后端方言分派调用；每次 Invoke 只发起一次请求，不重试
type Invoker struct {
	pool     *clientPool
	recorder llmctx.LLMUsageRecorder
}

// Option Invoker 构造选项
type Option func(*Invoker)

// WithUsageRecorder 设置用量记录器
func WithUsageRecorder(r llmctx.LLMUsageRecorder) Option {
	return func(i *Invoker) {
		if r != nil {
			i.recorder = r
		}
	}
}

// NewInvoker 创建 Invoker，默认用量记录器写入 prometheus
func NewInvoker(opts ...Option) *Invoker {
	i := &Invoker{
		pool:     newClientPool(),
		recorder: NewMetricsRecorder(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var _ workflowport.BackendInvoker = (*Invoker)(nil)

func (i *Invoker) Invoke(ctx context.Context, cfg *provider.EffectiveConfig, req *workflowport.InvokeRequest) (*workflowport.InvokeResult, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.CodeInternalError, "provider config is nil")
	}
	if req == nil {
		return nil, apperrors.New(apperrors.CodeInternalError, "invoke request is nil")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx, span := tracer.Start(callCtx, "llm.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", cfg.ID),
		attribute.String("llm.model", cfg.Model),
		attribute.String("llm.dialect", string(cfg.Dialect)),
		attribute.String("llm.stage", req.Stage),
		attribute.Bool("llm.attachment", hasAttachment(req.Attachment)),
	)

	start := time.Now()
	res, err := i.dispatch(callCtx, cfg, req)
	if err == nil && (res == nil || strings.TrimSpace(res.Text) == "") {
		err = emptyResponseError(cfg)
	}
	elapsed := time.Since(start)

	if err != nil {
		err = classify(callCtx, cfg, err)
		tracer.RecordError(span, err)
		i.record(ctx, cfg, "", "error", elapsed, 0, 0)
		logger.Warn(ctx, "llm invocation failed",
			"provider", cfg.ID,
			"model", cfg.Model,
			"stage", req.Stage,
			"code", apperrors.CodeOf(err).Name(),
			"error", err.Error(),
		)
		return nil, err
	}

	if res.Model == "" {
		res.Model = cfg.Model
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", res.PromptTokens),
		attribute.Int("llm.completion_tokens", res.CompletionTokens),
	)
	i.record(ctx, cfg, res.Model, "success", elapsed, res.PromptTokens, res.CompletionTokens)
	return res, nil
}

func (i *Invoker) dispatch(ctx context.Context, cfg *provider.EffectiveConfig, req *workflowport.InvokeRequest) (*workflowport.InvokeResult, error) {
	switch cfg.Dialect {
	case provider.DialectOpenAI:
		return i.invokeOpenAI(ctx, cfg, req)
	case provider.DialectAnthropic:
		return i.invokeAnthropic(ctx, cfg, req)
	case provider.DialectGemini:
		return i.invokeGemini(ctx, cfg, req)
	default:
		return nil, apperrors.New(apperrors.CodeInternalError, fmt.Sprintf("unknown dialect %q for provider %s", cfg.Dialect, cfg.ID))
	}
}

func (i *Invoker) record(ctx context.Context, cfg *provider.EffectiveConfig, model, status string, d time.Duration, promptTokens, completionTokens int) {
	if i.recorder == nil {
		return
	}
	if model == "" {
		model = cfg.Model
	}
	err := i.recorder.Record(ctx, llmctx.LLMUsageInput{
		Pipeline:         llmctx.PipelineFromContext(ctx),
		Stage:            llmctx.StageFromContext(ctx),
		Provider:         cfg.ID,
		Model:            model,
		Status:           status,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		DurationMs:       d.Milliseconds(),
	})
	if err != nil {
		logger.Warn(ctx, "failed to record llm usage", "error", err.Error())
	}
}

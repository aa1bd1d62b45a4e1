package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"prompt-blueprint-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishPromptJob 发布异步生成任务
func (p *Producer) PublishPromptJob(ctx context.Context, job *PromptJobMessage) (string, error) {
	msg, err := NewMessage(job.JobID, MessageTypePromptJob, job)
	if err != nil {
		return "", err
	}

	msg.SetMetadata("kind", job.Kind)
	propagate(ctx, msg)
	return p.Publish(ctx, StreamPromptJobs, msg)
}

// PublishHistoryRecorded 发布历史记录事件
func (p *Producer) PublishHistoryRecorded(ctx context.Context, ev *HistoryRecordedMessage) (string, error) {
	msg, err := NewMessage(ev.HistoryID, MessageTypeHistoryRecorded, ev)
	if err != nil {
		return "", err
	}

	propagate(ctx, msg)
	return p.Publish(ctx, StreamPromptHistory, msg)
}

// propagate 将请求与追踪标识写入元数据，供消费端恢复日志上下文
func propagate(ctx context.Context, msg *Message) {
	for meta, key := range map[string]logger.ContextKey{
		"request_id": logger.RequestIDKey,
		"trace_id":   logger.TraceIDKey,
	} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			msg.SetMetadata(meta, v)
		}
	}
}

// PromptJobMessage 异步生成任务消息
// 不携带调用方凭证，worker 使用已保存的设置与环境变量
type PromptJobMessage struct {
	JobID       string          `json:"job_id"`
	Kind        string          `json:"kind"`
	Provider    string          `json:"provider,omitempty"`
	Prompt      string          `json:"prompt,omitempty"`
	ImageBase64 string          `json:"image_base64,omitempty"`
	Filename    string          `json:"filename,omitempty"`
	NSFW        *bool           `json:"nsfw,omitempty"`
	Target      string          `json:"target,omitempty"`
	Blueprint   json.RawMessage `json:"blueprint,omitempty"`
}

// HistoryRecordedMessage 历史记录事件
type HistoryRecordedMessage struct {
	HistoryID    string    `json:"history_id"`
	JobID        string    `json:"job_id,omitempty"`
	Kind         string    `json:"kind"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	Target       string    `json:"target,omitempty"`
	Success      bool      `json:"success"`
	Degraded     bool      `json:"degraded"`
	ErrorCode    string    `json:"error_code,omitempty"`
	Keywords     []string  `json:"keywords"`
	ProcessingMs int64     `json:"processing_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

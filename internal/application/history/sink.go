// Package history 记录生成与转换结果，并提供查询与统计
package history

import (
	"context"
	"errors"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
	"prompt-blueprint-api/internal/infrastructure/messaging"
	"prompt-blueprint-api/pkg/metrics"
)

// Sink 历史记录目的地
type Sink interface {
	Record(ctx context.Context, h *entity.PromptHistory) error
}

// RepositorySink 写入数据库
type RepositorySink struct {
	repo repository.HistoryRepository
}

func NewRepositorySink(repo repository.HistoryRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Record(ctx context.Context, h *entity.PromptHistory) error {
	err := s.repo.Create(ctx, h)
	observe("repository", err)
	return err
}

// Publisher 历史事件发布者
type Publisher interface {
	PublishHistoryRecorded(ctx context.Context, ev *messaging.HistoryRecordedMessage) (string, error)
}

// StreamSink 发布 history_recorded 事件
type StreamSink struct {
	publisher Publisher
}

func NewStreamSink(publisher Publisher) *StreamSink {
	return &StreamSink{publisher: publisher}
}

func (s *StreamSink) Record(ctx context.Context, h *entity.PromptHistory) error {
	_, err := s.publisher.PublishHistoryRecorded(ctx, &messaging.HistoryRecordedMessage{
		HistoryID:    h.ID,
		JobID:        h.JobID,
		Kind:         string(h.Kind),
		Provider:     h.Provider,
		Model:        h.Model,
		Target:       h.Target,
		Success:      h.Success,
		Degraded:     h.Degraded,
		ErrorCode:    h.ErrorCode,
		Keywords:     append([]string{}, h.Keywords...),
		ProcessingMs: h.ProcessingMs,
		CreatedAt:    h.CreatedAt,
	})
	observe("stream", err)
	return err
}

// MultiSink 依次写入全部目的地，错误合并返回
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, h *entity.PromptHistory) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func observe(sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.HistoryRecordTotal.WithLabelValues(sink, status).Inc()
}

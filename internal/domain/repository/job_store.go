package repository

import (
	"context"

	"prompt-blueprint-api/internal/domain/entity"
)

// JobStore 异步任务状态存储
type JobStore interface {
	// Save 写入任务状态
	Save(ctx context.Context, job *entity.PromptJob) error

	// Get 读取任务状态，不存在时返回 nil, nil
	Get(ctx context.Context, id string) (*entity.PromptJob, error)
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
)

// DefaultJobTTL 任务状态默认保留时间
const DefaultJobTTL = 24 * time.Hour

// JobStore 基于 Redis 的任务状态存储，键为 job:<id>
type JobStore struct {
	client *Client
	ttl    time.Duration
}

var _ repository.JobStore = (*JobStore)(nil)

// NewJobStore 创建任务状态存储
func NewJobStore(client *Client, ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobStore{client: client, ttl: ttl}
}

// JobKey 任务状态键
func JobKey(id string) string {
	return "job:" + id
}

func (s *JobStore) Save(ctx context.Context, job *entity.PromptJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.client.Set(ctx, JobKey(job.ID), raw, s.ttl)
}

func (s *JobStore) Get(ctx context.Context, id string) (*entity.PromptJob, error) {
	raw, err := s.client.Get(ctx, JobKey(id))
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, err
	}
	var job entity.PromptJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

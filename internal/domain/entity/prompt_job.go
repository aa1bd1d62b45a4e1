package entity

import (
	"encoding/json"
	"time"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PromptJob 异步生成任务状态，存放于 Redis
type PromptJob struct {
	ID          string          `json:"id"`
	Kind        GenerationKind  `json:"kind"`
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
}

// NewPromptJob 创建待处理任务
func NewPromptJob(id string, kind GenerationKind) *PromptJob {
	return &PromptJob{
		ID:        id,
		Kind:      kind,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// Start 开始执行任务
func (j *PromptJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Attempts++
}

// Complete 完成任务
func (j *PromptJob) Complete(result json.RawMessage) {
	j.finish(JobStatusCompleted)
	j.Result = result
}

// Fail 任务失败
func (j *PromptJob) Fail(errMsg string, result json.RawMessage) {
	j.finish(JobStatusFailed)
	j.Error = errMsg
	j.Result = result
}

func (j *PromptJob) finish(status JobStatus) {
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

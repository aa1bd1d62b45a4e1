package dto

import (
	"encoding/json"
	"time"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/infrastructure/messaging"
)

// SubmitJobRequest 异步任务提交请求
// 异步任务不接受单次凭证覆盖，只使用已保存设置或环境变量
type SubmitJobRequest struct {
	Kind        string          `json:"kind"`
	Provider    string          `json:"provider,omitempty"`
	Prompt      string          `json:"prompt,omitempty"`
	ImageBase64 string          `json:"image_base64,omitempty"`
	Filename    string          `json:"filename,omitempty"`
	NSFW        *bool           `json:"nsfw,omitempty"`
	Target      string          `json:"target,omitempty"`
	Blueprint   json.RawMessage `json:"blueprint,omitempty"`
}

// ToMessage 转换为任务消息
func (r *SubmitJobRequest) ToMessage() *messaging.PromptJobMessage {
	return &messaging.PromptJobMessage{
		Kind:        r.Kind,
		Provider:    r.Provider,
		Prompt:      r.Prompt,
		ImageBase64: r.ImageBase64,
		Filename:    r.Filename,
		NSFW:        r.NSFW,
		Target:      r.Target,
		Blueprint:   r.Blueprint,
	}
}

// JobResponse 任务响应
type JobResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
}

// ToJobResponse 将任务状态转换为响应 DTO
func ToJobResponse(j *entity.PromptJob) *JobResponse {
	if j == nil {
		return nil
	}
	return &JobResponse{
		ID:          j.ID,
		Kind:        string(j.Kind),
		Status:      string(j.Status),
		Result:      j.Result,
		Error:       j.Error,
		Attempts:    j.Attempts,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		DurationMs:  j.DurationMs,
	}
}

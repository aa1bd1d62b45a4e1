package dto

import (
	"encoding/json"
	"time"

	"prompt-blueprint-api/internal/domain/entity"
)

// HistoryResponse 历史记录响应
type HistoryResponse struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id,omitempty"`
	Kind         string          `json:"kind"`
	InputText    string          `json:"input_text"`
	Target       string          `json:"target,omitempty"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model,omitempty"`
	Success      bool            `json:"success"`
	Degraded     bool            `json:"degraded"`
	ErrorCode    string          `json:"error_code,omitempty"`
	Error        string          `json:"error,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Keywords     []string        `json:"keywords"`
	TotalTokens  int             `json:"total_tokens"`
	ProcessingMs int64           `json:"processing_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HistoryListResponse 历史列表响应
type HistoryListResponse struct {
	Items []*HistoryResponse `json:"items"`
}

// RecentPromptsResponse 最近使用的提示词
type RecentPromptsResponse struct {
	Prompts []string `json:"prompts"`
}

// ClearHistoryResponse 清空历史响应
type ClearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// ToHistoryResponse 将领域实体转换为响应 DTO
func ToHistoryResponse(h *entity.PromptHistory) *HistoryResponse {
	if h == nil {
		return nil
	}
	keywords := []string(h.Keywords)
	if keywords == nil {
		keywords = []string{}
	}
	return &HistoryResponse{
		ID:           h.ID,
		JobID:        h.JobID,
		Kind:         string(h.Kind),
		InputText:    h.InputText,
		Target:       h.Target,
		Provider:     h.Provider,
		Model:        h.Model,
		Success:      h.Success,
		Degraded:     h.Degraded,
		ErrorCode:    h.ErrorCode,
		Error:        h.ErrorMessage,
		Output:       h.Output,
		Keywords:     keywords,
		TotalTokens:  h.PromptTokens + h.CompletionTokens,
		ProcessingMs: h.ProcessingMs,
		CreatedAt:    h.CreatedAt,
	}
}

// ToHistoryListResponse 批量转换
func ToHistoryListResponse(items []*entity.PromptHistory) *HistoryListResponse {
	out := make([]*HistoryResponse, 0, len(items))
	for _, h := range items {
		out = append(out, ToHistoryResponse(h))
	}
	return &HistoryListResponse{Items: out}
}

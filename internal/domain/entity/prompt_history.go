// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// GenerationKind 生成类型
type GenerationKind string

const (
	GenerationKindText    GenerationKind = "text"
	GenerationKindImage   GenerationKind = "image"
	GenerationKindConvert GenerationKind = "convert"
)

// Valid 是否为已知类型
func (k GenerationKind) Valid() bool {
	switch k {
	case GenerationKindText, GenerationKindImage, GenerationKindConvert:
		return true
	}
	return false
}

// PromptHistory 一次生成或转换的历史记录
type PromptHistory struct {
	ID               string          `gorm:"type:uuid;primaryKey" json:"id"`
	JobID            string          `gorm:"size:64;index" json:"job_id,omitempty"`
	Kind             GenerationKind  `gorm:"size:16;index;not null" json:"kind"`
	InputText        string          `gorm:"type:text" json:"input_text"`
	Target           string          `gorm:"size:32" json:"target,omitempty"`
	Provider         string          `gorm:"size:32;index" json:"provider"`
	Model            string          `gorm:"size:128" json:"model,omitempty"`
	Success          bool            `json:"success"`
	Degraded         bool            `json:"degraded"`
	ErrorCode        string          `gorm:"size:32" json:"error_code,omitempty"`
	ErrorMessage     string          `gorm:"type:text" json:"error,omitempty"`
	Output           json.RawMessage `gorm:"type:jsonb" json:"output,omitempty"`
	Keywords         pq.StringArray  `gorm:"type:text[]" json:"keywords"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	ProcessingMs     int64           `json:"processing_ms"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
}

// TableName 表名
func (PromptHistory) TableName() string {
	return "prompt_history"
}

// NewPromptHistory 创建历史记录
func NewPromptHistory(kind GenerationKind, input, provider string) *PromptHistory {
	return &PromptHistory{
		ID:        uuid.NewString(),
		Kind:      kind,
		InputText: input,
		Provider:  provider,
		Keywords:  pq.StringArray{},
		CreatedAt: time.Now(),
	}
}

// SetUsage 设置 token 用量
func (h *PromptHistory) SetUsage(promptTokens, completionTokens int) {
	h.PromptTokens = promptTokens
	h.CompletionTokens = completionTokens
}

package studio

import (
	"context"

	"prompt-blueprint-api/internal/domain/blueprint"
)

// TokenUsage token 用量
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func newTokenUsage(promptTokens, completionTokens int) *TokenUsage {
	return &TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// GenerationResult 生成结果信封
type GenerationResult struct {
	Success        bool                 `json:"success"`
	Data           *blueprint.Blueprint `json:"data,omitempty"`
	Error          string               `json:"error,omitempty"`
	ErrorCode      string               `json:"error_code,omitempty"`
	Degraded       bool                 `json:"degraded"`
	Provider       string               `json:"provider,omitempty"`
	Model          string               `json:"model,omitempty"`
	ProcessingTime float64              `json:"processing_time"`
	TokenUsage     *TokenUsage          `json:"token_usage,omitempty"`
	HistoryID      string               `json:"history_id,omitempty"`
}

// ConversionResult 转换结果信封
type ConversionResult struct {
	Success        bool                       `json:"success"`
	Data           *blueprint.ProviderPayload `json:"data,omitempty"`
	Error          string                     `json:"error,omitempty"`
	ErrorCode      string                     `json:"error_code,omitempty"`
	Degraded       bool                       `json:"degraded"`
	Target         string                     `json:"target,omitempty"`
	Provider       string                     `json:"provider,omitempty"`
	Model          string                     `json:"model,omitempty"`
	ProcessingTime float64                    `json:"processing_time"`
	TokenUsage     *TokenUsage                `json:"token_usage,omitempty"`
	HistoryID      string                     `json:"history_id,omitempty"`
}

// RejectedGeneration 请求体无法进入流水线时的失败信封，不写历史
func RejectedGeneration(ctx context.Context, providerID string, err error) *GenerationResult {
	res := &GenerationResult{Provider: providerID}
	res.Error, res.ErrorCode = describeError(ctx, err)
	return res
}

// RejectedConversion 同 RejectedGeneration，用于转换
func RejectedConversion(ctx context.Context, providerID, target string, err error) *ConversionResult {
	res := &ConversionResult{Provider: providerID, Target: target}
	res.Error, res.ErrorCode = describeError(ctx, err)
	return res
}

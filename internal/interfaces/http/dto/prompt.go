package dto

import (
	"encoding/json"

	"prompt-blueprint-api/internal/application/conversion"
	"prompt-blueprint-api/internal/domain/provider"
)

// GenerateTextRequest 文本生成蓝图请求
type GenerateTextRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider,omitempty"`
	// APIKeys 单次调用的凭证覆盖，不会被保存
	APIKeys map[string]string `json:"api_keys,omitempty"`
	NSFW    *bool             `json:"nsfw,omitempty"`
}

// GenerateImageRequest 图片生成蓝图请求
type GenerateImageRequest struct {
	ImageBase64 string            `json:"image_base64"`
	Filename    string            `json:"filename,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	APIKeys     map[string]string `json:"api_keys,omitempty"`
	NSFW        *bool             `json:"nsfw,omitempty"`
}

// ConvertRequest 蓝图转换请求
type ConvertRequest struct {
	Blueprint json.RawMessage   `json:"blueprint"`
	Target    string            `json:"target"`
	Provider  string            `json:"provider,omitempty"`
	APIKeys   map[string]string `json:"api_keys,omitempty"`
}

// ValidateRequest 提示词校验请求
type ValidateRequest struct {
	Prompt string `json:"prompt"`
}

// ValidateResponse 提示词校验结果
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Length int    `json:"length"`
	Error  string `json:"error,omitempty"`
}

// ProviderResponse 后端描述
type ProviderResponse struct {
	ID                 string `json:"id"`
	DefaultModel       string `json:"default_model"`
	Dialect            string `json:"dialect"`
	Vision             bool   `json:"vision"`
	RequiresCredential bool   `json:"requires_credential"`
	CredentialEnv      string `json:"credential_env,omitempty"`
	Configured         bool   `json:"configured"`
	Default            bool   `json:"default"`
}

// ProviderListResponse 后端列表
type ProviderListResponse struct {
	Providers []*ProviderResponse `json:"providers"`
	Default   string              `json:"default"`
}

// ToProviderResponse 将注册表条目转换为响应 DTO
func ToProviderResponse(c provider.Config, configured, isDefault bool) *ProviderResponse {
	return &ProviderResponse{
		ID:                 c.ID,
		DefaultModel:       c.DefaultModel,
		Dialect:            string(c.Dialect),
		Vision:             c.Vision,
		RequiresCredential: c.RequiresCredential,
		CredentialEnv:      c.CredentialEnv,
		Configured:         configured,
		Default:            isDefault,
	}
}

// TargetResponse 转换目标描述
type TargetResponse struct {
	ID              string           `json:"id"`
	Label           string           `json:"label"`
	Summary         string           `json:"summary"`
	ModelIdentifier string           `json:"model_identifier"`
	PayloadFields   []string         `json:"payload_fields"`
	Sampler         string           `json:"sampler"`
	Scheduler       string           `json:"scheduler,omitempty"`
	Steps           conversion.Range `json:"steps"`
	Guidance        conversion.Range `json:"guidance"`
	Width           conversion.Range `json:"width"`
	Height          conversion.Range `json:"height"`
}

// TargetListResponse 目标列表
type TargetListResponse struct {
	Targets []*TargetResponse `json:"targets"`
}

// ToTargetResponse 将目标指引转换为响应 DTO
func ToTargetResponse(g conversion.Guidance) *TargetResponse {
	return &TargetResponse{
		ID:              g.ID,
		Label:           g.Label,
		Summary:         g.Summary,
		ModelIdentifier: g.ModelIdentifier,
		PayloadFields:   g.PayloadFields,
		Sampler:         g.Sampler,
		Scheduler:       g.Scheduler,
		Steps:           g.Steps,
		Guidance:        g.Guidance,
		Width:           g.Width,
		Height:          g.Height,
	}
}

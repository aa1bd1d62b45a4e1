package dto

import (
	"prompt-blueprint-api/internal/application/settings"
)

// UpdateSettingsRequest 设置部分更新；api_keys 中空值表示删除
type UpdateSettingsRequest struct {
	DefaultProvider *string           `json:"default_provider,omitempty"`
	NSFWEnabled     *bool             `json:"nsfw_enabled,omitempty"`
	APIKeys         map[string]string `json:"api_keys,omitempty"`
}

// ToPatch 转换为应用层补丁
func (r *UpdateSettingsRequest) ToPatch() settings.Patch {
	return settings.Patch{
		DefaultProvider: r.DefaultProvider,
		NSFWEnabled:     r.NSFWEnabled,
		APIKeys:         r.APIKeys,
	}
}

// DeleteAPIKeyResponse 删除 key 响应
type DeleteAPIKeyResponse struct {
	Provider string `json:"provider"`
	Deleted  bool   `json:"deleted"`
}

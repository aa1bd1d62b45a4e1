package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"prompt-blueprint-api/internal/application/settings"
	"prompt-blueprint-api/internal/interfaces/http/dto"
)

// SettingsService 设置服务
type SettingsService interface {
	View(ctx context.Context) (*settings.View, error)
	Update(ctx context.Context, patch settings.Patch) (*settings.View, error)
	DeleteAPIKey(ctx context.Context, providerID string) (bool, error)
	Reset(ctx context.Context) (*settings.View, error)
}

// SettingsHandler 设置处理器
type SettingsHandler struct {
	svc SettingsService
}

// NewSettingsHandler 创建设置处理器
func NewSettingsHandler(svc SettingsService) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

// Get 获取设置，api key 已掩码
// @Summary 获取设置
// @Tags Settings
// @Produce json
// @Success 200 {object} dto.Response[settings.View]
// @Router /v1/settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	view, err := h.svc.View(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to load settings")
		return
	}
	dto.Success(c, view)
}

// Update 部分更新设置
// @Summary 更新设置
// @Tags Settings
// @Accept json
// @Produce json
// @Param body body dto.UpdateSettingsRequest true "请求体"
// @Success 200 {object} dto.Response[settings.View]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	view, err := h.svc.Update(c.Request.Context(), req.ToPatch())
	if err != nil {
		respondError(c, err, "failed to update settings")
		return
	}
	dto.Success(c, view)
}

// DeleteAPIKey 删除某个后端的已保存 key
// @Summary 删除 api key
// @Tags Settings
// @Produce json
// @Param provider path string true "后端 ID"
// @Success 200 {object} dto.Response[dto.DeleteAPIKeyResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/settings/api-keys/{provider} [delete]
func (h *SettingsHandler) DeleteAPIKey(c *gin.Context) {
	providerID := dto.BindProvider(c)
	deleted, err := h.svc.DeleteAPIKey(c.Request.Context(), providerID)
	if err != nil {
		respondError(c, err, "failed to delete api key")
		return
	}
	if !deleted {
		dto.NotFound(c, "no api key stored for provider")
		return
	}
	dto.Success(c, &dto.DeleteAPIKeyResponse{Provider: providerID, Deleted: true})
}

// Reset 恢复默认设置
// @Summary 重置设置
// @Tags Settings
// @Produce json
// @Success 200 {object} dto.Response[settings.View]
// @Router /v1/settings/reset [post]
func (h *SettingsHandler) Reset(c *gin.Context) {
	view, err := h.svc.Reset(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to reset settings")
		return
	}
	dto.Success(c, view)
}

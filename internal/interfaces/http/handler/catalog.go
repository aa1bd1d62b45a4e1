package handler

import (
	"github.com/gin-gonic/gin"

	"prompt-blueprint-api/internal/application/conversion"
	"prompt-blueprint-api/internal/application/studio"
	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/interfaces/http/dto"
)

// CatalogHandler 后端与转换目标目录
type CatalogHandler struct {
	registry        *provider.Registry
	settings        studio.SettingsSource
	defaultProvider string
}

// NewCatalogHandler 创建目录处理器；settings 可为空
func NewCatalogHandler(registry *provider.Registry, settings studio.SettingsSource, defaultProvider string) *CatalogHandler {
	return &CatalogHandler{
		registry:        registry,
		settings:        settings,
		defaultProvider: defaultProvider,
	}
}

// ListProviders 列出后端及其是否已配置凭证
// @Summary 后端列表
// @Tags Catalog
// @Produce json
// @Success 200 {object} dto.Response[dto.ProviderListResponse]
// @Router /v1/providers [get]
func (h *CatalogHandler) ListProviders(c *gin.Context) {
	ctx := c.Request.Context()

	def := h.defaultProvider
	var creds map[string]string
	if h.settings != nil {
		if id := h.settings.DefaultProvider(ctx); id != "" {
			def = id
		}
		creds = h.settings.Credentials(ctx)
	}

	list := h.registry.List()
	out := make([]*dto.ProviderResponse, 0, len(list))
	for _, p := range list {
		out = append(out, dto.ToProviderResponse(p, h.registry.Configured(p.ID, creds), p.ID == def))
	}
	dto.Success(c, &dto.ProviderListResponse{Providers: out, Default: def})
}

// ListTargets 列出转换目标
// @Summary 转换目标列表
// @Tags Catalog
// @Produce json
// @Success 200 {object} dto.Response[dto.TargetListResponse]
// @Router /v1/targets [get]
func (h *CatalogHandler) ListTargets(c *gin.Context) {
	targets := conversion.Targets()
	out := make([]*dto.TargetResponse, 0, len(targets))
	for _, g := range targets {
		out = append(out, dto.ToTargetResponse(g))
	}
	dto.Success(c, &dto.TargetListResponse{Targets: out})
}

package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/repository"
	"prompt-blueprint-api/internal/interfaces/http/dto"
)

// HistoryService 历史查询服务
type HistoryService interface {
	List(ctx context.Context, filter *repository.HistoryFilter, page, pageSize int) (*repository.PagedResult[*entity.PromptHistory], error)
	Get(ctx context.Context, id string) (*entity.PromptHistory, error)
	Recent(ctx context.Context, limit int) ([]string, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*repository.HistoryStats, error)
}

// HistoryHandler 历史处理器
type HistoryHandler struct {
	svc HistoryService
}

// NewHistoryHandler 创建历史处理器
func NewHistoryHandler(svc HistoryService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// List 分页查询历史
// @Summary 历史列表
// @Tags History
// @Produce json
// @Param q query string false "输入文本关键字"
// @Param kind query string false "text / image / convert"
// @Param provider query string false "后端 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[dto.HistoryListResponse]
// @Router /v1/history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	page := dto.BindPage(c)
	filter := &repository.HistoryFilter{
		Query:    strings.TrimSpace(c.Query("q")),
		Kind:     entity.GenerationKind(strings.ToLower(strings.TrimSpace(c.Query("kind")))),
		Provider: strings.ToLower(strings.TrimSpace(c.Query("provider"))),
	}

	res, err := h.svc.List(c.Request.Context(), filter, page.Page, page.PageSize)
	if err != nil {
		respondError(c, err, "failed to list history")
		return
	}
	dto.SuccessWithPage(c, dto.ToHistoryListResponse(res.Items),
		dto.NewPageMeta(res.Page, res.PageSize, int(res.Total)))
}

// Get 获取单条历史
// @Summary 历史详情
// @Tags History
// @Produce json
// @Param id path string true "历史 ID"
// @Success 200 {object} dto.Response[dto.HistoryResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/history/{id} [get]
func (h *HistoryHandler) Get(c *gin.Context) {
	item, err := h.svc.Get(c.Request.Context(), dto.BindID(c))
	if err != nil {
		respondError(c, err, "failed to get history")
		return
	}
	dto.Success(c, dto.ToHistoryResponse(item))
}

// Recent 最近使用的提示词
// @Summary 最近提示词
// @Tags History
// @Produce json
// @Param limit query int false "数量，最大 50"
// @Success 200 {object} dto.Response[dto.RecentPromptsResponse]
// @Router /v1/history/recent [get]
func (h *HistoryHandler) Recent(c *gin.Context) {
	prompts, err := h.svc.Recent(c.Request.Context(), dto.BindLimit(c, 10))
	if err != nil {
		respondError(c, err, "failed to load recent prompts")
		return
	}
	if prompts == nil {
		prompts = []string{}
	}
	dto.Success(c, &dto.RecentPromptsResponse{Prompts: prompts})
}

// Stats 历史统计
// @Summary 历史统计
// @Tags History
// @Produce json
// @Success 200 {object} dto.Response[repository.HistoryStats]
// @Router /v1/history/stats [get]
func (h *HistoryHandler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to compute history stats")
		return
	}
	dto.Success(c, st)
}

// Delete 删除单条历史
// @Summary 删除历史
// @Tags History
// @Param id path string true "历史 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/history/{id} [delete]
func (h *HistoryHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), dto.BindID(c)); err != nil {
		respondError(c, err, "failed to delete history")
		return
	}
	dto.NoContent(c)
}

// Clear 清空历史
// @Summary 清空历史
// @Tags History
// @Produce json
// @Success 200 {object} dto.Response[dto.ClearHistoryResponse]
// @Router /v1/history [delete]
func (h *HistoryHandler) Clear(c *gin.Context) {
	n, err := h.svc.Clear(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to clear history")
		return
	}
	dto.Success(c, &dto.ClearHistoryResponse{Deleted: n})
}

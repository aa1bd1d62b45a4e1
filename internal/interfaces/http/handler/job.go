package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/infrastructure/messaging"
	"prompt-blueprint-api/internal/interfaces/http/dto"
)

// JobService 异步任务服务
type JobService interface {
	Submit(ctx context.Context, req *messaging.PromptJobMessage) (*entity.PromptJob, error)
	Get(ctx context.Context, id string) (*entity.PromptJob, error)
}

// JobHandler 任务处理器
type JobHandler struct {
	svc JobService
}

// NewJobHandler 创建任务处理器
func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

// Submit 提交异步任务
// @Summary 提交异步任务
// @Description 任务写入 redis stream，由 job-worker 执行
// @Tags Jobs
// @Accept json
// @Produce json
// @Param body body dto.SubmitJobRequest true "请求体"
// @Success 202 {object} dto.Response[dto.JobResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/jobs [post]
func (h *JobHandler) Submit(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	job, err := h.svc.Submit(c.Request.Context(), req.ToMessage())
	if err != nil {
		respondError(c, err, "failed to submit job")
		return
	}
	dto.Accepted(c, dto.ToJobResponse(job))
}

// Get 获取任务详情
// @Summary 获取任务详情
// @Description 获取指定任务的状态与结果信封
// @Tags Jobs
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.JobResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.svc.Get(c.Request.Context(), dto.BindID(c))
	if err != nil {
		respondError(c, err, "failed to get job")
		return
	}
	dto.Success(c, dto.ToJobResponse(job))
}

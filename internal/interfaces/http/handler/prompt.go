package handler

import (
	"context"
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"prompt-blueprint-api/internal/application/conversion"
	"prompt-blueprint-api/internal/application/jobs"
	"prompt-blueprint-api/internal/application/studio"
	"prompt-blueprint-api/internal/domain/blueprint"
	"prompt-blueprint-api/internal/interfaces/http/dto"
	apperrors "prompt-blueprint-api/pkg/errors"
)

// PromptService 生成与转换门面
type PromptService interface {
	GenerateFromText(ctx context.Context, in studio.TextInput) *studio.GenerationResult
	GenerateFromImage(ctx context.Context, in studio.ImageInput) *studio.GenerationResult
	ConvertPrompt(ctx context.Context, in studio.ConvertInput) *studio.ConversionResult
	ValidatePrompt(text string) error
}

// PromptHandler 提示词处理器
type PromptHandler struct {
	svc PromptService
}

// NewPromptHandler 创建提示词处理器
func NewPromptHandler(svc PromptService) *PromptHandler {
	return &PromptHandler{svc: svc}
}

// Generate 文本生成蓝图
// @Summary 文本生成蓝图
// @Tags Prompts
// @Accept json
// @Produce json
// @Param body body dto.GenerateTextRequest true "请求体"
// @Success 200 {object} studio.GenerationResult
// @Failure 400 {object} studio.GenerationResult
// @Router /v1/prompts/generate [post]
func (h *PromptHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.GenerateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		res := studio.RejectedGeneration(ctx, req.Provider, invalidBody(err))
		respondEnvelope(c, res.ErrorCode, res)
		return
	}

	res := h.svc.GenerateFromText(ctx, studio.TextInput{
		Prompt:      req.Prompt,
		Provider:    req.Provider,
		Credentials: req.APIKeys,
		NSFW:        req.NSFW,
	})
	respondEnvelope(c, res.ErrorCode, res)
}

// GenerateFromImage 图片生成蓝图
// @Summary 图片生成蓝图
// @Tags Prompts
// @Accept json
// @Produce json
// @Param body body dto.GenerateImageRequest true "请求体"
// @Success 200 {object} studio.GenerationResult
// @Failure 400 {object} studio.GenerationResult
// @Router /v1/prompts/generate/image [post]
func (h *PromptHandler) GenerateFromImage(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		res := studio.RejectedGeneration(ctx, req.Provider, invalidBody(err))
		respondEnvelope(c, res.ErrorCode, res)
		return
	}

	image, err := base64.StdEncoding.DecodeString(jobs.StripDataURI(req.ImageBase64))
	if err != nil {
		res := studio.RejectedGeneration(ctx, req.Provider,
			apperrors.New(apperrors.CodeInvalidParam, "Image must be valid base64."))
		respondEnvelope(c, res.ErrorCode, res)
		return
	}

	res := h.svc.GenerateFromImage(ctx, studio.ImageInput{
		Image:       image,
		Filename:    req.Filename,
		Provider:    req.Provider,
		Credentials: req.APIKeys,
		NSFW:        req.NSFW,
	})
	respondEnvelope(c, res.ErrorCode, res)
}

// Convert 蓝图转换为目标模型载荷
// @Summary 蓝图转换
// @Tags Prompts
// @Accept json
// @Produce json
// @Param body body dto.ConvertRequest true "请求体"
// @Success 200 {object} studio.ConversionResult
// @Failure 400 {object} studio.ConversionResult
// @Router /v1/prompts/convert [post]
func (h *PromptHandler) Convert(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		res := studio.RejectedConversion(ctx, req.Provider, req.Target, invalidBody(err))
		respondEnvelope(c, res.ErrorCode, res)
		return
	}

	var bp *blueprint.Blueprint
	if raw := strings.TrimSpace(string(req.Blueprint)); raw != "" && raw != "null" {
		parsed, err := conversion.ParseBlueprint(req.Blueprint)
		if err != nil {
			// 未知目标优先于蓝图校验失败
			if _, targetErr := conversion.LookupTarget(req.Target); targetErr != nil {
				err = targetErr
			}
			res := studio.RejectedConversion(ctx, req.Provider, req.Target, err)
			respondEnvelope(c, res.ErrorCode, res)
			return
		}
		bp = parsed
	}

	res := h.svc.ConvertPrompt(ctx, studio.ConvertInput{
		Blueprint:   bp,
		Target:      req.Target,
		Provider:    req.Provider,
		Credentials: req.APIKeys,
	})
	respondEnvelope(c, res.ErrorCode, res)
}

// Validate 校验提示词
// @Summary 校验提示词长度
// @Tags Prompts
// @Accept json
// @Produce json
// @Param body body dto.ValidateRequest true "请求体"
// @Success 200 {object} dto.Response[dto.ValidateResponse]
// @Router /v1/prompts/validate [post]
func (h *PromptHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp := &dto.ValidateResponse{
		Valid:  true,
		Length: utf8.RuneCountInString(strings.TrimSpace(req.Prompt)),
	}
	if err := h.svc.ValidatePrompt(req.Prompt); err != nil {
		resp.Valid = false
		resp.Error = apperrors.AsAppError(err).Message
	}
	dto.Success(c, resp)
}

func invalidBody(err error) error {
	return apperrors.Wrap(err, apperrors.CodeInvalidParam, "Invalid request body.")
}

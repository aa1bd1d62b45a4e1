// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"prompt-blueprint-api/internal/interfaces/http/dto"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/logger"
)

// respondError 将应用错误映射为 HTTP 错误响应；非 AppError 记录日志后返回 500
func respondError(c *gin.Context, err error, fallback string) {
	if apperrors.IsAppError(err) {
		appErr := apperrors.AsAppError(err)
		dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
			ErrorCode: appErr.Code.Name(),
			Details:   appErr.Detail,
		})
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), fallback, err)
		}
		return
	}
	logger.Error(c.Request.Context(), fallback, err)
	dto.InternalError(c, fallback)
}

// respondEnvelope 写出流水线结果信封：统一返回 200，入参校验失败返回 400
func respondEnvelope(c *gin.Context, errorCode string, body any) {
	dto.MarkErrorCode(c, errorCode)
	c.JSON(envelopeStatus(errorCode), body)
}

func envelopeStatus(errorCode string) int {
	if errorCode == apperrors.CodeInvalidParam.Name() {
		return 400
	}
	return 200
}

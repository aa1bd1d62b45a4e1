// Package middleware 提供 HTTP 中间件
package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prompt-blueprint-api/internal/interfaces/http/dto"
	"prompt-blueprint-api/pkg/logger"
)

// TraceIDHeader 响应中回写的追踪 ID 头
const TraceIDHeader = "X-Trace-ID"

// Trace OpenTelemetry 追踪中间件
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// TraceContext 将 trace_id 注入日志上下文，并把请求 ID 与信封错误码挂到当前 span 上
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if !sc.IsValid() {
			c.Next()
			return
		}

		traceID := sc.TraceID().String()
		spanID := sc.SpanID().String()
		c.Set("trace_id", traceID)
		c.Set("span_id", spanID)

		ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
		ctx = logger.WithContext(ctx, logger.SpanIDKey, spanID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceIDHeader, traceID)

		if reqID := c.GetString(RequestIDKey); reqID != "" {
			span.SetAttributes(attribute.String("request.id", reqID))
		}

		c.Next()

		// 流水线失败以 200 信封返回，otelgin 只看状态码，这里补上错误码
		if code := c.GetString(dto.ErrorCodeKey); code != "" {
			span.SetAttributes(attribute.String("app.error_code", code))
			if c.Writer.Status() < 500 {
				span.SetStatus(codes.Error, code)
			}
		}
	}
}

// Package middleware 提供 HTTP 中间件
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"prompt-blueprint-api/internal/interfaces/http/dto"
	"prompt-blueprint-api/pkg/metrics"
)

// UnmatchedRoute 未命中路由的请求共用的 path 标签
const UnmatchedRoute = "unmatched"

// Metrics 按路由模板采集请求指标，并按信封错误码统计失败
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		// 路由模板而不是原始 URL，避免 /v1/jobs/:id 之类的路径撑爆标签基数
		path := routeLabel(c)

		if reqSize := float64(c.Request.ContentLength); reqSize > 0 {
			metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(reqSize)
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if respSize := float64(c.Writer.Size()); respSize > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(respSize)
		}
		if code := c.GetString(dto.ErrorCodeKey); code != "" {
			metrics.HTTPErrorsTotal.WithLabelValues(method, path, code).Inc()
		}
	}
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return UnmatchedRoute
}

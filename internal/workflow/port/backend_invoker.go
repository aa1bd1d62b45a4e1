// Package port 定义工作流层对外部能力的最小依赖
package port

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/workflow/contract"
)

// Attachment 随请求发送的二进制附件（图片）
type Attachment struct {
	Data     []byte
	MIMEType string
	Filename string
}

// InvokeRequest 单次后端调用请求
type InvokeRequest struct {
	Stage      string
	Messages   []*schema.Message
	Attachment *Attachment
	// Schema 非空时请求后端按该 Schema 输出 JSON
	Schema *contract.Schema
}

// InvokeResult 单次后端调用结果
type InvokeResult struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// BackendInvoker 对语言模型后端的一次调用，不做重试。
// 失败时返回 Timeout / TransportError / BackendRejected 之一。
type BackendInvoker interface {
	Invoke(ctx context.Context, cfg *provider.EffectiveConfig, req *InvokeRequest) (*InvokeResult, error)
}

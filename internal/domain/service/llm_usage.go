package service

import "context"

// LLMUsageInput 表示一次 LLM 调用的可观测数据。
// 该结构位于 domain/service，作为基础设施层与应用层之间的稳定契约。
type LLMUsageInput struct {
	Pipeline string
	Stage    string
	Provider string
	Model    string
	Status   string

	PromptTokens     int
	CompletionTokens int
	DurationMs       int64
}

// LLMUsageRecorder 记录 LLM 使用量。
// 实现应为 best-effort，不应阻塞主流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}

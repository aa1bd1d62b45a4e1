// Package porttest 提供可编排脚本的后端调用替身，供测试使用
package porttest

import (
	"context"
	"sync"

	"prompt-blueprint-api/internal/domain/provider"
	workflowport "prompt-blueprint-api/internal/workflow/port"
)

// Step 一次调用的预设响应
type Step struct {
	Text  string
	Err   error
	Model string
	// Block 为 true 时阻塞直到 ctx 结束
	Block bool
}

// Call 记录的一次调用
type Call struct {
	Provider *provider.EffectiveConfig
	Request  *workflowport.InvokeRequest
}

// Invoker 按顺序返回预设响应；脚本耗尽后重复最后一步
type Invoker struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

func NewInvoker(steps ...Step) *Invoker {
	return &Invoker{steps: steps}
}

// Texts 以纯文本响应构造
func Texts(texts ...string) *Invoker {
	steps := make([]Step, len(texts))
	for i, t := range texts {
		steps[i] = Step{Text: t}
	}
	return NewInvoker(steps...)
}

func (f *Invoker) Invoke(ctx context.Context, cfg *provider.EffectiveConfig, req *workflowport.InvokeRequest) (*workflowport.InvokeResult, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, Call{Provider: cfg, Request: req})
	var step Step
	if len(f.steps) > 0 {
		if idx >= len(f.steps) {
			idx = len(f.steps) - 1
		}
		step = f.steps[idx]
	}
	f.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	model := step.Model
	if model == "" && cfg != nil {
		model = cfg.Model
	}
	return &workflowport.InvokeResult{
		Text:             step.Text,
		Model:            model,
		PromptTokens:     10,
		CompletionTokens: 20,
	}, nil
}

// CallCount 调用次数
func (f *Invoker) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls 返回调用记录副本
func (f *Invoker) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

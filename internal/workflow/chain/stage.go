// Package chain 将单个流水线阶段编排为 eino Chain：template -> invoke -> parse
package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"prompt-blueprint-api/internal/domain/provider"
	llmctx "prompt-blueprint-api/internal/domain/service"
	"prompt-blueprint-api/internal/workflow/contract"
	"prompt-blueprint-api/internal/workflow/parser"
	workflowport "prompt-blueprint-api/internal/workflow/port"
	workflowprompt "prompt-blueprint-api/internal/workflow/prompt"
)

// DecodeFunc 将原始输出解析为结构化结果
type DecodeFunc func(raw string) (any, parser.Report)

// StageInput 单次阶段执行的输入
type StageInput struct {
	Vars       map[string]any
	Provider   *provider.EffectiveConfig
	Attachment *workflowport.Attachment
	Schema     *contract.Schema
	Decode     DecodeFunc

	invokeErr error
}

// StageOutput 单次阶段执行的输出
type StageOutput struct {
	Raw    string
	Parsed any
	Report parser.Report
	Result *workflowport.InvokeResult
}

var defaultPromptRegistry = workflowprompt.NewRegistry()

// StageChain 某流水线某阶段的已编译 Chain
type StageChain struct {
	pipeline string
	stage    string
	promptID workflowprompt.PromptID
	invoker  workflowport.BackendInvoker
	prompts  *workflowprompt.Registry

	chainOnce sync.Once
	chain     compose.Runnable[*StageInput, *StageOutput]
	chainErr  error
}

func NewStageChain(pipeline, stage string, promptID workflowprompt.PromptID, invoker workflowport.BackendInvoker) *StageChain {
	return &StageChain{
		pipeline: pipeline,
		stage:    stage,
		promptID: promptID,
		invoker:  invoker,
		prompts:  defaultPromptRegistry,
	}
}

// Invoke 执行阶段。后端调用失败时返回调用层原始错误，不被编排层包装
func (c *StageChain) Invoke(ctx context.Context, in *StageInput) (*StageOutput, error) {
	if c == nil || c.invoker == nil {
		return nil, fmt.Errorf("backend invoker not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if in.Provider == nil {
		return nil, fmt.Errorf("provider config is nil")
	}

	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	out, err := chain.Invoke(ctx, in)
	if err != nil {
		if in.invokeErr != nil {
			return nil, in.invokeErr
		}
		return nil, err
	}
	return out, nil
}

// Name 返回节点名前缀
func (c *StageChain) Name() string {
	return c.pipeline + "." + c.stage
}

type stageState struct {
	In       *StageInput
	Messages []*schema.Message
	Result   *workflowport.InvokeResult
}

func (c *StageChain) getChain() (compose.Runnable[*StageInput, *StageOutput], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *StageChain) buildChain(ctx context.Context) (compose.Runnable[*StageInput, *StageOutput], error) {
	chain := compose.NewChain[*StageInput, *StageOutput]()
	prefix := c.Name()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *StageInput) (*stageState, error) {
			msgs, err := c.formatMessages(ctx, in.Vars)
			if err != nil {
				return nil, err
			}
			return &stageState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName(prefix+".template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *stageState) (*stageState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}

			ctx = llmctx.WithPipelineStage(ctx, c.pipeline, c.stage)
			ctx = llmctx.WithProvider(ctx, st.In.Provider.ID)
			res, err := c.invoker.Invoke(ctx, st.In.Provider, &workflowport.InvokeRequest{
				Stage:      c.stage,
				Messages:   st.Messages,
				Attachment: st.In.Attachment,
				Schema:     st.In.Schema,
			})
			if err != nil {
				st.In.invokeErr = err
				return nil, err
			}
			if res == nil {
				res = &workflowport.InvokeResult{}
			}
			st.Result = res
			return st, nil
		}),
		compose.WithNodeName(prefix+".invoke"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *stageState) (*StageOutput, error) {
			if st == nil || st.Result == nil {
				return nil, fmt.Errorf("state is nil")
			}
			out := &StageOutput{Raw: st.Result.Text, Parsed: st.Result.Text, Result: st.Result}
			if st.In.Decode != nil {
				out.Parsed, out.Report = st.In.Decode(st.Result.Text)
			}
			return out, nil
		}),
		compose.WithNodeName(prefix+".parse"),
	)

	return chain.Compile(ctx)
}

func (c *StageChain) formatMessages(ctx context.Context, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := c.prompts.ChatTemplate(c.promptID)
	if err != nil {
		return nil, err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", c.promptID, err)
	}
	for _, m := range msgs {
		m.Content = strings.TrimSpace(m.Content)
	}
	return msgs, nil
}

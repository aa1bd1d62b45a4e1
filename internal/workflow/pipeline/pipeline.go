// Package pipeline 按声明顺序执行阶段，串联上下文并在首个调用失败时终止
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"prompt-blueprint-api/internal/workflow/chain"
	"prompt-blueprint-api/internal/workflow/contract"
	"prompt-blueprint-api/internal/workflow/parser"
	workflowport "prompt-blueprint-api/internal/workflow/port"
	workflowprompt "prompt-blueprint-api/internal/workflow/prompt"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/logger"
	"prompt-blueprint-api/pkg/metrics"
	"prompt-blueprint-api/pkg/tracer"
)

// StageDefinition 阶段声明，执行期间只读
type StageDefinition struct {
	Name      string
	Prompt    workflowprompt.PromptID
	DependsOn []string
	// Schema 为空表示自由文本阶段
	Schema     *contract.Schema
	Vars       func(rc *RunContext) (map[string]any, error)
	Attachment func(rc *RunContext) *workflowport.Attachment
	// Decode 为空时保留原始文本
	Decode func(raw string, rc *RunContext) (any, parser.Report)
}

// Result 一次运行的结果
type Result struct {
	Output   any
	Context  *RunContext
	Degraded bool
	Err      error
}

// Pipeline 固定阶段列表的流水线
type Pipeline struct {
	name   string
	stages []StageDefinition
	chains []*chain.StageChain
}

// New 创建流水线。阶段名重复或依赖未声明于更早阶段时 panic
func New(name string, invoker workflowport.BackendInvoker, stages ...StageDefinition) *Pipeline {
	if len(stages) == 0 {
		panic(fmt.Sprintf("pipeline %s: no stages declared", name))
	}
	seen := make(map[string]struct{}, len(stages))
	p := &Pipeline{name: name}
	for _, s := range stages {
		if s.Name == "" {
			panic(fmt.Sprintf("pipeline %s: stage name is empty", name))
		}
		if _, dup := seen[s.Name]; dup {
			panic(fmt.Sprintf("pipeline %s: duplicate stage %q", name, s.Name))
		}
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				panic(fmt.Sprintf("pipeline %s: stage %q depends on %q which is not an earlier stage", name, s.Name, dep))
			}
		}
		seen[s.Name] = struct{}{}
		p.stages = append(p.stages, s)
		p.chains = append(p.chains, chain.NewStageChain(name, s.Name, s.Prompt, invoker))
	}
	return p
}

// Name 流水线名称
func (p *Pipeline) Name() string {
	return p.name
}

// Stages 返回阶段名列表
func (p *Pipeline) Stages() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name
	}
	return out
}

// Run 顺序执行全部阶段
func (p *Pipeline) Run(ctx context.Context, rc *RunContext) *Result {
	start := time.Now()
	ctx = logger.WithContext(ctx, logger.PipelineKey, p.name)
	ctx, span := tracer.Start(ctx, "pipeline."+p.name)
	defer span.End()

	res := &Result{Context: rc}
	finish := func(err error) *Result {
		status := "success"
		switch {
		case err != nil:
			status = "failed"
			res.Err = err
			rc.setState(StateFailed, "")
			tracer.RecordError(span, err)
		default:
			rc.setState(StateCompleted, "")
			if res.Degraded {
				status = "degraded"
			}
		}
		span.SetAttributes(attribute.String("pipeline.status", status))
		metrics.RecordPipelineRun(p.name, status, time.Since(start))
		return res
	}

	for i, def := range p.stages {
		if err := ctx.Err(); err != nil {
			logger.Warn(ctx, "pipeline aborted before stage", "stage", def.Name, "error", err.Error())
			return finish(cancellationError(err))
		}
		rc.setState(StateRunning, def.Name)

		record, err := p.runStage(ctx, i, rc)
		rc.append(record)
		if err != nil {
			metrics.PipelineStageTotal.WithLabelValues(p.name, def.Name, string(StageFailed)).Inc()
			if ctxErr := ctx.Err(); ctxErr != nil && !apperrors.IsAppError(err) {
				err = cancellationError(ctxErr)
			}
			logger.Error(ctx, "pipeline stage failed", err, "stage", def.Name)
			return finish(err)
		}

		metrics.PipelineStageTotal.WithLabelValues(p.name, def.Name, string(record.Status)).Inc()
		if record.Degraded {
			res.Degraded = true
			logger.Warn(ctx, "pipeline stage degraded to fallback output",
				"stage", def.Name,
				"issues", record.Issues,
			)
		}
		res.Output = record.Parsed
	}

	return finish(nil)
}

func (p *Pipeline) runStage(ctx context.Context, i int, rc *RunContext) (StageRecord, error) {
	def := p.stages[i]
	start := time.Now()
	record := StageRecord{Name: def.Name, Status: StageFailed}

	vars := map[string]any{}
	if def.Vars != nil {
		v, err := def.Vars(rc)
		if err != nil {
			record.Err = err
			return record, err
		}
		vars = v
	}

	in := &chain.StageInput{
		Vars:     vars,
		Provider: rc.Provider,
		Schema:   def.Schema,
	}
	if def.Attachment != nil {
		in.Attachment = def.Attachment(rc)
	}
	if def.Decode != nil {
		in.Decode = func(raw string) (any, parser.Report) { return def.Decode(raw, rc) }
	}

	out, err := p.chains[i].Invoke(ctx, in)
	record.Duration = time.Since(start)
	if err != nil {
		record.Err = err
		return record, err
	}

	record.Raw = out.Raw
	record.Parsed = out.Parsed
	record.Issues = out.Report.Issues
	record.Degraded = out.Report.WasFallback
	record.Status = StageCompleted
	if record.Degraded {
		record.Status = StageDegraded
	}
	if out.Result != nil {
		record.Model = out.Result.Model
		record.PromptTokens = out.Result.PromptTokens
		record.CompletionTokens = out.Result.CompletionTokens
	}
	return record, nil
}

func cancellationError(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.CodeTimeout, "pipeline deadline exceeded")
	}
	return apperrors.Wrap(err, apperrors.CodeCancelled, "pipeline cancelled")
}

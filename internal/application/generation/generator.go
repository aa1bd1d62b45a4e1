// Package generation 将自由文本或图片转换为提示词蓝图
package generation

import (
	"context"
	"strings"

	"prompt-blueprint-api/internal/domain/blueprint"
	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/workflow/contract"
	wfnode "prompt-blueprint-api/internal/workflow/node"
	"prompt-blueprint-api/internal/workflow/parser"
	"prompt-blueprint-api/internal/workflow/pipeline"
	workflowport "prompt-blueprint-api/internal/workflow/port"
	workflowprompt "prompt-blueprint-api/internal/workflow/prompt"
	apperrors "prompt-blueprint-api/pkg/errors"
)

const (
	PipelineText  = "generate_text"
	PipelineImage = "generate_image"

	StageDraft    = "draft"
	StageEdit     = "edit"
	StageDescribe = "describe"
)

const (
	SafeDirective = "Ensure the content is safe for work and appropriate for all audiences."
	NSFWDirective = "Mature themes are allowed when the request explicitly asks for them."
)

const (
	inputPrompt    = "prompt"
	inputAllowNSFW = "allow_nsfw"
	inputFilename  = "filename"
	inputImage     = "image"

	maxDraftRunes = 8000
)

// TextRequest 文本生成请求
type TextRequest struct {
	Prompt    string
	AllowNSFW bool
}

// ImageRequest 图片生成请求
type ImageRequest struct {
	Image     []byte
	Filename  string
	AllowNSFW bool
}

// Outcome 生成结果
type Outcome struct {
	Blueprint        *blueprint.Blueprint
	Degraded         bool
	Model            string
	PromptTokens     int
	CompletionTokens int
	Stages           []pipeline.StageRecord
}

// Generator 持有文本与图片两条流水线
type Generator struct {
	text         *pipeline.Pipeline
	image        *pipeline.Pipeline
	overrideKeys []string
}

// NewGenerator 创建生成器；overrideKeys 为蓝图中必须存在的 provider_overrides 键
func NewGenerator(invoker workflowport.BackendInvoker, overrideKeys ...string) *Generator {
	g := &Generator{overrideKeys: append([]string(nil), overrideKeys...)}

	g.text = pipeline.New(PipelineText, invoker,
		pipeline.StageDefinition{
			Name:   StageDraft,
			Prompt: workflowprompt.PromptDraft,
			Vars: func(rc *pipeline.RunContext) (map[string]any, error) {
				return map[string]any{
					"prompt":           rc.InputString(inputPrompt),
					"safety_directive": safetyDirective(allowNSFW(rc)),
				}, nil
			},
		},
		pipeline.StageDefinition{
			Name:      StageEdit,
			Prompt:    workflowprompt.PromptEdit,
			DependsOn: []string{StageDraft},
			Schema:    contract.Blueprint,
			Vars:      g.blueprintVars(func(rc *pipeline.RunContext) map[string]any {
				return map[string]any{
					"prompt": rc.InputString(inputPrompt),
					"draft":  wfnode.TruncateByRunes(strings.TrimSpace(rc.Raw(StageDraft)), maxDraftRunes),
				}
			}),
			Decode: g.decodeBlueprint(func(_ string, rc *pipeline.RunContext) string {
				return rc.InputString(inputPrompt)
			}),
		},
	)

	g.image = pipeline.New(PipelineImage, invoker,
		pipeline.StageDefinition{
			Name:   StageDescribe,
			Prompt: workflowprompt.PromptDescribe,
			Schema: contract.Blueprint,
			Vars: g.blueprintVars(func(rc *pipeline.RunContext) map[string]any {
				name := rc.InputString(inputFilename)
				if name == "" {
					name = "none"
				}
				return map[string]any{"filename": name}
			}),
			Attachment: func(rc *pipeline.RunContext) *workflowport.Attachment {
				a, _ := rc.Inputs[inputImage].(*workflowport.Attachment)
				return a
			},
			Decode: g.decodeBlueprint(describeFallbackText),
		},
	)

	return g
}

// FromText draft -> edit
func (g *Generator) FromText(ctx context.Context, cfg *provider.EffectiveConfig, req TextRequest) (*Outcome, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "Prompt must not be empty.")
	}
	rc := pipeline.NewRunContext(cfg, map[string]any{
		inputPrompt:    prompt,
		inputAllowNSFW: req.AllowNSFW,
	})
	return g.run(ctx, g.text, rc)
}

// FromImage describe；要求后端支持视觉
func (g *Generator) FromImage(ctx context.Context, cfg *provider.EffectiveConfig, req ImageRequest) (*Outcome, error) {
	if cfg != nil && !cfg.Vision {
		return nil, apperrors.Newf(apperrors.CodeCapabilityUnsupported,
			"Provider '%s' does not support vision-enabled workflows.", cfg.ID)
	}
	mimeType, err := DetectImageType(req.Filename, req.Image)
	if err != nil {
		return nil, err
	}
	rc := pipeline.NewRunContext(cfg, map[string]any{
		inputFilename:  strings.TrimSpace(req.Filename),
		inputAllowNSFW: req.AllowNSFW,
		inputImage: &workflowport.Attachment{
			Data:     req.Image,
			MIMEType: mimeType,
			Filename: strings.TrimSpace(req.Filename),
		},
	})
	return g.run(ctx, g.image, rc)
}

// OverrideKeys 返回声明的 provider_overrides 键
func (g *Generator) OverrideKeys() []string {
	return append([]string(nil), g.overrideKeys...)
}

func (g *Generator) run(ctx context.Context, p *pipeline.Pipeline, rc *pipeline.RunContext) (*Outcome, error) {
	res := p.Run(ctx, rc)
	if res.Err != nil {
		return nil, res.Err
	}
	bp, ok := res.Output.(*blueprint.Blueprint)
	if !ok || bp == nil {
		return nil, apperrors.Newf(apperrors.CodeInternalError, "pipeline %s produced no blueprint", p.Name())
	}

	out := &Outcome{
		Blueprint: bp,
		Degraded:  res.Degraded,
		Model:     rc.Model(),
		Stages:    rc.Records(),
	}
	out.PromptTokens, out.CompletionTokens = rc.Usage()
	return out, nil
}

// blueprintVars 合并结构化阶段共用的变量
func (g *Generator) blueprintVars(extra func(rc *pipeline.RunContext) map[string]any) func(rc *pipeline.RunContext) (map[string]any, error) {
	return func(rc *pipeline.RunContext) (map[string]any, error) {
		allowed := allowNSFW(rc)
		vars := map[string]any{
			"safety_directive": safetyDirective(allowed),
			"allow_nsfw":       allowed,
			"override_keys":    strings.Join(g.overrideKeys, ", "),
			"schema":           contract.Blueprint.Hint(),
		}
		for k, v := range extra(rc) {
			vars[k] = v
		}
		return vars, nil
	}
}

// decodeBlueprint 解析蓝图；失败时用 fallbackText 构造兜底蓝图
func (g *Generator) decodeBlueprint(fallbackText func(raw string, rc *pipeline.RunContext) string) func(string, *pipeline.RunContext) (any, parser.Report) {
	return func(raw string, rc *pipeline.RunContext) (any, parser.Report) {
		allowed := allowNSFW(rc)
		outcome := parser.Parse(raw, contract.Blueprint, func() blueprint.Blueprint {
			return *FallbackBlueprint(fallbackText(raw, rc), allowed, g.overrideKeys...)
		})

		bp := outcome.Value
		bp.Normalize(g.overrideKeys...)
		if !allowed {
			bp.Safety.AllowNSFW = false
		}
		return &bp, outcome.Report()
	}
}

// FallbackBlueprint 兜底蓝图：原文同时写入 environment 与 prompt.primary
func FallbackBlueprint(text string, allowNSFW bool, overrideKeys ...string) *blueprint.Blueprint {
	b := blueprint.New(overrideKeys...)
	b.Environment = text
	b.Prompt.Primary = text
	b.Safety.AllowNSFW = allowNSFW
	return b
}

// describeFallbackText 图片阶段没有原始文本，优先使用模型返回的描述
func describeFallbackText(raw string, rc *pipeline.RunContext) string {
	if text := strings.TrimSpace(raw); text != "" {
		return wfnode.TruncateByRunes(text, 2000)
	}
	if name := rc.InputString(inputFilename); name != "" {
		return "Reference image: " + name
	}
	return "Reference image"
}

func allowNSFW(rc *pipeline.RunContext) bool {
	v, _ := rc.Inputs[inputAllowNSFW].(bool)
	return v
}

func safetyDirective(allowed bool) string {
	if allowed {
		return NSFWDirective
	}
	return SafeDirective
}

// Package conversion 将提示词蓝图转换为特定生成目标的载荷
package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"prompt-blueprint-api/internal/domain/blueprint"
	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/workflow/contract"
	"prompt-blueprint-api/internal/workflow/parser"
	"prompt-blueprint-api/internal/workflow/pipeline"
	workflowport "prompt-blueprint-api/internal/workflow/port"
	workflowprompt "prompt-blueprint-api/internal/workflow/prompt"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/metrics"
)

const (
	PipelineConvert = "convert"

	StageSpecialize = "specialize"
	StageReview     = "review"
)

const (
	inputBlueprint     = "blueprint"
	inputBlueprintJSON = "blueprint_json"
	inputTarget        = "target"

	consistencySchemaLabel = "payload_consistency"
)

// Outcome 转换结果
type Outcome struct {
	Payload          *blueprint.ProviderPayload
	Degraded         bool
	Model            string
	PromptTokens     int
	CompletionTokens int
	Stages           []pipeline.StageRecord
}

// Converter specialize -> review
type Converter struct {
	pipeline *pipeline.Pipeline
}

func NewConverter(invoker workflowport.BackendInvoker) *Converter {
	c := &Converter{}
	c.pipeline = pipeline.New(PipelineConvert, invoker,
		pipeline.StageDefinition{
			Name:   StageSpecialize,
			Prompt: workflowprompt.PromptSpecialize,
			Schema: contract.Payload,
			Vars: func(rc *pipeline.RunContext) (map[string]any, error) {
				g := targetOf(rc)
				bp := blueprintOf(rc)
				overrides := "{}"
				if o := bp.ProviderOverrides[g.OverrideKey]; len(o) > 0 {
					b, err := json.Marshal(o)
					if err != nil {
						return nil, err
					}
					overrides = string(b)
				}
				return map[string]any{
					"target_id":      g.ID,
					"target_summary": g.Summary,
					"guidance":       g.Describe(),
					"overrides":      overrides,
					"blueprint":      rc.InputString(inputBlueprintJSON),
					"schema":         contract.Payload.Hint(),
				}, nil
			},
			Decode: func(raw string, rc *pipeline.RunContext) (any, parser.Report) {
				return decodePayload(raw, rc, false)
			},
		},
		pipeline.StageDefinition{
			Name:      StageReview,
			Prompt:    workflowprompt.PromptReview,
			DependsOn: []string{StageSpecialize},
			Schema:    contract.Payload,
			Vars: func(rc *pipeline.RunContext) (map[string]any, error) {
				draft, err := json.Marshal(rc.Output(StageSpecialize))
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"target_id":     targetOf(rc).ID,
					"guidance":      targetOf(rc).Describe(),
					"draft_payload": string(draft),
					"blueprint":     rc.InputString(inputBlueprintJSON),
					"schema":        contract.Payload.Hint(),
				}, nil
			},
			Decode: func(raw string, rc *pipeline.RunContext) (any, parser.Report) {
				return decodePayload(raw, rc, true)
			},
		},
	)
	return c
}

// Convert 转换蓝图。蓝图不满足 Schema 时在调用后端之前返回 InvalidParam
func (c *Converter) Convert(ctx context.Context, cfg *provider.EffectiveConfig, bp *blueprint.Blueprint, target *Guidance) (*Outcome, error) {
	if target == nil {
		return nil, apperrors.New(apperrors.CodeUnsupportedTarget, "target is required")
	}
	raw, err := ValidateBlueprint(bp)
	if err != nil {
		return nil, err
	}

	rc := pipeline.NewRunContext(cfg, map[string]any{
		inputBlueprint:     bp,
		inputBlueprintJSON: raw,
		inputTarget:        target,
	})
	res := c.pipeline.Run(ctx, rc)
	if res.Err != nil {
		return nil, res.Err
	}
	payload, ok := res.Output.(*blueprint.ProviderPayload)
	if !ok || payload == nil {
		return nil, apperrors.New(apperrors.CodeInternalError, "conversion produced no payload")
	}

	out := &Outcome{
		Payload:  payload,
		Degraded: res.Degraded,
		Model:    rc.Model(),
		Stages:   rc.Records(),
	}
	out.PromptTokens, out.CompletionTokens = rc.Usage()
	return out, nil
}

// ValidateBlueprint 按蓝图 Schema 校验并返回其 JSON 文本
func ValidateBlueprint(bp *blueprint.Blueprint) (string, error) {
	if bp == nil {
		return "", apperrors.New(apperrors.CodeInvalidParam, "Blueprint is required.")
	}
	raw, err := json.Marshal(bp)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidParam, "Blueprint cannot be serialized.")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidParam, "Blueprint cannot be serialized.")
	}
	if issues := contract.Blueprint.Validate(doc); len(issues) > 0 {
		return "", invalidBlueprint(issues)
	}
	return string(raw), nil
}

// ParseBlueprint 从外部 JSON 解析蓝图；缺失分区或未知字段均视为无效
func ParseBlueprint(raw []byte) (*blueprint.Blueprint, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "Blueprint is not a JSON object.")
	}
	if issues := contract.Blueprint.Validate(doc); len(issues) > 0 {
		return nil, invalidBlueprint(issues)
	}

	var bp blueprint.Blueprint
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "Blueprint does not match the expected structure.")
	}
	bp.Normalize(OverrideKeys()...)
	return &bp, nil
}

func invalidBlueprint(issues []string) error {
	return apperrors.New(apperrors.CodeInvalidParam, "Blueprint failed validation.").
		WithDetail(strings.Join(issues, "; "))
}

func decodePayload(raw string, rc *pipeline.RunContext, checkConsistency bool) (any, parser.Report) {
	g := targetOf(rc)
	bp := blueprintOf(rc)
	fallback := func() blueprint.ProviderPayload { return *FallbackPayload(bp, g) }

	outcome := parser.Parse(raw, contract.Payload, fallback)
	report := outcome.Report()
	p := outcome.Value

	if !outcome.WasFallback && checkConsistency {
		if issues := CheckConsistency(p.Payload, p.RecommendedSettings); len(issues) > 0 {
			metrics.ParserFallbackTotal.WithLabelValues(consistencySchemaLabel).Inc()
			p = fallback()
			report = parser.Report{WasFallback: true, Issues: issues}
		}
	}

	finalizePayload(&p, g)
	return &p, report
}

// finalizePayload 补齐目标标识与空集合，使输出与模型措辞无关
func finalizePayload(p *blueprint.ProviderPayload, g *Guidance) {
	p.Normalize()
	p.TargetModel = g.ID
	if strings.TrimSpace(p.ModelIdentifier) == "" {
		p.ModelIdentifier = g.ModelIdentifier
	}
	if _, ok := p.Payload["prompt"]; !ok {
		p.Payload["prompt"] = p.Prompt
	}
}

func targetOf(rc *pipeline.RunContext) *Guidance {
	g, _ := rc.Inputs[inputTarget].(*Guidance)
	return g
}

func blueprintOf(rc *pipeline.RunContext) *blueprint.Blueprint {
	bp, _ := rc.Inputs[inputBlueprint].(*blueprint.Blueprint)
	return bp
}

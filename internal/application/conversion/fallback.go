package conversion

import (
	"math"
	"sort"
	"strings"

	"prompt-blueprint-api/internal/domain/blueprint"
)

// FallbackPayload 由蓝图与目标默认值确定性地构造载荷；
// recommended_settings 取自同一组值，因此不会与 payload 冲突
func FallbackPayload(bp *blueprint.Blueprint, g *Guidance) *blueprint.ProviderPayload {
	p := bp.Params

	payload := map[string]any{
		"prompt":      fallbackPrompt(bp),
		"width":       intParam(p.Width, g.Width),
		"height":      intParam(p.Height, g.Height),
		"steps":       intParam(p.Steps, g.Steps),
		g.GuidanceKey: floatParam(p.Guidance, g.Guidance),
		"sampler":     firstNonEmpty(p.Sampler, g.Sampler),
		"scheduler":   g.Scheduler,
	}
	if neg := strings.TrimSpace(bp.Prompt.Negative); neg != "" {
		payload["negative_prompt"] = neg
	}
	if p.Seed != nil {
		payload["seed"] = *p.Seed
	}
	switch g.OverrideKey {
	case "wan":
		if shot := strings.TrimSpace(bp.Composition.Shot); shot != "" {
			payload["shot"] = shot
		}
	case "sdxl":
		payload["refiner"] = true
	}
	g.applyOverrides(payload, bp.ProviderOverrides[g.OverrideKey])

	recommended := map[string]any{}
	for _, aliases := range semanticAliases {
		for _, key := range aliases {
			if v, ok := payload[key]; ok {
				recommended[key] = v
				break
			}
		}
	}

	out := &blueprint.ProviderPayload{
		TargetModel:         g.ID,
		ModelIdentifier:     g.ModelIdentifier,
		Prompt:              payload["prompt"].(string),
		Payload:             payload,
		RecommendedSettings: recommended,
		ControlAssets:       controlAssets(bp.Controls),
		Notes: []string{
			"Built from the blueprint with " + g.Label + " defaults because the model output could not be validated.",
		},
	}
	if neg, ok := payload["negative_prompt"].(string); ok {
		out.NegativePrompt = neg
	}
	out.Normalize()
	return out
}

// applyOverrides 写入蓝图中的目标覆盖项。
// 多个别名落到同一字段时，与字段同名的键优先，其余按别名表顺序。
func (g *Guidance) applyOverrides(payload map[string]any, overrides map[string]any) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rank := make(map[string]int, len(keys))
	for _, k := range keys {
		v := overrides[k]
		if v == nil {
			continue
		}
		if k == "prompt" {
			if s, ok := v.(string); !ok || strings.TrimSpace(s) == "" {
				continue
			}
		}
		key, r := g.canonicalKey(k)
		if prev, ok := rank[key]; ok && prev <= r {
			continue
		}
		rank[key] = r
		payload[key] = v
	}
}

// canonicalKey 将语义别名统一为该目标使用的字段名，并返回别名的优先级（0 最高）
func (g *Guidance) canonicalKey(k string) (string, int) {
	for name, aliases := range semanticAliases {
		for i, alias := range aliases {
			if alias != k {
				continue
			}
			key := aliases[0]
			if name == "guidance" {
				key = g.GuidanceKey
			}
			if k == key {
				return key, 0
			}
			return key, i + 1
		}
	}
	return k, 0
}

func fallbackPrompt(bp *blueprint.Blueprint) string {
	if s := strings.TrimSpace(bp.Prompt.Primary); s != "" {
		return s
	}
	var parts []string
	for _, s := range []string{bp.Intent, bp.Environment, bp.Lighting} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "image"
	}
	return strings.Join(parts, ", ")
}

func intParam(v *int, r Range) int {
	if v == nil {
		return int(r.Default)
	}
	return int(r.clamp(float64(*v)))
}

func floatParam(v *float64, r Range) float64 {
	if v == nil {
		return r.Default
	}
	return math.Round(r.clamp(*v)*100) / 100
}

func controlAssets(c blueprint.Controls) map[string]any {
	assets := map[string]any{}
	if len(c.ImagePrompts) > 0 {
		assets["image_prompts"] = c.ImagePrompts
	}
	if len(c.ControlNets) > 0 {
		assets["control_nets"] = c.ControlNets
	}
	if len(c.LoRAs) > 0 {
		assets["loras"] = c.LoRAs
	}
	return assets
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

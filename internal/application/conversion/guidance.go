package conversion

import (
	"fmt"
	"sort"
	"strings"

	apperrors "prompt-blueprint-api/pkg/errors"
)

// Range 推荐取值范围
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

func (r Range) clamp(v float64) float64 {
	switch {
	case v < r.Min:
		return r.Min
	case v > r.Max:
		return r.Max
	default:
		return v
	}
}

// Guidance 单个生成目标的静态指引
type Guidance struct {
	ID              string   `json:"id"`
	OverrideKey     string   `json:"override_key"`
	Label           string   `json:"label"`
	Summary         string   `json:"summary"`
	ModelIdentifier string   `json:"model_identifier"`
	PayloadFields   []string `json:"payload_fields"`
	Steps           Range    `json:"steps"`
	Guidance        Range    `json:"guidance"`
	Width           Range    `json:"width"`
	Height          Range    `json:"height"`
	Sampler         string   `json:"sampler"`
	Scheduler       string   `json:"scheduler"`
	// GuidanceKey 载荷中引导系数字段名
	GuidanceKey string `json:"guidance_key"`
	Text        string `json:"text"`
}

var guidanceTable = []Guidance{
	{
		ID:              "flux.1",
		OverrideKey:     "flux",
		Label:           "Flux.1",
		Summary:         "Cinematic diffusion tuned for Runway / Flux deployments",
		ModelIdentifier: "black-forest-labs/FLUX.1-dev",
		PayloadFields:   []string{"prompt", "negative_prompt", "width", "height", "steps", "guidance", "sampler", "scheduler", "seed"},
		Steps:           Range{Min: 20, Max: 50, Default: 28},
		Guidance:        Range{Min: 2, Max: 5, Default: 3.5},
		Width:           Range{Min: 512, Max: 2048, Default: 1024},
		Height:          Range{Min: 512, Max: 2048, Default: 1024},
		Sampler:         "euler",
		Scheduler:       "simple",
		GuidanceKey:     "guidance",
		Text: "Flux responds best to natural-language prompts written as full sentences. " +
			"Lead with the subject, then describe camera, lens and lighting in photographic terms. " +
			"Negative prompts have little effect; keep them short. Keep guidance low (2 to 5) for realism " +
			"and use 20 to 50 steps. Dimensions must be multiples of 16.",
	},
	{
		ID:              "wan-2.2",
		OverrideKey:     "wan",
		Label:           "WAN 2.2",
		Summary:         "Anime diffusion focused on clean line art, flat shading, and camera-driven framing",
		ModelIdentifier: "Wan-AI/Wan2.2-T2I",
		PayloadFields:   []string{"prompt", "negative_prompt", "width", "height", "steps", "guidance", "sampler", "scheduler", "seed", "shot"},
		Steps:           Range{Min: 20, Max: 40, Default: 30},
		Guidance:        Range{Min: 4, Max: 8, Default: 5},
		Width:           Range{Min: 512, Max: 1536, Default: 832},
		Height:          Range{Min: 512, Max: 1536, Default: 1216},
		Sampler:         "unipc",
		Scheduler:       "flow_shift",
		GuidanceKey:     "guidance",
		Text: "WAN favors anime and illustration styles with clean line art and flat shading. " +
			"Describe the camera move or framing explicitly (close-up, wide shot, low angle) and keep the shot field. " +
			"Use a negative prompt that rules out blur, extra limbs and watermarks. " +
			"Recommended guidance is 4 to 8 with 20 to 40 steps; portrait orientation works best.",
	},
	{
		ID:              "sdxl",
		OverrideKey:     "sdxl",
		Label:           "SDXL",
		Summary:         "General-purpose SDXL base + refiner workflow",
		ModelIdentifier: "stabilityai/stable-diffusion-xl-base-1.0",
		PayloadFields:   []string{"prompt", "negative_prompt", "width", "height", "steps", "cfg_scale", "sampler", "scheduler", "seed", "refiner"},
		Steps:           Range{Min: 25, Max: 60, Default: 30},
		Guidance:        Range{Min: 5, Max: 9, Default: 7},
		Width:           Range{Min: 768, Max: 1536, Default: 1024},
		Height:          Range{Min: 768, Max: 1536, Default: 1024},
		Sampler:         "dpmpp_2m",
		Scheduler:       "karras",
		GuidanceKey:     "cfg_scale",
		Text: "SDXL works with comma-separated keyword prompts; put the most important concepts first and use " +
			"weighting like (keyword:1.2) sparingly. A detailed negative prompt matters. " +
			"Use cfg_scale 5 to 9 and 25 to 60 steps at roughly one megapixel (1024x1024 or equivalent). " +
			"Set refiner to true for the base + refiner workflow.",
	},
}

var guidanceByID = func() map[string]*Guidance {
	m := make(map[string]*Guidance, len(guidanceTable))
	for i := range guidanceTable {
		m[guidanceTable[i].ID] = &guidanceTable[i]
	}
	return m
}()

// Targets 按 ID 排序返回全部目标
func Targets() []Guidance {
	out := make([]Guidance, len(guidanceTable))
	copy(out, guidanceTable)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TargetIDs 已排序的目标 ID
func TargetIDs() []string {
	ids := make([]string, 0, len(guidanceTable))
	for _, g := range guidanceTable {
		ids = append(ids, g.ID)
	}
	sort.Strings(ids)
	return ids
}

// OverrideKeys 蓝图 provider_overrides 必须包含的键，按表顺序
func OverrideKeys() []string {
	keys := make([]string, 0, len(guidanceTable))
	for _, g := range guidanceTable {
		keys = append(keys, g.OverrideKey)
	}
	return keys
}

// LookupTarget 大小写不敏感查找
func LookupTarget(id string) (*Guidance, error) {
	g, ok := guidanceByID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedTarget,
			"Unsupported target '%s'. Supported targets: %s.", id, strings.Join(TargetIDs(), ", "))
	}
	cp := *g
	return &cp, nil
}

// Describe 渲染进提示词的指引文本
func (g *Guidance) Describe() string {
	var b strings.Builder
	b.WriteString(g.Text)
	fmt.Fprintf(&b, "\nExpected payload fields: %s.", strings.Join(g.PayloadFields, ", "))
	fmt.Fprintf(&b, "\nRecommended steps: %g-%g (default %g).", g.Steps.Min, g.Steps.Max, g.Steps.Default)
	fmt.Fprintf(&b, "\nRecommended %s: %g-%g (default %g).", g.GuidanceKey, g.Guidance.Min, g.Guidance.Max, g.Guidance.Default)
	fmt.Fprintf(&b, "\nWidth: %g-%g (default %g). Height: %g-%g (default %g).",
		g.Width.Min, g.Width.Max, g.Width.Default, g.Height.Min, g.Height.Max, g.Height.Default)
	fmt.Fprintf(&b, "\nDefault sampler: %s. Default scheduler: %s.", g.Sampler, g.Scheduler)
	fmt.Fprintf(&b, "\nUse model_identifier %q unless the overrides name another checkpoint.", g.ModelIdentifier)
	return b.String()
}

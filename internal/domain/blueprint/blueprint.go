// Package blueprint 定义提示词蓝图与目标载荷的数据结构
//
// 所有顶层分区字段均不使用 omitempty，序列化后每个分区都必然出现。
package blueprint

// Version 当前蓝图版本
const Version = "1.0"

// Blueprint 结构化提示词蓝图
type Blueprint struct {
	Version           string                    `json:"version"`
	Intent            string                    `json:"intent"`
	Prompt            PromptTexts               `json:"prompt"`
	Subjects          []Subject                 `json:"subjects"`
	Environment       string                    `json:"environment"`
	Composition       Composition               `json:"composition"`
	Lighting          string                    `json:"lighting"`
	Style             Style                     `json:"style"`
	Color             Color                     `json:"color"`
	Controls          Controls                  `json:"controls"`
	Params            Params                    `json:"params"`
	Post              Post                      `json:"post"`
	Safety            Safety                    `json:"safety"`
	ProviderOverrides map[string]map[string]any `json:"provider_overrides"`
	Notes             string                    `json:"notes"`
}

// PromptTexts 正向与负向提示词
type PromptTexts struct {
	Primary  string `json:"primary"`
	Negative string `json:"negative"`
}

// Subject 画面主体
type Subject struct {
	Role           string `json:"role"`
	Age            string `json:"age"`
	BodyAttributes string `json:"body_attributes"`
	Wardrobe       string `json:"wardrobe"`
	Pose           string `json:"pose"`
	Mood           string `json:"mood"`
}

// Camera 机位参数
type Camera struct {
	Angle        string `json:"angle"`
	Lens         string `json:"lens"`
	Framing      string `json:"framing"`
	DepthOfField string `json:"depth_of_field"`
}

// Composition 构图
type Composition struct {
	Camera      Camera `json:"camera"`
	Shot        string `json:"shot"`
	AspectRatio string `json:"aspect_ratio"`
}

// Style 风格
type Style struct {
	Keywords      []string `json:"keywords"`
	Medium        string   `json:"medium"`
	AestheticBias []string `json:"aesthetic_bias"`
}

// Color 色彩
type Color struct {
	Palette        string   `json:"palette"`
	DominantColors []string `json:"dominant_colors"`
}

// ImagePrompt 参考图
type ImagePrompt struct {
	URI    string   `json:"uri"`
	Weight *float64 `json:"weight"`
	Type   string   `json:"type"`
}

// ControlNet ControlNet 引用
type ControlNet struct {
	Type     string   `json:"type"`
	ImageURI string   `json:"image_uri"`
	Weight   *float64 `json:"weight"`
	Start    *float64 `json:"start"`
	End      *float64 `json:"end"`
}

// LoRA LoRA 引用
type LoRA struct {
	Name   string   `json:"name"`
	Weight *float64 `json:"weight"`
}

// Controls 控制输入
type Controls struct {
	ImagePrompts []ImagePrompt `json:"image_prompts"`
	ControlNets  []ControlNet  `json:"control_nets"`
	LoRAs        []LoRA        `json:"loras"`
}

// Params 生成参数，nil 表示未指定
type Params struct {
	Width    *int     `json:"width"`
	Height   *int     `json:"height"`
	Steps    *int     `json:"steps"`
	Guidance *float64 `json:"guidance"`
	Sampler  string   `json:"sampler"`
	Seed     *int64   `json:"seed"`
	Images   *int     `json:"images"`
}

// Upscale 放大设置
type Upscale struct {
	Mode     string   `json:"mode"`
	Strength *float64 `json:"strength"`
}

// Post 后处理
type Post struct {
	Upscale     Upscale `json:"upscale"`
	FaceRestore *bool   `json:"face_restore"`
}

// Safety 安全设置
type Safety struct {
	AllowNSFW bool `json:"allow_nsfw"`
}

// ProviderPayload 面向具体生成目标的载荷
type ProviderPayload struct {
	TargetModel         string         `json:"target_model"`
	ModelIdentifier     string         `json:"model_identifier"`
	Prompt              string         `json:"prompt"`
	NegativePrompt      string         `json:"negative_prompt"`
	Payload             map[string]any `json:"payload"`
	RecommendedSettings map[string]any `json:"recommended_settings"`
	ControlAssets       map[string]any `json:"control_assets"`
	Notes               []string       `json:"notes"`
}

// New 返回所有分区均已初始化的空蓝图
func New(overrideKeys ...string) *Blueprint {
	b := &Blueprint{Version: Version}
	b.Normalize(overrideKeys...)
	return b
}

// Normalize 补齐版本号、空集合与声明的 provider_overrides 键
func (b *Blueprint) Normalize(overrideKeys ...string) {
	if b.Version == "" {
		b.Version = Version
	}
	if b.Subjects == nil {
		b.Subjects = []Subject{}
	}
	if b.Style.Keywords == nil {
		b.Style.Keywords = []string{}
	}
	if b.Style.AestheticBias == nil {
		b.Style.AestheticBias = []string{}
	}
	if b.Color.DominantColors == nil {
		b.Color.DominantColors = []string{}
	}
	if b.Controls.ImagePrompts == nil {
		b.Controls.ImagePrompts = []ImagePrompt{}
	}
	if b.Controls.ControlNets == nil {
		b.Controls.ControlNets = []ControlNet{}
	}
	if b.Controls.LoRAs == nil {
		b.Controls.LoRAs = []LoRA{}
	}
	if b.ProviderOverrides == nil {
		b.ProviderOverrides = make(map[string]map[string]any, len(overrideKeys))
	}
	for _, k := range overrideKeys {
		if b.ProviderOverrides[k] == nil {
			b.ProviderOverrides[k] = map[string]any{}
		}
	}
}

// Normalize 补齐载荷中的空集合
func (p *ProviderPayload) Normalize() {
	if p.Payload == nil {
		p.Payload = map[string]any{}
	}
	if p.RecommendedSettings == nil {
		p.RecommendedSettings = map[string]any{}
	}
	if p.ControlAssets == nil {
		p.ControlAssets = map[string]any{}
	}
	if p.Notes == nil {
		p.Notes = []string{}
	}
}

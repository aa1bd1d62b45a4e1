// Package provider 定义语言模型后端注册表与凭证解析
package provider

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	apperrors "prompt-blueprint-api/pkg/errors"
)

// Dialect 后端协议方言
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
	DialectGemini    Dialect = "gemini"
)

// CredentialSource 凭证来源
type CredentialSource string

const (
	CredentialOverride    CredentialSource = "override"
	CredentialEnvironment CredentialSource = "environment"
	CredentialNone        CredentialSource = "none"
)

// Config 后端静态描述，注册后不可变
type Config struct {
	ID                 string
	DefaultModel       string
	CredentialEnv      string
	Vision             bool
	BaseURL            string
	BaseURLEnv         string
	ModelEnv           string
	RequiresCredential bool
	Dialect            Dialect
}

// Tuning 可由配置覆盖的调用参数
type Tuning struct {
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// EffectiveConfig 一次调用的有效后端配置
type EffectiveConfig struct {
	Config
	Model            string
	BaseURL          string
	Credential       string `json:"-"`
	CredentialSource CredentialSource
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
}

// LookupFunc 环境变量查询函数
type LookupFunc func(key string) (string, bool)

// ResolveOptions 解析选项
type ResolveOptions struct {
	RequireVision bool
}

var builtin = []Config{
	{
		ID:                 "openai",
		DefaultModel:       "gpt-4.1-mini",
		CredentialEnv:      "OPENAI_API_KEY",
		Vision:             true,
		RequiresCredential: true,
		Dialect:            DialectOpenAI,
	},
	{
		ID:                 "anthropic",
		DefaultModel:       "claude-3-5-sonnet-latest",
		CredentialEnv:      "ANTHROPIC_API_KEY",
		RequiresCredential: true,
		Dialect:            DialectAnthropic,
	},
	{
		ID:                 "google",
		DefaultModel:       "gemini-2.0-flash",
		CredentialEnv:      "GOOGLE_API_KEY",
		Vision:             true,
		RequiresCredential: true,
		Dialect:            DialectGemini,
	},
	{
		ID:            "lmstudio",
		DefaultModel:  "lmstudio",
		CredentialEnv: "LMSTUDIO_API_KEY",
		BaseURL:       "http://localhost:1234/v1",
		BaseURLEnv:    "LMSTUDIO_BASE_URL",
		ModelEnv:      "LMSTUDIO_MODEL",
		Dialect:       DialectOpenAI,
	},
}

// Registry 只读后端注册表
type Registry struct {
	providers map[string]Config
	ids       []string
	tuning    map[string]Tuning
	defaults  Tuning
	lookup    LookupFunc
}

// Option 注册表构造选项
type Option func(*Registry)

// WithLookup 替换环境变量查询函数
func WithLookup(fn LookupFunc) Option {
	return func(r *Registry) {
		if fn != nil {
			r.lookup = fn
		}
	}
}

// WithDefaults 设置全局调用参数，零值字段保留内置默认
func WithDefaults(t Tuning) Option {
	return func(r *Registry) {
		if t.MaxTokens > 0 {
			r.defaults.MaxTokens = t.MaxTokens
		}
		if t.Temperature > 0 {
			r.defaults.Temperature = t.Temperature
		}
		if t.Timeout > 0 {
			r.defaults.Timeout = t.Timeout
		}
	}
}

// WithTuning 设置单个后端的参数覆盖
func WithTuning(id string, t Tuning) Option {
	return func(r *Registry) { r.tuning[normalizeID(id)] = t }
}

// NewRegistry 创建包含内置后端的注册表
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		providers: make(map[string]Config, len(builtin)),
		tuning:    make(map[string]Tuning),
		lookup:    os.LookupEnv,
		defaults:  Tuning{MaxTokens: 2048, Temperature: 0.7, Timeout: 60 * time.Second},
	}
	for _, c := range builtin {
		r.providers[c.ID] = c
		r.ids = append(r.ids, c.ID)
	}
	sort.Strings(r.ids)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supported 返回按字典序排列的后端 ID
func (r *Registry) Supported() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// List 返回全部后端描述
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.providers[id])
	}
	return out
}

// Lookup 查找后端（大小写不敏感）
func (r *Registry) Lookup(id string) (*Config, error) {
	c, ok := r.providers[normalizeID(id)]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedProvider,
			"Unsupported provider '%s'. Supported providers: %s.", id, strings.Join(r.ids, ", "))
	}
	return &c, nil
}

// Resolve 解析有效配置
// 顺序：查找 -> 视觉能力校验 -> 凭证 -> 模型与地址
func (r *Registry) Resolve(id string, overrides map[string]string, opts ResolveOptions) (*EffectiveConfig, error) {
	c, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}

	if opts.RequireVision && !c.Vision {
		return nil, apperrors.Newf(apperrors.CodeCapabilityUnsupported,
			"Provider '%s' does not support vision-enabled workflows.", c.ID)
	}

	eff := &EffectiveConfig{Config: *c, CredentialSource: CredentialNone}
	eff.Credential, eff.CredentialSource = r.credential(c, overrides)

	if c.RequiresCredential && eff.Credential == "" {
		return nil, apperrors.Newf(apperrors.CodeMissingCredential,
			"Missing API key for provider '%s'. Set %s in the environment.", c.ID, c.CredentialEnv)
	}

	t := r.tuning[c.ID]
	eff.Model = firstNonEmpty(r.env(c.ModelEnv), t.Model, c.DefaultModel)
	eff.BaseURL = firstNonEmpty(r.env(c.BaseURLEnv), t.BaseURL, c.BaseURL)
	eff.MaxTokens = firstPositive(t.MaxTokens, r.defaults.MaxTokens)
	eff.Temperature = r.defaults.Temperature
	if t.Temperature > 0 {
		eff.Temperature = t.Temperature
	}
	eff.Timeout = t.Timeout
	if eff.Timeout <= 0 {
		eff.Timeout = r.defaults.Timeout
	}

	return eff, nil
}

// Configured 报告后端当前是否具备可用凭证
func (r *Registry) Configured(id string, overrides map[string]string) bool {
	c, err := r.Lookup(id)
	if err != nil {
		return false
	}
	if !c.RequiresCredential {
		return true
	}
	cred, _ := r.credential(c, overrides)
	return cred != ""
}

// MatchesCredentialKey 报告 key 是否为该后端可接受的凭证键写法
func MatchesCredentialKey(c *Config, key string) bool {
	nk := normalizeKey(key)
	if nk == "" {
		return false
	}
	for _, k := range []string{c.ID, c.ID + "_api_key", c.CredentialEnv} {
		if k != "" && normalizeKey(k) == nk {
			return true
		}
	}
	return false
}

func (r *Registry) credential(c *Config, overrides map[string]string) (string, CredentialSource) {
	// 按键排序遍历，保证多个匹配键时结果确定
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !MatchesCredentialKey(c, k) {
			continue
		}
		if v := strings.TrimSpace(overrides[k]); v != "" {
			return v, CredentialOverride
		}
	}

	if v := r.env(c.CredentialEnv); v != "" {
		return v, CredentialEnvironment
	}
	return "", CredentialNone
}

func (r *Registry) env(key string) string {
	if key == "" {
		return ""
	}
	v, ok := r.lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// normalizeKey 小写并去除所有非字母数字字符
func normalizeKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// String 便于日志输出，不包含凭证
func (e *EffectiveConfig) String() string {
	return fmt.Sprintf("%s/%s (credential: %s)", e.ID, e.Model, e.CredentialSource)
}

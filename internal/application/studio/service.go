// Package studio 对外暴露生成与转换三个公共操作，并负责校验、设置合并与历史记录
package studio

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"prompt-blueprint-api/internal/application/conversion"
	"prompt-blueprint-api/internal/application/generation"
	"prompt-blueprint-api/internal/domain/blueprint"
	"prompt-blueprint-api/internal/domain/entity"
	"prompt-blueprint-api/internal/domain/provider"
	apperrors "prompt-blueprint-api/pkg/errors"
	"prompt-blueprint-api/pkg/logger"
)

// SettingsSource 只读设置来源
type SettingsSource interface {
	DefaultProvider(ctx context.Context) string
	Credentials(ctx context.Context) map[string]string
	NSFWEnabled(ctx context.Context) bool
}

// HistorySink 结果记录；失败不影响返回给调用方的结果
type HistorySink interface {
	Record(ctx context.Context, h *entity.PromptHistory) error
}

// Limits 请求校验限制
type Limits struct {
	PromptMinLength int
	PromptMaxLength int
	MaxImageBytes   int
}

// DefaultLimits 默认限制
func DefaultLimits() Limits {
	return Limits{PromptMinLength: 3, PromptMaxLength: 1000, MaxImageBytes: 10 << 20}
}

// TextInput 文本生成输入
type TextInput struct {
	Prompt      string
	Provider    string
	Credentials map[string]string
	// NSFW 为空时取设置中的默认值
	NSFW  *bool
	JobID string
}

// ImageInput 图片生成输入
type ImageInput struct {
	Image       []byte
	Filename    string
	Provider    string
	Credentials map[string]string
	NSFW        *bool
	JobID       string
}

// ConvertInput 转换输入
type ConvertInput struct {
	Blueprint   *blueprint.Blueprint
	Target      string
	Provider    string
	Credentials map[string]string
	JobID       string
}

// Service 公共门面
type Service struct {
	registry        *provider.Registry
	generator       *generation.Generator
	converter       *conversion.Converter
	settings        SettingsSource
	sink            HistorySink
	limits          Limits
	defaultProvider string
	nsfwDefault     bool
}

// Option Service 构造选项
type Option func(*Service)

func WithSettings(s SettingsSource) Option {
	return func(svc *Service) { svc.settings = s }
}

func WithHistorySink(s HistorySink) Option {
	return func(svc *Service) { svc.sink = s }
}

func WithLimits(l Limits) Option {
	return func(svc *Service) { svc.limits = l }
}

// WithDefaultProvider 设置来源未给出默认后端时使用
func WithDefaultProvider(id string) Option {
	return func(svc *Service) { svc.defaultProvider = strings.TrimSpace(id) }
}

// WithNSFWDefault 无设置来源时的 nsfw 默认值
func WithNSFWDefault(allowed bool) Option {
	return func(svc *Service) { svc.nsfwDefault = allowed }
}

func NewService(registry *provider.Registry, generator *generation.Generator, converter *conversion.Converter, opts ...Option) *Service {
	s := &Service{
		registry:        registry,
		generator:       generator,
		converter:       converter,
		limits:          DefaultLimits(),
		defaultProvider: "openai",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateFromText 文本 -> 蓝图
func (s *Service) GenerateFromText(ctx context.Context, in TextInput) *GenerationResult {
	start := time.Now()
	prompt := strings.TrimSpace(in.Prompt)
	providerID := s.providerID(ctx, in.Provider)
	res := &GenerationResult{Provider: providerID}

	record := entity.NewPromptHistory(entity.GenerationKindText, prompt, providerID)
	record.JobID = in.JobID

	out, err := s.generateText(ctx, providerID, prompt, in)
	s.finishGeneration(ctx, res, record, out, err, start)
	return res
}

func (s *Service) generateText(ctx context.Context, providerID, prompt string, in TextInput) (*generation.Outcome, error) {
	if err := s.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	cfg, err := s.resolve(ctx, providerID, in.Credentials, false)
	if err != nil {
		return nil, err
	}
	return s.generator.FromText(ctx, cfg, generation.TextRequest{
		Prompt:    prompt,
		AllowNSFW: s.allowNSFW(ctx, in.NSFW),
	})
}

// GenerateFromImage 图片 -> 蓝图；视觉能力在凭证校验与任何调用之前检查
func (s *Service) GenerateFromImage(ctx context.Context, in ImageInput) *GenerationResult {
	start := time.Now()
	providerID := s.providerID(ctx, in.Provider)
	res := &GenerationResult{Provider: providerID}

	filename := strings.TrimSpace(in.Filename)
	record := entity.NewPromptHistory(entity.GenerationKindImage, filename, providerID)
	record.JobID = in.JobID

	out, err := s.generateImage(ctx, providerID, filename, in)
	s.finishGeneration(ctx, res, record, out, err, start)
	return res
}

func (s *Service) generateImage(ctx context.Context, providerID, filename string, in ImageInput) (*generation.Outcome, error) {
	if err := s.ValidateImage(in.Image); err != nil {
		return nil, err
	}
	cfg, err := s.resolve(ctx, providerID, in.Credentials, true)
	if err != nil {
		return nil, err
	}
	return s.generator.FromImage(ctx, cfg, generation.ImageRequest{
		Image:     in.Image,
		Filename:  filename,
		AllowNSFW: s.allowNSFW(ctx, in.NSFW),
	})
}

// ConvertPrompt 蓝图 -> 目标载荷；未知目标在解析后端之前失败
func (s *Service) ConvertPrompt(ctx context.Context, in ConvertInput) *ConversionResult {
	start := time.Now()
	providerID := s.providerID(ctx, in.Provider)
	res := &ConversionResult{Provider: providerID, Target: strings.TrimSpace(in.Target)}

	input := ""
	if in.Blueprint != nil {
		input = in.Blueprint.Prompt.Primary
	}
	record := entity.NewPromptHistory(entity.GenerationKindConvert, input, providerID)
	record.JobID = in.JobID
	record.Target = res.Target

	out, err := s.convert(ctx, providerID, in)
	if err != nil {
		res.Error, res.ErrorCode = describeError(ctx, err)
	} else {
		res.Success = true
		res.Data = out.Payload
		res.Degraded = out.Degraded
		res.Target = out.Payload.TargetModel
		res.Model = out.Model
		res.TokenUsage = newTokenUsage(out.PromptTokens, out.CompletionTokens)
		record.Target = res.Target
		if in.Blueprint != nil {
			record.Keywords = append(record.Keywords, in.Blueprint.Style.Keywords...)
		}
	}
	res.ProcessingTime = time.Since(start).Seconds()

	s.fillRecord(record, res.Success, res.Degraded, res.Model, res.Error, res.ErrorCode, res.Data, res.TokenUsage, start)
	res.HistoryID = s.record(ctx, record)
	s.logOutcome(ctx, "prompt converted", record)
	return res
}

func (s *Service) convert(ctx context.Context, providerID string, in ConvertInput) (*conversion.Outcome, error) {
	target, err := conversion.LookupTarget(in.Target)
	if err != nil {
		return nil, err
	}
	if _, err := conversion.ValidateBlueprint(in.Blueprint); err != nil {
		return nil, err
	}
	cfg, err := s.resolve(ctx, providerID, in.Credentials, false)
	if err != nil {
		return nil, err
	}
	return s.converter.Convert(ctx, cfg, in.Blueprint, target)
}

// ValidatePrompt 校验提示词长度（按字符计）
func (s *Service) ValidatePrompt(text string) error {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return apperrors.New(apperrors.CodeInvalidParam, "Prompt must not be empty.")
	case n < s.limits.PromptMinLength:
		return apperrors.Newf(apperrors.CodeInvalidParam,
			"Prompt must be at least %d characters long.", s.limits.PromptMinLength)
	case s.limits.PromptMaxLength > 0 && n > s.limits.PromptMaxLength:
		return apperrors.Newf(apperrors.CodeInvalidParam,
			"Prompt must be at most %d characters long.", s.limits.PromptMaxLength)
	}
	return nil
}

// ValidateImage 校验图片大小
func (s *Service) ValidateImage(data []byte) error {
	switch {
	case len(data) == 0:
		return apperrors.New(apperrors.CodeInvalidParam, "Image must not be empty.")
	case s.limits.MaxImageBytes > 0 && len(data) > s.limits.MaxImageBytes:
		return apperrors.Newf(apperrors.CodeInvalidParam,
			"Image exceeds the maximum size of %d bytes.", s.limits.MaxImageBytes)
	}
	return nil
}

// Registry 后端注册表
func (s *Service) Registry() *provider.Registry {
	return s.registry
}

func (s *Service) providerID(ctx context.Context, requested string) string {
	if id := strings.TrimSpace(requested); id != "" {
		return id
	}
	if s.settings != nil {
		if id := strings.TrimSpace(s.settings.DefaultProvider(ctx)); id != "" {
			return id
		}
	}
	return s.defaultProvider
}

// resolve 合并设置中保存的凭证与调用方覆盖，调用方优先
func (s *Service) resolve(ctx context.Context, providerID string, overrides map[string]string, requireVision bool) (*provider.EffectiveConfig, error) {
	merged := map[string]string{}
	if s.settings != nil {
		for k, v := range s.settings.Credentials(ctx) {
			merged[k] = v
		}
	}
	// 调用方的键可能与已保存键写法不同（openai / OPENAI_API_KEY），
	// 因此先移除同一后端的已保存键再合并
	if len(overrides) > 0 {
		if c, err := s.registry.Lookup(providerID); err == nil {
			for k, v := range overrides {
				if strings.TrimSpace(v) == "" {
					continue
				}
				if provider.MatchesCredentialKey(c, k) {
					for saved := range merged {
						if provider.MatchesCredentialKey(c, saved) {
							delete(merged, saved)
						}
					}
				}
			}
		}
		for k, v := range overrides {
			if strings.TrimSpace(v) != "" {
				merged[k] = v
			}
		}
	}
	return s.registry.Resolve(providerID, merged, provider.ResolveOptions{RequireVision: requireVision})
}

func (s *Service) allowNSFW(ctx context.Context, requested *bool) bool {
	if requested != nil {
		return *requested
	}
	if s.settings != nil {
		return s.settings.NSFWEnabled(ctx)
	}
	return s.nsfwDefault
}

func (s *Service) finishGeneration(ctx context.Context, res *GenerationResult, record *entity.PromptHistory, out *generation.Outcome, err error, start time.Time) {
	if err != nil {
		res.Error, res.ErrorCode = describeError(ctx, err)
	} else {
		res.Success = true
		res.Data = out.Blueprint
		res.Degraded = out.Degraded
		res.Model = out.Model
		res.TokenUsage = newTokenUsage(out.PromptTokens, out.CompletionTokens)
		record.Keywords = append(record.Keywords, out.Blueprint.Style.Keywords...)
	}
	res.ProcessingTime = time.Since(start).Seconds()

	s.fillRecord(record, res.Success, res.Degraded, res.Model, res.Error, res.ErrorCode, res.Data, res.TokenUsage, start)
	res.HistoryID = s.record(ctx, record)
	s.logOutcome(ctx, "prompt generated", record)
}

func (s *Service) fillRecord(record *entity.PromptHistory, success, degraded bool, model, errMsg, errCode string, data any, usage *TokenUsage, start time.Time) {
	record.Success = success
	record.Degraded = degraded
	record.Model = model
	record.ErrorMessage = errMsg
	record.ErrorCode = errCode
	if success {
		if b, err := json.Marshal(data); err == nil {
			record.Output = b
		}
	}
	if usage != nil {
		record.SetUsage(usage.PromptTokens, usage.CompletionTokens)
	}
	record.ProcessingMs = time.Since(start).Milliseconds()
}

// record best-effort 写入历史，返回记录 ID；失败只记录日志
func (s *Service) record(ctx context.Context, h *entity.PromptHistory) string {
	if s.sink == nil {
		return ""
	}
	if err := s.sink.Record(ctx, h); err != nil {
		logger.Error(ctx, "failed to record prompt history", err, "kind", string(h.Kind), "provider", h.Provider)
		return ""
	}
	return h.ID
}

func (s *Service) logOutcome(ctx context.Context, msg string, h *entity.PromptHistory) {
	args := []any{
		"kind", string(h.Kind),
		"provider", h.Provider,
		"model", h.Model,
		"success", h.Success,
		"degraded", h.Degraded,
		"processing_ms", h.ProcessingMs,
	}
	if !h.Success {
		args = append(args, "error_code", h.ErrorCode)
		logger.Warn(ctx, msg, args...)
		return
	}
	logger.Info(ctx, msg, args...)
}

// describeError 返回信封中的错误文本与错误码名称
func describeError(ctx context.Context, err error) (string, string) {
	if !apperrors.IsAppError(err) {
		logger.Error(ctx, "unexpected pipeline error", err)
		return "Internal error.", apperrors.CodeInternalError.Name()
	}
	appErr := apperrors.AsAppError(err)
	msg := appErr.Message
	if appErr.Detail != "" {
		msg += " " + appErr.Detail
	}
	return msg, appErr.Code.Name()
}

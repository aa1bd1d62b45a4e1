package llm

import (
	"context"
	"fmt"
	"strings"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"prompt-blueprint-api/internal/domain/provider"
	workflownode "prompt-blueprint-api/internal/workflow/node"
	workflowport "prompt-blueprint-api/internal/workflow/port"
	"prompt-blueprint-api/pkg/logger"
)

// lmstudio 等本地后端不校验密钥，但 OpenAI 客户端要求非空
const placeholderAPIKey = "not-needed"

func (i *Invoker) invokeOpenAI(ctx context.Context, cfg *provider.EffectiveConfig, req *workflowport.InvokeRequest) (*workflowport.InvokeResult, error) {
	c, err := i.pool.get(ctx, cfg, func(ctx context.Context) (any, error) {
		return newOpenAIChatModel(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	chatModel := c.(model.BaseChatModel)

	msgs := openAIMessages(req)
	outMsg, err := chatModel.Generate(ctx, msgs, openAIOptions(cfg, req, true)...)
	if err != nil && req.Schema != nil && workflownode.IsResponseFormatUnsupportedError(err) {
		logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
			"provider", cfg.ID,
			"model", cfg.Model,
			"error", err.Error(),
		)
		outMsg, err = chatModel.Generate(ctx, msgs, openAIOptions(cfg, req, false)...)
	}
	if err != nil {
		return nil, err
	}
	if outMsg == nil {
		return nil, emptyResponseError(cfg)
	}

	res := &workflowport.InvokeResult{Text: outMsg.Content, Model: cfg.Model}
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		res.PromptTokens = outMsg.ResponseMeta.Usage.PromptTokens
		res.CompletionTokens = outMsg.ResponseMeta.Usage.CompletionTokens
	}
	return res, nil
}

func newOpenAIChatModel(ctx context.Context, cfg *provider.EffectiveConfig) (model.BaseChatModel, error) {
	apiKey := cfg.Credential
	if apiKey == "" {
		apiKey = placeholderAPIKey
	}
	maxTokens := cfg.MaxTokens
	temperature := float32(cfg.Temperature)

	chatModel, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", cfg.ID, err)
	}
	return chatModel, nil
}

// openAIMessages 附件以 data URI 形式附加到最后一条用户消息
func openAIMessages(req *workflowport.InvokeRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Messages))
	lastUser := -1
	for _, m := range req.Messages {
		if m == nil {
			continue
		}
		cp := *m
		if cp.Role == schema.User {
			lastUser = len(msgs)
		}
		msgs = append(msgs, &cp)
	}
	if !hasAttachment(req.Attachment) {
		return msgs
	}
	if lastUser < 0 {
		msgs = append(msgs, schema.UserMessage(""))
		lastUser = len(msgs) - 1
	}

	m := msgs[lastUser]
	parts := make([]schema.ChatMessagePart, 0, 2)
	if strings.TrimSpace(m.Content) != "" {
		parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: m.Content})
	}
	parts = append(parts, schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeImageURL,
		ImageURL: &schema.ChatMessageImageURL{
			URL:      dataURI(req.Attachment),
			MIMEType: req.Attachment.MIMEType,
		},
	})
	m.Content = ""
	m.MultiContent = parts
	return msgs
}

func openAIOptions(cfg *provider.EffectiveConfig, req *workflowport.InvokeRequest, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 4)
	if cfg.Model != "" {
		opts = append(opts, model.WithModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.MaxTokens))
	}
	opts = append(opts, model.WithTemperature(float32(cfg.Temperature)))

	if enableSchema && req.Schema != nil {
		opts = append(opts, einoopenai.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   req.Schema.Name,
					"strict": false,
					"schema": req.Schema.Doc,
				},
			},
		}))
	}
	return opts
}

package llm

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"prompt-blueprint-api/internal/domain/provider"
	workflowport "prompt-blueprint-api/internal/workflow/port"
)

func (i *Invoker) invokeAnthropic(ctx context.Context, cfg *provider.EffectiveConfig, req *workflowport.InvokeRequest) (*workflowport.InvokeResult, error) {
	c, err := i.pool.get(ctx, cfg, func(context.Context) (any, error) {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.Credential),
			option.WithMaxRetries(0),
			option.WithRequestTimeout(cfg.Timeout),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		return &client, nil
	})
	if err != nil {
		return nil, err
	}
	client := c.(*anthropic.Client)

	system, user := splitMessages(req.Messages)
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)}
	if hasAttachment(req.Attachment) {
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			req.Attachment.MIMEType,
			base64.StdEncoding.EncodeToString(req.Attachment.Data),
		))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(cfg.Model),
		MaxTokens:   int64(cfg.MaxTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(cfg.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return nil, emptyResponseError(cfg)
	}

	model := string(msg.Model)
	if model == "" {
		model = cfg.Model
	}
	return &workflowport.InvokeResult{
		Text:             strings.Join(texts, "\n"),
		Model:            model,
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, nil
}

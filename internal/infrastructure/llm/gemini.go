package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"prompt-blueprint-api/internal/domain/provider"
	workflowport "prompt-blueprint-api/internal/workflow/port"
)

func (i *Invoker) invokeGemini(ctx context.Context, cfg *provider.EffectiveConfig, req *workflowport.InvokeRequest) (*workflowport.InvokeResult, error) {
	c, err := i.pool.get(ctx, cfg, func(ctx context.Context) (any, error) {
		cc := &genai.ClientConfig{
			APIKey:  cfg.Credential,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}
		client, err := genai.NewClient(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client for %s: %w", cfg.ID, err)
		}
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	client := c.(*genai.Client)

	system, user := splitMessages(req.Messages)
	parts := []*genai.Part{genai.NewPartFromText(user)}
	if hasAttachment(req.Attachment) {
		parts = append(parts, genai.NewPartFromBytes(req.Attachment.Data, req.Attachment.MIMEType))
	}

	temperature := float32(cfg.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(cfg.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, cfg.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return nil, err
	}
	text := resp.Text()
	if text == "" {
		return nil, emptyResponseError(cfg)
	}

	res := &workflowport.InvokeResult{Text: text, Model: cfg.Model}
	if resp.ModelVersion != "" {
		res.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		res.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		res.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return res, nil
}

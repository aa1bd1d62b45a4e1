package callback

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
)

func TestElapsedSeconds(t *testing.T) {
	assert.Zero(t, elapsedSeconds(context.Background()))

	ctx := context.WithValue(context.Background(), startTimeKey{}, time.Now().Add(-time.Second))
	assert.GreaterOrEqual(t, elapsedSeconds(ctx), 1.0)
}

func TestModelNames(t *testing.T) {
	assert.Empty(t, modelNameFromInput(nil))
	assert.Empty(t, modelNameFromOutput(&model.CallbackOutput{}))
	assert.Equal(t, "gpt-4.1-mini", modelNameFromInput(&model.CallbackInput{Config: &model.Config{Model: "gpt-4.1-mini"}}))
	assert.Equal(t, "m", modelNameFromOutput(&model.CallbackOutput{Config: &model.Config{Model: "m"}}))
}

func TestHandlerLifecycle(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := h.OnStart(context.Background(), nil, &model.CallbackInput{Config: &model.Config{Model: "m"}})
	assert.NotNil(t, ctx.Value(startTimeKey{}))
	assert.NotPanics(t, func() {
		h.OnEnd(ctx, nil, &model.CallbackOutput{TokenUsage: &model.TokenUsage{PromptTokens: 1, CompletionTokens: 2}})
	})
	Init()
	Init()
}

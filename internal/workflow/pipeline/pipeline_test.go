package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prompt-blueprint-api/internal/domain/provider"
	"prompt-blueprint-api/internal/workflow/parser"
	"prompt-blueprint-api/internal/workflow/port/porttest"
	workflowprompt "prompt-blueprint-api/internal/workflow/prompt"
	apperrors "prompt-blueprint-api/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testProvider() *provider.EffectiveConfig {
	return &provider.EffectiveConfig{
		Config: provider.Config{ID: "openai", Dialect: provider.DialectOpenAI},
		Model:  "gpt-test",
	}
}

func allVars(rc *RunContext) (map[string]any, error) {
	return map[string]any{
		"prompt":           rc.InputString("prompt"),
		"safety_directive": "",
		"allow_nsfw":       false,
		"override_keys":    "flux",
		"draft":            rc.Raw("draft"),
		"schema":           "{}",
	}, nil
}

func markBad(raw string, _ *RunContext) (any, parser.Report) {
	if strings.Contains(raw, "bad") {
		return "fallback", parser.Report{WasFallback: true, Issues: []string{"no JSON object found"}}
	}
	return strings.ToUpper(raw), parser.Report{}
}

func twoStage(inv *porttest.Invoker) *Pipeline {
	return New("test", inv,
		StageDefinition{Name: "draft", Prompt: workflowprompt.PromptDraft, Vars: allVars},
		StageDefinition{Name: "edit", Prompt: workflowprompt.PromptEdit, DependsOn: []string{"draft"}, Vars: allVars, Decode: markBad},
	)
}

func TestPipeline_Run_ThreadsStageOutputs(t *testing.T) {
	inv := porttest.Texts("draft text", "edited")
	p := twoStage(inv)

	rc := NewRunContext(testProvider(), map[string]any{"prompt": "a red fox"})
	res := p.Run(context.Background(), rc)

	require.NoError(t, res.Err)
	assert.Equal(t, "EDITED", res.Output)
	assert.False(t, res.Degraded)
	assert.Equal(t, StateCompleted, rc.State())
	assert.Equal(t, "edit", rc.Current())

	calls := inv.Calls()
	require.Len(t, calls, 2)
	user := calls[1].Request.Messages[len(calls[1].Request.Messages)-1].Content
	assert.Contains(t, user, "draft text")
	assert.Contains(t, user, "a red fox")
	assert.Equal(t, "edit", calls[1].Request.Stage)

	records := rc.Records()
	require.Len(t, records, 2)
	assert.Equal(t, StageCompleted, records[0].Status)
	assert.Equal(t, "draft text", records[0].Parsed)
	pt, ct := rc.Usage()
	assert.Equal(t, 20, pt)
	assert.Equal(t, 40, ct)
	assert.Equal(t, "gpt-test", rc.Model())
}

func TestPipeline_Run_DegradedContinues(t *testing.T) {
	inv := porttest.Texts("bad draft", "bad edit")
	p := New("test", inv,
		StageDefinition{Name: "draft", Prompt: workflowprompt.PromptDraft, Vars: allVars, Decode: markBad},
		StageDefinition{Name: "edit", Prompt: workflowprompt.PromptEdit, Vars: allVars},
	)

	rc := NewRunContext(testProvider(), map[string]any{"prompt": "x"})
	res := p.Run(context.Background(), rc)

	require.NoError(t, res.Err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 2, inv.CallCount())
	r, ok := rc.Record("draft")
	require.True(t, ok)
	assert.Equal(t, StageDegraded, r.Status)
	assert.Equal(t, []string{"no JSON object found"}, r.Issues)
	assert.True(t, rc.Degraded())
}

func TestPipeline_Run_FailFast(t *testing.T) {
	invErr := apperrors.New(apperrors.CodeBackendRejected, "invalid api key")
	inv := porttest.NewInvoker(porttest.Step{Err: invErr}, porttest.Step{Text: "never"})
	p := twoStage(inv)

	rc := NewRunContext(testProvider(), nil)
	res := p.Run(context.Background(), rc)

	require.Error(t, res.Err)
	assert.True(t, apperrors.Is(res.Err, apperrors.CodeBackendRejected))
	assert.Equal(t, 1, inv.CallCount())
	assert.Equal(t, StateFailed, rc.State())
	assert.Equal(t, "draft", rc.Current())
	assert.Nil(t, res.Output)
}

func TestPipeline_Run_CancelledBeforeStage(t *testing.T) {
	inv := porttest.Texts("a", "b")
	p := twoStage(inv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.Run(ctx, NewRunContext(testProvider(), nil))

	require.Error(t, res.Err)
	assert.True(t, apperrors.Is(res.Err, apperrors.CodeCancelled))
	assert.Zero(t, inv.CallCount())
}

func TestPipeline_Run_DeadlineDuringInvoke(t *testing.T) {
	inv := porttest.NewInvoker(porttest.Step{Block: true})
	p := twoStage(inv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rc := NewRunContext(testProvider(), nil)
	res := p.Run(ctx, rc)

	require.Error(t, res.Err)
	assert.True(t, apperrors.Is(res.Err, apperrors.CodeTimeout))
	assert.Equal(t, 1, inv.CallCount())
	assert.Len(t, rc.Records(), 1)
}

func TestNew_InvalidDefinitionsPanic(t *testing.T) {
	inv := porttest.Texts("x")
	tests := []struct {
		name   string
		stages []StageDefinition
	}{
		{"no stages", nil},
		{"empty name", []StageDefinition{{Prompt: workflowprompt.PromptDraft}}},
		{"duplicate", []StageDefinition{{Name: "a"}, {Name: "a"}}},
		{"forward dependency", []StageDefinition{{Name: "a", DependsOn: []string{"b"}}, {Name: "b"}}},
		{"self dependency", []StageDefinition{{Name: "a", DependsOn: []string{"a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { New("bad", inv, tt.stages...) })
		})
	}
}

func TestPipeline_Stages(t *testing.T) {
	p := twoStage(porttest.Texts("x"))
	assert.Equal(t, "test", p.Name())
	assert.Equal(t, []string{"draft", "edit"}, p.Stages())
}

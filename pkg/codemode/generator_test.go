package codemode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/pkg/llm"
	"guildbot/pkg/logx"
	"guildbot/pkg/platform"
	"guildbot/pkg/testkit"
	"guildbot/pkg/tools"
	"guildbot/pkg/utils"
)

// newTestProvider backs the tool surface with a mock guild API.
func newTestProvider(t *testing.T) *tools.ToolProvider {
	t.Helper()
	srv := testkit.MockGuildServer(testkit.DefaultGuildFixture())
	t.Cleanup(srv.Close)
	gctx := tools.GuildContext{Client: platform.NewClient(srv.URL, "test-token"), GuildID: "guild-1"}
	return tools.NewProvider(gctx, tools.AllToolNames())
}

func TestGeneratorReturnsCodeWithoutTools(t *testing.T) {
	client := testkit.NewScriptedLLM(testkit.TextResponse("```go\nlogf(\"hi\")\n```"))
	gen := NewGenerator(client, newTestProvider(t), 5)

	result, err := gen.Generate(context.Background(), &GenerationInput{RequestBody: "say hi"})
	require.NoError(t, err)
	assert.Equal(t, `logf("hi")`, result.Code)
	assert.Equal(t, 0, result.ToolCalls)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, float32(llm.TemperatureDefault), reqs[0].Temperature)
	assert.Len(t, reqs[0].Tools, 5)
	assert.Contains(t, reqs[0].Messages[0].Content, "## Available Tools")
	assert.Contains(t, reqs[0].Messages[1].Content, "say hi")
}

func TestGeneratorExecutesToolsThenCode(t *testing.T) {
	client := testkit.NewScriptedLLM(
		testkit.ToolCallResponse("Checking the roles first",
			llm.ToolCall{ID: "call-1", Name: tools.ToolSearchRoles, Parameters: map[string]any{"query": "mod"}}),
		testkit.TextResponse("```go\nlogf(\"done\")\n```"),
	)
	gen := NewGenerator(client, newTestProvider(t), 5)

	var steps []StepNotification
	result, err := gen.Generate(context.Background(), &GenerationInput{
		RequestBody: "mention the mod role",
		Notify:      func(n StepNotification) { steps = append(steps, n) },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolCalls)

	// The thought is announced before the tool it leads to.
	require.Len(t, steps, 2)
	assert.Equal(t, StepThought, steps[0].Kind)
	assert.Equal(t, "Checking the roles first", steps[0].Summary)
	assert.Equal(t, StepTool, steps[1].Kind)
	assert.Equal(t, tools.ToolSearchRoles, steps[1].Tool)
	assert.Equal(t, "query=mod", steps[1].Summary)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	transcript := reqs[1].Messages
	require.Len(t, transcript, 4)
	assert.Equal(t, llm.RoleAssistant, transcript[2].Role)
	require.Len(t, transcript[2].ToolCalls, 1)
	require.Len(t, transcript[3].ToolResults, 1)
	assert.Equal(t, "call-1", transcript[3].ToolResults[0].ToolCallID)
	assert.False(t, transcript[3].ToolResults[0].IsError)
	// The fixture has a Moderator role; its data flowed back to the model.
	assert.Contains(t, transcript[3].ToolResults[0].Content, "Moderator")
}

func TestGeneratorAnswersUnknownToolWithErrorResult(t *testing.T) {
	client := testkit.NewScriptedLLM(
		testkit.ToolCallResponse("", llm.ToolCall{ID: "call-1", Name: "frobnicate"}),
		testkit.TextResponse("logf(\"recovered\")"),
	)
	gen := NewGenerator(client, newTestProvider(t), 5)

	result, err := gen.Generate(context.Background(), &GenerationInput{RequestBody: "do it"})
	require.NoError(t, err)
	assert.Equal(t, `logf("recovered")`, result.Code)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	results := reqs[1].Messages[3].ToolResults
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "frobnicate")
}

func TestGeneratorStepCapIsAFailure(t *testing.T) {
	roleCall := llm.ToolCall{ID: "call-1", Name: tools.ToolSearchRoles, Parameters: map[string]any{"query": "x"}}
	client := testkit.NewScriptedLLM(
		testkit.ToolCallResponse("", roleCall),
		testkit.ToolCallResponse("", roleCall),
	)
	gen := NewGenerator(client, newTestProvider(t), 2)

	_, err := gen.Generate(context.Background(), &GenerationInput{RequestBody: "never finishes"})
	require.Error(t, err)
	assert.Equal(t, StageGeneration, StageOf(err))
	assert.Contains(t, err.Error(), "exceeded 2 steps")
	assert.Len(t, client.Requests(), 2)
}

func TestGeneratorRegenerationCarriesOrderedFeedback(t *testing.T) {
	client := testkit.NewScriptedLLM(testkit.TextResponse("logf(\"v2\")"))
	gen := NewGenerator(client, newTestProvider(t), 5)

	_, err := gen.Generate(context.Background(), &GenerationInput{
		RequestBody: "post a digest",
		CurrentCode: `logf("v1")`,
		Feedback:    []string{"shorter please", "and mention me"},
	})
	require.NoError(t, err)

	msgs := client.Requests()[0].Messages
	require.Len(t, msgs, 3)
	prompt := msgs[2].Content
	assert.Contains(t, prompt, `logf("v1")`)
	first := strings.Index(prompt, "1. shorter please")
	second := strings.Index(prompt, "2. and mention me")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)
}

func TestGeneratorRejectsEmptyCompletion(t *testing.T) {
	client := testkit.NewScriptedLLM(testkit.TextResponse("   "))
	gen := NewGenerator(client, newTestProvider(t), 5)

	_, err := gen.Generate(context.Background(), &GenerationInput{RequestBody: "do it"})
	require.Error(t, err)
	assert.Equal(t, StageGeneration, StageOf(err))
}

func TestGeneratorWrapsModelError(t *testing.T) {
	client := testkit.NewScriptedLLM().FailWith(errors.New("rate limited"))
	gen := NewGenerator(client, newTestProvider(t), 5)

	_, err := gen.Generate(context.Background(), &GenerationInput{RequestBody: "do it"})
	require.Error(t, err)
	assert.Equal(t, StageGeneration, StageOf(err))
}

// newBudgetGenerator builds a generator with a nil token counter, so budget
// math goes through the shared estimator.
func newBudgetGenerator(t *testing.T) *Generator {
	t.Helper()
	return &Generator{
		client:   testkit.NewScriptedLLM(),
		provider: newTestProvider(t),
		logger:   logx.NewLogger("generator"),
		maxSteps: 1,
	}
}

// hugeToolOutput is far over any model's context budget.
func hugeToolOutput() string {
	return strings.Repeat("role Moderator has 42 members across 7 channels today. ", 10_000)
}

func TestBudgetTranscriptTruncatesOldestToolResult(t *testing.T) {
	gen := newBudgetGenerator(t)

	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("system"),
		llm.NewUserMessage("task"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "t"}}},
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{{ToolCallID: "c1", Content: hugeToolOutput()}}},
	}

	out := gen.budgetTranscript(messages)
	got := out[3].ToolResults[0].Content
	assert.True(t, strings.HasSuffix(got, utils.TruncationSuffix))
	assert.Len(t, got, toolResultTruncateChars+len(utils.TruncationSuffix))
	// Everything that is not a tool result is untouched.
	assert.Equal(t, "system", out[0].Content)
	assert.Equal(t, "task", out[1].Content)
}

func TestBudgetTranscriptTerminatesWithNothingToTruncate(t *testing.T) {
	gen := newBudgetGenerator(t)

	// Over budget but with no tool results to shrink: returned as-is.
	huge := llm.NewUserMessage(hugeToolOutput())
	out := gen.budgetTranscript([]llm.CompletionMessage{huge})
	require.Len(t, out, 1)
	assert.Len(t, out[0].Content, len(hugeToolOutput()))
}

package codemode

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"guildbot/pkg/config"
	"guildbot/pkg/llm"
	"guildbot/pkg/logx"
	"guildbot/pkg/tools"
	"guildbot/pkg/utils"
)

// DefaultMaxGenerationSteps caps the agentic loop when config leaves it unset.
const DefaultMaxGenerationSteps = 10

// budgetReserveTokens is held back from the model's context window for the
// completion itself plus schema overhead.
const budgetReserveTokens = 8192

// toolResultTruncateChars is the size old tool results are cut to when the
// transcript runs over budget.
const toolResultTruncateChars = 400

// StepKind distinguishes the two observable step types.
type StepKind string

// Step notification kinds.
const (
	StepTool    StepKind = "tool"
	StepThought StepKind = "thought"
)

// StepNotification describes one step of the generation loop, suitable for a
// human progress line.
type StepNotification struct {
	Kind    StepKind
	Tool    string
	Summary string
}

// StepNotifier receives step notifications. Delivery is informational only;
// generation never blocks on or fails from a notifier.
type StepNotifier func(StepNotification)

// GenerationInput is everything one generation round works from.
type GenerationInput struct {
	Notify      StepNotifier
	RequestBody string
	CurrentCode string   // code shown in the previous round, empty on the first
	Feedback    []string // ordered oldest first, spans all rounds
}

// Generator runs the bounded agentic loop that turns a request into code.
type Generator struct {
	client   llm.LLMClient
	provider *tools.ToolProvider
	counter  *utils.TokenCounter
	logger   *logx.Logger
	maxSteps int
}

// NewGenerator creates a generator. maxSteps <= 0 selects the default cap.
func NewGenerator(client llm.LLMClient, provider *tools.ToolProvider, maxSteps int) *Generator {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxGenerationSteps
	}
	counter, err := utils.NewTokenCounter(client.GetModelName())
	if err != nil {
		counter = nil // CountTokens falls back to character estimation
	}
	return &Generator{
		client:   client,
		provider: provider,
		counter:  counter,
		logger:   logx.NewLogger("generator"),
		maxSteps: maxSteps,
	}
}

// Generate runs the loop: each step the model either calls tools (all of
// which are executed and answered) or emits the final code. Exhausting the
// step cap without final code is a failure, not a silent stop.
func (g *Generator) Generate(ctx context.Context, in *GenerationInput) (*GenerationResult, error) {
	start := time.Now()

	toolDefs := g.toolDefinitions()
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(generatorSystemPromptText(g.provider.PromptDocumentation())),
		llm.NewUserMessage(generatorUserPrompt(in.RequestBody)),
	}
	if in.CurrentCode != "" {
		messages = append(messages, llm.NewUserMessage(regenerationPrompt(in.CurrentCode, in.Feedback)))
	}

	totalToolCalls := 0
	for step := 1; step <= g.maxSteps; step++ {
		messages = g.budgetTranscript(messages)

		req := llm.NewCompletionRequest(messages)
		req.Tools = toolDefs
		req.Temperature = llm.TemperatureDefault

		g.logger.Info("🔄 Generation step %d/%d: %d messages, %d tools",
			step, g.maxSteps, len(messages), len(toolDefs))

		resp, err := g.client.Complete(ctx, req)
		if err != nil {
			return nil, NewStageError(StageGeneration, err)
		}

		if len(resp.ToolCalls) == 0 {
			code := strings.TrimSpace(utils.StripCodeFences(resp.Content))
			if code == "" {
				return nil, StageErrorf(StageGeneration, "model produced neither code nor tool calls at step %d", step)
			}
			g.logger.Info("✅ Generation finished in %d steps, %d tool calls, %d code chars",
				step, totalToolCalls, len(code))
			return &GenerationResult{
				Code:      code,
				Duration:  time.Since(start),
				ToolCalls: totalToolCalls,
			}, nil
		}

		messages = append(messages, llm.CompletionMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if thought := strings.TrimSpace(resp.Content); thought != "" {
			notify(in.Notify, StepNotification{Kind: StepThought, Summary: utils.TruncateString(thought, 140)})
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for i := range resp.ToolCalls {
			call := &resp.ToolCalls[i]
			notify(in.Notify, StepNotification{
				Kind:    StepTool,
				Tool:    call.Name,
				Summary: summarizeArgs(call.Parameters),
			})
			results = append(results, g.executeTool(ctx, call))
			totalToolCalls++
		}
		messages = append(messages, llm.CompletionMessage{
			Role:        llm.RoleUser,
			ToolResults: results,
		})
	}

	return nil, StageErrorf(StageGeneration, "generation exceeded %d steps without final code", g.maxSteps)
}

// executeTool runs one tool call and converts the outcome into a tool result.
// Every call gets a result; failures become error results for the model.
func (g *Generator) executeTool(ctx context.Context, call *llm.ToolCall) llm.ToolResult {
	tool, err := g.provider.Get(call.Name)
	if err != nil {
		g.logger.Warn("⚠️ Model requested unknown tool %s: %v", call.Name, err)
		return llm.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	started := time.Now()
	result, err := tool.Exec(ctx, call.Parameters)
	elapsed := time.Since(started)

	content, isError := formatToolResult(result, err)
	if isError {
		g.logger.Warn("❌ Tool %s failed after %.3fs: %s", call.Name, elapsed.Seconds(), content)
	} else {
		g.logger.Info("✅ Tool %s completed in %.3fs", call.Name, elapsed.Seconds())
	}
	return llm.ToolResult{ToolCallID: call.ID, Content: content, IsError: isError}
}

// toolDefinitions collects the model-facing definitions of all allowed tools.
func (g *Generator) toolDefinitions() []tools.ToolDefinition {
	metas := g.provider.List()
	defs := make([]tools.ToolDefinition, 0, len(metas))
	for i := range metas {
		defs = append(defs, tools.ToolDefinition{
			Name:        metas[i].Name,
			Description: metas[i].Description,
			InputSchema: metas[i].InputSchema,
		})
	}
	return defs
}

// budgetTranscript keeps the transcript inside the model's context window by
// truncating the oldest tool results first. System, task, and feedback
// messages are never touched.
func (g *Generator) budgetTranscript(messages []llm.CompletionMessage) []llm.CompletionMessage {
	limit := g.contextBudget()

	for {
		total := 0
		for i := range messages {
			total += g.countTokens(messages[i].Content)
			for j := range messages[i].ToolResults {
				total += g.countTokens(messages[i].ToolResults[j].Content)
			}
		}
		if total <= limit {
			return messages
		}

		// Truncation strictly shrinks, so already-cut results are skipped
		// and the loop always terminates.
		truncated := false
		for i := range messages {
			for j := range messages[i].ToolResults {
				tr := &messages[i].ToolResults[j]
				if len(tr.Content) > toolResultTruncateChars+len(utils.TruncationSuffix) {
					tr.Content = utils.TruncateString(tr.Content, toolResultTruncateChars)
					truncated = true
					break
				}
			}
			if truncated {
				break
			}
		}
		if !truncated {
			g.logger.Warn("⚠️ Transcript over budget (%d > %d tokens) with nothing left to truncate", total, limit)
			return messages
		}
		g.logger.Debug("Truncated an old tool result to fit the %d token budget", limit)
	}
}

// contextBudget returns the usable input token budget for the bound model.
func (g *Generator) contextBudget() int {
	info, _ := config.GetModelInfo(g.client.GetModelName())
	if info.MaxContextTokens <= budgetReserveTokens {
		return 100000 - budgetReserveTokens
	}
	return info.MaxContextTokens - budgetReserveTokens
}

func (g *Generator) countTokens(text string) int {
	if g.counter != nil {
		return g.counter.CountTokens(text)
	}
	return utils.CountTokensSimple(text)
}

// notify delivers a step notification if a notifier is attached.
func notify(fn StepNotifier, n StepNotification) {
	if fn != nil {
		fn(n)
	}
}

// summarizeArgs renders tool parameters as a short stable "k=v" list.
func summarizeArgs(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return utils.TruncateString(strings.Join(parts, ", "), 80)
}

// formatToolResult converts a tool outcome into result text for the model.
// Maps carrying success=false are error results even without a Go error.
func formatToolResult(result any, err error) (string, bool) {
	if err != nil {
		return fmt.Sprintf("Tool failed: %v", err), true
	}

	if resultMap, ok := result.(map[string]any); ok {
		if success, ok := resultMap["success"].(bool); ok && !success {
			if errMsg, ok := resultMap["error"].(string); ok {
				return errMsg, true
			}
			return fmt.Sprintf("Tool failed: %v", result), true
		}
	}

	return fmt.Sprintf("%v", result), false
}

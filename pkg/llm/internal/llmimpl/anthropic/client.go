// Package anthropic provides the Anthropic Claude backend for the llm.LLMClient interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"guildbot/pkg/llm"
	"guildbot/pkg/llm/llmerrors"
	"guildbot/pkg/tools"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
//
//nolint:govet // Simple client struct, logical grouping preferred
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a raw Claude client (middleware applied at a higher level).
func NewClaudeClient(apiKey, model string) llm.LLMClient {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeClient{
		client: client,
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for Anthropic API requirements.
// 1. Extracts system messages to the top-level system parameter
// 2. Merges consecutive same-role messages (text joined, tool blocks appended)
// 3. Validates the sequence starts and ends with a user message.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var conversation []llm.CompletionMessage

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleUser, llm.RoleAssistant:
			conversation = append(conversation, *msg)
		default:
			return "", nil, fmt.Errorf("invalid role %q at index %d", msg.Role, i)
		}
	}

	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(conversation) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	// Merge consecutive same-role messages into one.
	for i := range conversation {
		msg := &conversation[i]
		if len(alternating) > 0 && alternating[len(alternating)-1].Role == msg.Role {
			prev := &alternating[len(alternating)-1]
			if msg.Content != "" {
				if prev.Content != "" {
					prev.Content += "\n\n" + msg.Content
				} else {
					prev.Content = msg.Content
				}
			}
			prev.ToolCalls = append(prev.ToolCalls, msg.ToolCalls...)
			prev.ToolResults = append(prev.ToolResults, msg.ToolResults...)
			continue
		}
		alternating = append(alternating, *msg)
	}

	if alternating[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", alternating[0].Role)
	}
	if alternating[len(alternating)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", alternating[len(alternating)-1].Role)
	}

	return systemPrompt, alternating, nil
}

// buildContentBlocks converts one merged message into Anthropic content blocks.
// Assistant messages carry text plus tool_use blocks; user messages carry
// tool_result blocks plus text, mirroring the shape the API returned them in.
func buildContentBlocks(msg *llm.CompletionMessage) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion

	appendText := func() {
		if msg.Content == "" {
			return
		}
		textBlock := anthropic.TextBlockParam{Text: msg.Content, Type: "text"}
		if msg.CacheControl != nil {
			cacheControl := anthropic.NewCacheControlEphemeralParam()
			switch msg.CacheControl.TTL {
			case "5m":
				cacheControl.TTL = anthropic.CacheControlEphemeralTTLTTL5m
			case "1h":
				cacheControl.TTL = anthropic.CacheControlEphemeralTTLTTL1h
			}
			textBlock.CacheControl = cacheControl
		}
		blocks = append(blocks, anthropic.ContentBlockParamUnion{OfText: &textBlock})
	}

	// Tool results lead user messages so they directly answer the preceding
	// assistant turn's tool_use blocks.
	for i := range msg.ToolResults {
		result := &msg.ToolResults[i]
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: result.ToolCallID,
				IsError:   anthropic.Bool(result.IsError),
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: result.Content, Type: "text"}},
				},
			},
		})
	}

	appendText()

	for i := range msg.ToolCalls {
		call := &msg.ToolCalls[i]
		input, err := json.Marshal(call.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool call %s input: %w", call.Name, err)
		}
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    call.ID,
				Name:  call.Name,
				Input: json.RawMessage(input),
			},
		})
	}

	if len(blocks) == 0 {
		// Anthropic rejects empty content; placeholder keeps alternation intact.
		blocks = append(blocks, anthropic.NewTextBlock("(empty)"))
	}

	return blocks, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		blocks, blockErr := buildContentBlocks(msg)
		if blockErr != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, blockErr, "content block conversion failed")
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: blocks,
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
		switch in.ToolChoice {
		case "any", "tool":
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAny: &anthropic.ToolChoiceAnyParam{},
			}
		default:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfAuto: &anthropic.ToolChoiceAutoParam{},
			}
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var responseText string
	var toolCalls []llm.ToolCall

	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			responseText += textBlock.Text
		case "tool_use":
			toolUseBlock := block.AsToolUse()
			var callParams map[string]any
			if err := json.Unmarshal(toolUseBlock.Input, &callParams); err != nil {
				return llm.CompletionResponse{}, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         toolUseBlock.ID,
				Name:       toolUseBlock.Name,
				Parameters: callParams,
			})
		}
	}

	return llm.CompletionResponse{
		Content:    responseText,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
	}, nil
}

// convertTools maps tool definitions into Anthropic tool params.
func convertTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]

		var properties any
		if len(def.InputSchema.Properties) > 0 {
			props := make(map[string]any, len(def.InputSchema.Properties))
			for name, prop := range def.InputSchema.Properties {
				propMap := map[string]any{"type": prop.Type}
				if prop.Description != "" {
					propMap["description"] = prop.Description
				}
				if len(prop.Enum) > 0 {
					propMap["enum"] = prop.Enum
				}
				props[name] = propMap
			}
			properties = props
		}

		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: properties,
			Required:   def.InputSchema.Required,
		}
		tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if tool.OfTool != nil && def.Description != "" {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

// Stream implements the llm.LLMClient interface by draining a full completion.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (c *ClaudeClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to structured error types.
func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}

	if ctxErr := llmerrors.ClassifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	errStr := err.Error()
	if statusCode := llmerrors.ExtractStatusCode(errStr); statusCode != 0 {
		return llmerrors.ClassifyStatusCode(statusCode, err)
	}

	return llmerrors.ClassifyErrorText(err)
}

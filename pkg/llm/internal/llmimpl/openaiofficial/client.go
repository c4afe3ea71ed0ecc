// Package openaiofficial provides the OpenAI backend using the official Go SDK.
package openaiofficial

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"guildbot/pkg/config"
	"guildbot/pkg/llm"
	"guildbot/pkg/llm/llmerrors"
	"guildbot/pkg/tools"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.LLMClient.
//
//nolint:govet // Simple client struct, logical grouping preferred
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClient creates a raw OpenAI client (middleware applied at a higher level).
func NewOfficialClient(apiKey, model string) llm.LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OfficialClient{
		client: client,
		model:  model,
	}
}

// renderTranscript flattens the conversation into a single input string for
// the Responses API. Tool exchanges are rendered inline so regeneration
// rounds keep their research context.
func renderTranscript(messages []llm.CompletionMessage) string {
	var sb strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&sb, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			if msg.Content != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n\n", msg.Content)
			}
			for j := range msg.ToolCalls {
				call := &msg.ToolCalls[j]
				args, _ := json.Marshal(call.Parameters)
				fmt.Fprintf(&sb, "Assistant called tool %s(%s) [call %s]\n\n", call.Name, args, call.ID)
			}
		case llm.RoleUser:
			for j := range msg.ToolResults {
				result := &msg.ToolResults[j]
				label := "Tool result"
				if result.IsError {
					label = "Tool error"
				}
				fmt.Fprintf(&sb, "%s [call %s]: %s\n\n", label, result.ToolCallID, result.Content)
			}
			if msg.Content != "" {
				sb.WriteString(msg.Content)
				sb.WriteString("\n\n")
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Complete implements the llm.LLMClient interface via the Responses API.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	// Cap MaxTokens to the model's limit to prevent API errors.
	maxTokens := in.MaxTokens
	if modelInfo, exists := config.KnownModels[o.model]; exists && modelInfo.MaxOutputTokens > 0 {
		if maxTokens > modelInfo.MaxOutputTokens {
			maxTokens = modelInfo.MaxOutputTokens
		}
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(renderTranscript(in.Messages))},
	}

	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			// Text is collected below via OutputText; reasoning items are
			// internal chain-of-thought and never surfaced.
			continue
		}
		funcItem := item.AsFunctionCall()
		var parameters map[string]any
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &parameters); err != nil {
				continue
			}
		}
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:         funcItem.ID,
			Name:       funcItem.Name,
			Parameters: parameters,
		})
	}

	content := resp.OutputText()
	if content == "" && len(toolCalls) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI response contained no text or tool calls")
	}

	return llm.CompletionResponse{
		Content:   content,
		ToolCalls: toolCalls,
	}, nil
}

func convertTools(defs []tools.ToolDefinition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, len(defs))
	for i := range defs {
		def := &defs[i]
		properties := make(map[string]any, len(def.InputSchema.Properties))
		for name, prop := range def.InputSchema.Properties {
			schema := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				schema["description"] = prop.Description
			}
			if len(prop.Enum) > 0 {
				schema["enum"] = prop.Enum
			}
			properties[name] = schema
		}
		out[i] = responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters: openai.FunctionParameters(map[string]any{
					"type":       "object",
					"properties": properties,
					"required":   def.InputSchema.Required,
				}),
			},
		}
	}
	return out
}

// Stream implements the llm.LLMClient interface by draining a full completion.
//
//nolint:gocritic // CompletionRequest passed by value matches the interface
func (o *OfficialClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	go func() {
		defer close(ch)
		resp, err := o.Complete(ctx, in)
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
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classifyError(err error) *llmerrors.Error {
	if err == nil {
		return nil
	}
	if ctxErr := llmerrors.ClassifyContextError(err); ctxErr != nil {
		return ctxErr
	}
	if statusCode := llmerrors.ExtractStatusCode(err.Error()); statusCode != 0 {
		return llmerrors.ClassifyStatusCode(statusCode, err)
	}
	return llmerrors.ClassifyErrorText(err)
}

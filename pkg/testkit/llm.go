// Package testkit provides shared fakes and mock services for guildbot tests:
// a scripted LLM client, an in-memory platform recorder and event bus, a stub
// sandbox runner, and an httptest guild API server.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"guildbot/pkg/llm"
)

// ScriptedLLM replays a fixed sequence of completion responses and records
// every request it receives. When the script runs out, Complete returns an
// error so tests fail loudly instead of looping. Safe for concurrent use.
type ScriptedLLM struct {
	mu        sync.Mutex
	responses []llm.CompletionResponse
	requests  []llm.CompletionRequest
	err       error
	model     string
}

// NewScriptedLLM creates a client that answers with the given responses in
// order.
func NewScriptedLLM(responses ...llm.CompletionResponse) *ScriptedLLM {
	return &ScriptedLLM{responses: responses, model: "scripted-model"}
}

// FailWith makes every Complete call return err instead of a scripted
// response.
func (s *ScriptedLLM) FailWith(err error) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Complete records the request and pops the next scripted response.
func (s *ScriptedLLM) Complete(_ context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, in)
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("scripted llm: no response left for request %d", len(s.requests))
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

// Stream delivers the next scripted response as a single chunk.
func (s *ScriptedLLM) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := s.Complete(ctx, in)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Content: resp.Content}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// GetModelName returns the fake's model name.
func (s *ScriptedLLM) GetModelName() string {
	return s.model
}

// Requests returns a copy of every request seen so far.
func (s *ScriptedLLM) Requests() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// TextResponse builds a plain-text completion response.
func TextResponse(content string) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, StopReason: "end_turn"}
}

// ToolCallResponse builds a completion response that requests tool calls.
func ToolCallResponse(content string, calls ...llm.ToolCall) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, ToolCalls: calls, StopReason: "tool_use"}
}

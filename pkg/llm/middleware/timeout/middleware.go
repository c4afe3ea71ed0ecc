// Package timeout provides per-request timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"guildbot/pkg/llm"
)

// Middleware wraps an LLM client with per-request timeout logic so a hung
// provider call cannot stall its calling stage forever. The failed call fails
// that stage; nothing is retried.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				// Streams outlive this call, so a deferred cancel would kill
				// them mid-flight. Callers bound streams with their own ctx.
				return next.Stream(ctx, req)
			},
			next.GetModelName,
		)
	}
}

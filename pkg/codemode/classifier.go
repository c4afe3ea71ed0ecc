package codemode

import (
	"context"
	"strings"

	"guildbot/pkg/llm"
	"guildbot/pkg/logx"
)

// Classifier decides whether a mention is an actionable task request.
type Classifier struct {
	client llm.LLMClient
	logger *logx.Logger
}

// NewClassifier creates a classifier over the given model client.
func NewClassifier(client llm.LLMClient) *Classifier {
	return &Classifier{
		client: client,
		logger: logx.NewLogger("classifier"),
	}
}

// Classify makes one deterministic model call and returns true for task
// requests. It has no side effects; a model failure is fatal for the request.
func (c *Classifier) Classify(ctx context.Context, text string) (bool, error) {
	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(classifierSystemPrompt),
			llm.NewUserMessage(classifierUserPrompt(text)),
		},
		MaxTokens:   32,
		Temperature: llm.TemperatureDeterministic,
	}

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return false, NewStageError(StageClassification, err)
	}

	verdict := strings.ToUpper(strings.TrimSpace(resp.Content))
	isTask := strings.HasPrefix(verdict, "YES")
	c.logger.Debug("Classified message as task=%v (verdict %q)", isTask, verdict)
	return isTask, nil
}

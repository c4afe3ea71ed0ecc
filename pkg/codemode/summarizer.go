package codemode

import (
	"context"
	"strings"

	"guildbot/pkg/llm"
	"guildbot/pkg/logx"
	"guildbot/pkg/utils"
)

// Evidence bounds for the summary call. Logs get a generous prefix, errors a
// tight one; lines are capped so one long line cannot eat the budget.
const (
	summaryMaxLogLines   = 50
	summaryMaxErrorLines = 10
	summaryMaxLineChars  = 400
)

// SummaryInput is the execution evidence the summary is drawn from.
type SummaryInput struct {
	RequestBody string
	Logs        []string
	Errors      []string
	Success     bool
}

// Summarizer condenses an execution outcome into a short user-facing report.
type Summarizer struct {
	client llm.LLMClient
	logger *logx.Logger
}

// NewSummarizer creates a summarizer over the given model client.
func NewSummarizer(client llm.LLMClient) *Summarizer {
	return &Summarizer{
		client: client,
		logger: logx.NewLogger("summarizer"),
	}
}

// Summarize makes one model call over the bounded evidence. Failure is fatal
// for the request; there is no fallback summary.
func (s *Summarizer) Summarize(ctx context.Context, in *SummaryInput) (string, error) {
	logs := utils.PrefixLines(in.Logs, summaryMaxLogLines, summaryMaxLineChars)
	errorLines := utils.PrefixLines(in.Errors, summaryMaxErrorLines, summaryMaxLineChars)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(summarizerSystemPrompt),
		llm.NewUserMessage(summarizerUserPrompt(in.RequestBody, logs, errorLines, in.Success)),
	})
	req.MaxTokens = 512
	req.Temperature = llm.TemperatureDefault

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return "", NewStageError(StageSummarization, err)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", StageErrorf(StageSummarization, "model returned an empty summary")
	}
	s.logger.Debug("Summary: %s", utils.TruncateString(summary, 200))
	return summary, nil
}

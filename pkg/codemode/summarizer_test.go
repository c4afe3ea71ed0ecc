package codemode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/pkg/testkit"
	"guildbot/pkg/utils"
)

func TestSummarizerReturnsTrimmedSummary(t *testing.T) {
	client := testkit.NewScriptedLLM(testkit.TextResponse("  Posted 3 messages to #general.  \n"))
	summary, err := NewSummarizer(client).Summarize(context.Background(), &SummaryInput{
		RequestBody: "post three messages",
		Logs:        []string{"posted 1", "posted 2", "posted 3"},
		Success:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Posted 3 messages to #general.", summary)
}

func TestSummarizerBoundsEvidence(t *testing.T) {
	logs := make([]string, 60)
	for i := range logs {
		logs[i] = fmt.Sprintf("log line %03d", i)
	}
	logs[10] = "padded " + strings.Repeat("x", 600)
	errs := make([]string, 12)
	for i := range errs {
		errs[i] = fmt.Sprintf("error line %02d", i)
	}

	client := testkit.NewScriptedLLM(testkit.TextResponse("Lots happened."))
	_, err := NewSummarizer(client).Summarize(context.Background(), &SummaryInput{
		RequestBody: "noisy task",
		Logs:        logs,
		Errors:      errs,
		Success:     false,
	})
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[1].Content

	// First 50 log lines and first 10 error lines, long lines cut.
	assert.Contains(t, prompt, "log line 049")
	assert.NotContains(t, prompt, "log line 050")
	assert.Contains(t, prompt, "error line 09")
	assert.NotContains(t, prompt, "error line 10")
	assert.Contains(t, prompt, utils.TruncationSuffix)
	assert.Contains(t, prompt, "did not complete successfully")
}

func TestSummarizerReportsEmptyLogs(t *testing.T) {
	client := testkit.NewScriptedLLM(testkit.TextResponse("Nothing to report."))
	_, err := NewSummarizer(client).Summarize(context.Background(), &SummaryInput{
		RequestBody: "quiet task",
		Success:     true,
	})
	require.NoError(t, err)

	prompt := client.Requests()[0].Messages[1].Content
	assert.Contains(t, prompt, "(none)")
	assert.NotContains(t, prompt, "Errors:")
}

func TestSummarizerFailsOnEmptySummary(t *testing.T) {
	client := testkit.NewScriptedLLM(testkit.TextResponse("   \n"))
	_, err := NewSummarizer(client).Summarize(context.Background(), &SummaryInput{RequestBody: "x", Success: true})
	require.Error(t, err)
	assert.Equal(t, StageSummarization, StageOf(err))
}

func TestSummarizerWrapsModelError(t *testing.T) {
	client := testkit.NewScriptedLLM().FailWith(errors.New("model offline"))
	_, err := NewSummarizer(client).Summarize(context.Background(), &SummaryInput{RequestBody: "x", Success: true})
	require.Error(t, err)
	assert.Equal(t, StageSummarization, StageOf(err))
}

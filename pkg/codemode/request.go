package codemode

import (
	"time"

	"github.com/google/uuid"

	"guildbot/pkg/platform"
)

// TerminalState is the final disposition of a request.
type TerminalState string

// Terminal states. Every request ends in exactly one of these.
const (
	StateCompleted        TerminalState = "completed"
	StateCancelled        TerminalState = "cancelled"
	StateTimedOut         TerminalState = "timed_out"
	StateValidationFailed TerminalState = "validation_failed"
	StateNotCode          TerminalState = "not_code"
	StateFailed           TerminalState = "failed"
)

// Request is one accepted code-mode task. Fields are immutable after
// construction; all mutable per-request state (thread, status message,
// feedback) lives in the orchestrator's round loop.
type Request struct {
	CreatedAt time.Time
	ID        string
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	Body      string
}

// NewRequest builds a Request from the triggering message.
func NewRequest(msg *platform.Message) *Request {
	return &Request{
		CreatedAt: time.Now(),
		ID:        uuid.NewString(),
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		AuthorID:  msg.Author.ID,
		Body:      msg.Content,
	}
}

// GenerationResult is the output of one generator round. Regeneration
// produces a new result; earlier ones are superseded, never mutated.
type GenerationResult struct {
	Code      string
	Duration  time.Duration
	ToolCalls int
}

// FeedbackHistory accumulates the user's feedback messages for one request
// in submission order. Not safe for concurrent use; the orchestrator only
// touches it between rounds.
type FeedbackHistory struct {
	entries []string
}

// Add appends one feedback message.
func (h *FeedbackHistory) Add(text string) {
	h.entries = append(h.entries, text)
}

// All returns the feedback in submission order.
func (h *FeedbackHistory) All() []string {
	return h.entries
}

// Len returns the number of feedback entries.
func (h *FeedbackHistory) Len() int {
	return len(h.entries)
}

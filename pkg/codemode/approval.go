package codemode

import (
	"context"
	"strings"
	"sync"
	"time"

	"guildbot/pkg/logx"
	"guildbot/pkg/platform"
)

// Control component ids on the status message.
const (
	CustomIDApprove = "codemode_approve"
	CustomIDCancel  = "codemode_cancel"
)

// DefaultApprovalTimeout bounds how long a round waits for a decision.
const DefaultApprovalTimeout = 60 * time.Second

// Decision is the outcome of one approval round.
type Decision string

// Approval decisions.
const (
	DecisionApproved  Decision = "approved"
	DecisionCancelled Decision = "cancelled"
	DecisionTimeout   Decision = "timeout"
	DecisionFeedback  Decision = "feedback"
)

// ApprovalOutcome carries the round's single resolution. FeedbackMessage is
// set only for feedback decisions and points at the user's message so the
// caller can acknowledge it.
type ApprovalOutcome struct {
	FeedbackMessage *platform.Message
	Decision        Decision
	Feedback        string
}

// RoundState tracks one approval round's lifecycle.
type RoundState string

// Round states.
const (
	RoundPresenting       RoundState = "PRESENTING"
	RoundAwaitingDecision RoundState = "AWAITING_DECISION"
	RoundApproved         RoundState = "APPROVED"
	RoundCancelled        RoundState = "CANCELLED"
	RoundTimedOut         RoundState = "TIMED_OUT"
	RoundFeedbackReceived RoundState = "FEEDBACK_RECEIVED"
)

// roundTransitions defines the round state machine. Terminal states have no
// outgoing transitions.
//
//nolint:gochecknoglobals // Intentional package-level constant for state machine definition
var roundTransitions = map[RoundState][]RoundState{
	RoundPresenting:       {RoundAwaitingDecision},
	RoundAwaitingDecision: {RoundApproved, RoundCancelled, RoundTimedOut, RoundFeedbackReceived},
}

// terminalRoundState maps a decision to its terminal state.
func terminalRoundState(d Decision) RoundState {
	switch d {
	case DecisionApproved:
		return RoundApproved
	case DecisionCancelled:
		return RoundCancelled
	case DecisionFeedback:
		return RoundFeedbackReceived
	case DecisionTimeout:
		return RoundTimedOut
	default:
		return RoundTimedOut
	}
}

// EventSource is the gateway surface the round listens on. Satisfied by
// *platform.Session.
type EventSource interface {
	AddHandler(handler any) platform.HandlerRemover
}

// InteractionAcker acknowledges component interactions within the platform's
// response window. Satisfied by *platform.Client.
type InteractionAcker interface {
	InteractionRespond(ctx context.Context, interaction *platform.Interaction, responseType int) error
}

// ApprovalRound races a button decision against a feedback message for one
// presented snippet. Exactly one outcome per round; both listeners are gone
// before AwaitDecision returns.
type ApprovalRound struct {
	events  EventSource
	acker   InteractionAcker
	logger  *logx.Logger
	state   RoundState
	timeout time.Duration
}

// NewApprovalRound creates a round in the Presenting state. timeout <= 0
// selects the default window.
func NewApprovalRound(events EventSource, acker InteractionAcker, timeout time.Duration) *ApprovalRound {
	if timeout <= 0 {
		timeout = DefaultApprovalTimeout
	}
	return &ApprovalRound{
		events:  events,
		acker:   acker,
		logger:  logx.NewLogger("approval"),
		state:   RoundPresenting,
		timeout: timeout,
	}
}

// State returns the round's current state.
func (r *ApprovalRound) State() RoundState {
	return r.state
}

// transition moves the round through its state machine; moving out of a
// terminal state is refused.
func (r *ApprovalRound) transition(to RoundState) error {
	for _, allowed := range roundTransitions[r.state] {
		if allowed == to {
			r.logger.Debug("🔄 Round transition %s -> %s", r.state, to)
			r.state = to
			return nil
		}
	}
	return StageErrorf(StageApproval, "invalid round transition %s -> %s", r.state, to)
}

// AwaitDecision runs the race: button clicks on the status message versus a
// feedback message in the thread, both filtered to the requesting author,
// against the round's timeout. The first settle wins; the loser is
// unregistered synchronously and later resolution attempts have no effect.
func (r *ApprovalRound) AwaitDecision(ctx context.Context, threadID, statusMessageID, authorID string) (*ApprovalOutcome, error) {
	if err := r.transition(RoundAwaitingDecision); err != nil {
		return nil, err
	}

	decisionCh := make(chan *ApprovalOutcome, 1)
	var once sync.Once
	resolve := func(o *ApprovalOutcome) bool {
		won := false
		once.Do(func() {
			decisionCh <- o
			won = true
		})
		return won
	}

	removeInteractions := r.events.AddHandler(func(_ *platform.Session, ic *platform.InteractionCreate) {
		if ic.Type != platform.InteractionTypeComponent || ic.Data == nil {
			return
		}
		if ic.Message == nil || ic.Message.ID != statusMessageID {
			return
		}
		if ic.AuthorID() != authorID {
			return
		}

		var decision Decision
		switch ic.Data.CustomID {
		case CustomIDApprove:
			decision = DecisionApproved
		case CustomIDCancel:
			decision = DecisionCancelled
		default:
			return
		}
		if resolve(&ApprovalOutcome{Decision: decision}) {
			r.ack(ic.Interaction)
		}
	})
	removeMessages := r.events.AddHandler(func(_ *platform.Session, mc *platform.MessageCreate) {
		if mc.ChannelID != threadID {
			return
		}
		if mc.Author == nil || mc.Author.Bot || mc.Author.ID != authorID {
			return
		}
		text := strings.TrimSpace(mc.Content)
		if text == "" {
			return
		}
		resolve(&ApprovalOutcome{
			Decision:        DecisionFeedback,
			Feedback:        text,
			FeedbackMessage: mc.Message,
		})
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var outcome *ApprovalOutcome
	select {
	case outcome = <-decisionCh:
	case <-timer.C:
		outcome = &ApprovalOutcome{Decision: DecisionTimeout}
	case <-ctx.Done():
		// Transport going away is indistinguishable from silence.
		outcome = &ApprovalOutcome{Decision: DecisionTimeout}
	}

	removeInteractions()
	removeMessages()

	if err := r.transition(terminalRoundState(outcome.Decision)); err != nil {
		return nil, err
	}
	r.logger.Info("✅ Approval round resolved: %s", outcome.Decision)
	return outcome, nil
}

// ack acknowledges a button press with a deferred update. Cosmetic: failure
// is logged and swallowed.
func (r *ApprovalRound) ack(interaction *platform.Interaction) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.acker.InteractionRespond(ctx, interaction, platform.InteractionResponseDeferredUpdate); err != nil {
		r.logger.Warn("⚠️ Interaction ack failed: %v", err)
	}
}

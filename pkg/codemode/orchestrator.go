// Package codemode implements the mention-to-execution pipeline: classify a
// request, generate code with an agentic tool loop, validate its syntax,
// present it for approval, run the approved program in an isolated sandbox,
// and report a summarized outcome.
package codemode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"guildbot/pkg/logx"
	"guildbot/pkg/metrics"
	"guildbot/pkg/platform"
	"guildbot/pkg/tools"
	"guildbot/pkg/utils"
)

// typingInterval keeps the indicator alive; the platform drops it after ~10s.
const typingInterval = 8 * time.Second

// Platform is the REST surface the orchestrator drives. Satisfied by
// *platform.Client.
type Platform interface {
	SendMessage(ctx context.Context, channelID string, send *platform.MessageSend) (*platform.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, edit *platform.MessageEdit) (*platform.Message, error)
	BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
	StartThreadFromMessage(ctx context.Context, channelID, messageID, name string) (*platform.Channel, error)
	TriggerTyping(ctx context.Context, channelID string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	InteractionRespond(ctx context.Context, interaction *platform.Interaction, responseType int) error
}

// OrchestratorConfig wires an orchestrator.
type OrchestratorConfig struct {
	Client          Platform
	Events          EventSource
	Classifier      *Classifier
	Generator       *Generator
	Executor        *Executor
	Summarizer      *Summarizer
	APIBaseURL      string
	SandboxToken    string
	GuildID         string
	ApprovalTimeout time.Duration
}

// Orchestrator sequences one request through the pipeline. Safe for
// concurrent HandleRequest calls; per-request state lives on the stack.
type Orchestrator struct {
	client          Platform
	events          EventSource
	classifier      *Classifier
	generator       *Generator
	executor        *Executor
	summarizer      *Summarizer
	logger          *logx.Logger
	apiBaseURL      string
	sandboxToken    string
	guildID         string
	approvalTimeout time.Duration
}

// NewOrchestrator assembles the pipeline from its stages.
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		client:          cfg.Client,
		events:          cfg.Events,
		classifier:      cfg.Classifier,
		generator:       cfg.Generator,
		executor:        cfg.Executor,
		summarizer:      cfg.Summarizer,
		logger:          logx.NewLogger("codemode"),
		apiBaseURL:      cfg.APIBaseURL,
		sandboxToken:    cfg.SandboxToken,
		guildID:         cfg.GuildID,
		approvalTimeout: cfg.ApprovalTimeout,
	}
}

// HandleRequest runs the full pipeline for one request and returns its
// terminal state. Callers run it on a dedicated goroutine; nothing here may
// block the gateway read loop.
func (o *Orchestrator) HandleRequest(ctx context.Context, req *Request) TerminalState {
	o.logger.Info("📥 Request %s from %s: %s", req.ID, req.AuthorID, utils.TruncateString(req.Body, 120))

	state := o.handle(ctx, req)

	metrics.CodeRequestsTotal.WithLabelValues(string(state)).Inc()
	o.logger.Info("📤 Request %s finished: %s", req.ID, state)
	return state
}

//nolint:gocognit,cyclop,funlen // The round loop reads best as one sequence
func (o *Orchestrator) handle(ctx context.Context, req *Request) TerminalState {
	ctx = context.WithValue(ctx, tools.RequestIDContextKey, req.ID)

	isTask, err := o.classifier.Classify(ctx, req.Body)
	if err != nil {
		o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StageOf(err), err)
		o.notifyChannel(ctx, req, "I couldn't process that request.")
		return StateFailed
	}
	if !isTask {
		return StateNotCode
	}

	// Cosmetic acknowledgement that the task was picked up.
	o.react(ctx, req.ChannelID, req.MessageID, "👀")

	thread, err := o.client.StartThreadFromMessage(ctx, req.ChannelID, req.MessageID, threadName(req.Body))
	if err != nil {
		o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StageThreadCreation, err)
		o.notifyChannel(ctx, req, "I couldn't open a thread for this task.")
		return StateFailed
	}

	status, err := o.client.SendMessage(ctx, thread.ID, &platform.MessageSend{Content: "⏳ Generating code..."})
	if err != nil {
		o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StagePresentation, err)
		return StateFailed
	}

	history := &FeedbackHistory{}
	currentCode := ""
	var progressIDs []string

	for {
		metrics.GenerationRounds.Inc()

		// The heartbeat stops when generation finishes, success or not.
		stopTyping := o.startTypingHeartbeat(thread.ID)
		gen, err := func() (*GenerationResult, error) {
			defer stopTyping()
			return o.generator.Generate(ctx, &GenerationInput{
				RequestBody: req.Body,
				CurrentCode: currentCode,
				Feedback:    history.All(),
				Notify:      o.progressNotifier(ctx, thread.ID, &progressIDs),
			})
		}()

		// Progress messages go before anything else is shown.
		o.deleteProgress(ctx, thread.ID, &progressIDs)

		if err != nil {
			o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StageOf(err), err)
			o.finalizeStatus(ctx, thread.ID, status.ID, "❌ Code generation failed. This task was abandoned.")
			return StateFailed
		}
		currentCode = gen.Code

		if validation := Validate(gen.Code); !validation.Valid {
			o.logger.Warn("⚠️ Request %s: generated code failed validation (%d diagnostics)",
				req.ID, len(validation.Diagnostics))
			content := "❌ The generated code has syntax errors and will not be run:\n```\n" +
				FormatDiagnostics(validation.Diagnostics) + "\n```"
			o.finalizeStatus(ctx, thread.ID, status.ID, content)
			return StateValidationFailed
		}

		presented := presentContent(gen)
		buttons := []platform.ActionRow{platform.NewActionRow(
			platform.NewButton(platform.ButtonSuccess, "Approve", CustomIDApprove),
			platform.NewButton(platform.ButtonDanger, "Cancel", CustomIDCancel),
		)}
		if _, err := o.client.EditMessage(ctx, thread.ID, status.ID, &platform.MessageEdit{
			Content:    &presented,
			Components: &buttons,
		}); err != nil {
			o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StagePresentation, err)
			return StateFailed
		}

		round := NewApprovalRound(o.events, o.client, o.approvalTimeout)
		outcome, err := round.AwaitDecision(ctx, thread.ID, status.ID, req.AuthorID)
		if err != nil {
			o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StageOf(err), err)
			o.finalizeStatus(ctx, thread.ID, status.ID, presented+"\n\n❌ This task was abandoned.")
			return StateFailed
		}
		metrics.ApprovalDecisionsTotal.WithLabelValues(string(outcome.Decision)).Inc()

		switch outcome.Decision {
		case DecisionApproved:
			return o.execute(ctx, req, thread.ID, status.ID, currentCode)

		case DecisionFeedback:
			history.Add(outcome.Feedback)
			if outcome.FeedbackMessage != nil {
				o.react(ctx, outcome.FeedbackMessage.ChannelID, outcome.FeedbackMessage.ID, "✅")
			}
			o.finalizeStatus(ctx, thread.ID, status.ID, "🔄 Regenerating with feedback...")
			continue

		case DecisionCancelled:
			o.finalizeStatus(ctx, thread.ID, status.ID, presented+"\n\n❌ Cancelled by the requester. Nothing was run.")
			return StateCancelled

		case DecisionTimeout:
			o.finalizeStatus(ctx, thread.ID, status.ID, presented+"\n\n⏱️ Approval window expired. Nothing was run.")
			return StateTimedOut
		}
	}
}

// execute runs the approved snippet end to end: build, sandbox, summarize,
// report. It owns every status transition past approval.
func (o *Orchestrator) execute(ctx context.Context, req *Request, threadID, statusID, code string) TerminalState {
	if err := o.editStatus(ctx, threadID, statusID, "⚙️ Executing...", emptyComponents()); err != nil {
		o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StagePresentation, err)
		return StateFailed
	}

	program, err := BuildScript(code, &RunContext{
		APIBaseURL: o.apiBaseURL,
		Token:      o.sandboxToken,
		GuildID:    o.guildID,
		ChannelID:  req.ChannelID,
		MessageID:  req.MessageID,
		AuthorID:   req.AuthorID,
	})
	if err != nil {
		o.logger.Error("❌ Request %s failed building the runner: %v", req.ID, err)
		o.finalizeStatus(ctx, threadID, statusID, "❌ Internal error preparing the runner. This task was abandoned.")
		return StateFailed
	}

	result := o.executor.Execute(ctx, program)

	summary, err := o.summarizer.Summarize(ctx, &SummaryInput{
		RequestBody: req.Body,
		Logs:        result.Logs,
		Errors:      result.Errors,
		Success:     result.Status == ExecSuccess,
	})
	if err != nil {
		o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StageOf(err), err)
		o.finalizeStatus(ctx, threadID, statusID, "❌ The task ran but its outcome could not be summarized.")
		return StateFailed
	}

	o.finalizeStatus(ctx, threadID, statusID, "✅ Finished. Result below.")

	send := &platform.MessageSend{Content: resultContent(req.AuthorID, summary, &result)}
	if len(result.Logs) > 0 {
		send.Files = append(send.Files, platform.File{
			Name:   "logs.txt",
			Reader: strings.NewReader(strings.Join(result.Logs, "\n") + "\n"),
		})
	}
	if len(result.Errors) > 0 {
		send.Files = append(send.Files, platform.File{
			Name:   "errors.txt",
			Reader: strings.NewReader(strings.Join(result.Errors, "\n") + "\n"),
		})
	}
	if _, err := o.client.SendMessage(ctx, threadID, send); err != nil {
		o.logger.Error("❌ Request %s failed at %s: %v", req.ID, StagePresentation, err)
		return StateFailed
	}

	return StateCompleted
}

// presentContent renders the snippet with its generation header.
func presentContent(gen *GenerationResult) string {
	return fmt.Sprintf("Generated in %.1fs using %d tool calls. Approve to run it, Cancel to stop, or reply here with feedback.\n```go\n%s\n```",
		gen.Duration.Seconds(), gen.ToolCalls, gen.Code)
}

// resultContent renders the final report. The footer format is load-bearing:
// user-facing automations parse it.
func resultContent(authorID, summary string, result *ExecutionResult) string {
	var phrase string
	switch result.Status {
	case ExecSuccess:
		phrase = "successfully"
	case ExecTimeout:
		phrase = "timed out"
	case ExecError:
		phrase = "with errors"
	}
	return fmt.Sprintf("<@%s> %s\n\n-# This task ran %s in %.2f seconds. It generated %d logs and %d errors.",
		authorID, summary, phrase, result.Duration.Seconds(), len(result.Logs), len(result.Errors))
}

// threadName derives a thread title from the request body.
func threadName(body string) string {
	name := strings.TrimSpace(body)
	name = utils.TruncateString(name, 60)
	if name == "" {
		name = "Code task"
	}
	return name
}

// startTypingHeartbeat fires the typing indicator immediately and then on an
// interval until the returned stop runs. Stop is idempotent.
func (o *Orchestrator) startTypingHeartbeat(channelID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		o.typing(channelID)
		for {
			select {
			case <-ticker.C:
				o.typing(channelID)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// typing triggers one indicator pulse. Best-effort.
func (o *Orchestrator) typing(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.client.TriggerTyping(ctx, channelID); err != nil {
		o.logger.Debug("typing indicator failed: %v", err)
	}
}

// progressNotifier posts step notifications as thread messages, remembering
// their ids for batch deletion. Purely informational: failures are logged
// and dropped.
func (o *Orchestrator) progressNotifier(ctx context.Context, threadID string, ids *[]string) StepNotifier {
	return func(n StepNotification) {
		var text string
		switch n.Kind {
		case StepTool:
			text = fmt.Sprintf("🔍 Running `%s`", n.Tool)
			if n.Summary != "" {
				text += fmt.Sprintf(" (%s)", n.Summary)
			}
		case StepThought:
			text = "💭 " + n.Summary
		default:
			return
		}

		msg, err := o.client.SendMessage(ctx, threadID, &platform.MessageSend{Content: text})
		if err != nil {
			o.logger.Debug("progress message failed: %v", err)
			return
		}
		*ids = append(*ids, msg.ID)
	}
}

// deleteProgress batch-deletes accumulated progress messages. Best-effort:
// the slice is cleared regardless of failures.
func (o *Orchestrator) deleteProgress(ctx context.Context, threadID string, ids *[]string) {
	if len(*ids) == 0 {
		return
	}
	if err := o.client.BulkDeleteMessages(ctx, threadID, *ids); err != nil {
		o.logger.Warn("⚠️ Failed to delete %d progress messages: %v", len(*ids), err)
	}
	*ids = (*ids)[:0]
}

// editStatus rewrites the status message. A nil components pointer leaves
// components untouched; emptyComponents() strips them.
func (o *Orchestrator) editStatus(ctx context.Context, threadID, messageID, content string, components *[]platform.ActionRow) error {
	_, err := o.client.EditMessage(ctx, threadID, messageID, &platform.MessageEdit{
		Content:    &content,
		Components: components,
	})
	if err != nil {
		return NewStageError(StagePresentation, err)
	}
	return nil
}

// finalizeStatus applies a terminal annotation and strips any buttons so the
// message cannot mislead. Failure is logged; there is nothing left to abort.
func (o *Orchestrator) finalizeStatus(ctx context.Context, threadID, messageID, content string) {
	if err := o.editStatus(ctx, threadID, messageID, content, emptyComponents()); err != nil {
		o.logger.Warn("⚠️ Failed to finalize status message %s: %v", messageID, err)
	}
}

// react adds a cosmetic reaction. Failure is logged and swallowed.
func (o *Orchestrator) react(ctx context.Context, channelID, messageID, emoji string) {
	if err := o.client.AddReaction(ctx, channelID, messageID, emoji); err != nil {
		o.logger.Debug("reaction %s failed: %v", emoji, err)
	}
}

// notifyChannel posts a short failure notice to the originating channel when
// no thread exists yet. Best-effort.
func (o *Orchestrator) notifyChannel(ctx context.Context, req *Request, text string) {
	content := fmt.Sprintf("<@%s> ⚠️ %s", req.AuthorID, text)
	if _, err := o.client.SendMessage(ctx, req.ChannelID, &platform.MessageSend{Content: content}); err != nil {
		o.logger.Debug("failure notice failed: %v", err)
	}
}

// emptyComponents strips all components from an edited message.
func emptyComponents() *[]platform.ActionRow {
	empty := []platform.ActionRow{}
	return &empty
}

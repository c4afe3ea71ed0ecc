// Package router dispatches gateway messages to their handlers: prefix and
// mention commands, Code Mode task requests, and a conversational fallback
// for everything else addressed at the bot.
package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"guildbot/pkg/codemode"
	"guildbot/pkg/config"
	"guildbot/pkg/llm"
	"guildbot/pkg/logx"
	"guildbot/pkg/metrics"
	"guildbot/pkg/persistence"
	"guildbot/pkg/platform"
	"guildbot/pkg/streak"
	"guildbot/pkg/utils"
)

// replyLimit keeps replies under the platform's 2000-character cap.
const replyLimit = 1900

// dispatchTimeout bounds one dispatched message end to end. Code Mode
// requests carry approval and sandbox waits, so this is generous.
const dispatchTimeout = 30 * time.Minute

const chatSystemPrompt = `You are guildbot, a friendly helper bot in a software guild's chat server. Reply briefly and concretely, a couple of sentences at most. You cannot run code or take actions from this conversation; if the request sounds like a task, suggest asking in one of the task channels instead.`

// Platform is the subset of the chat API the router replies through.
type Platform interface {
	SendMessage(ctx context.Context, channelID string, send *platform.MessageSend) (*platform.Message, error)
	GetChannel(ctx context.Context, channelID string) (*platform.Channel, error)
}

// CodeRunner runs one Code Mode request to a terminal state.
type CodeRunner interface {
	HandleRequest(ctx context.Context, req *codemode.Request) codemode.TerminalState
}

// Config wires a router.
type Config struct {
	Client   Platform
	Chat     llm.LLMClient
	CodeMode CodeRunner
	Tracker  *streak.Tracker
	Profiles *persistence.ProfileStore
	Usage    *metrics.QueryService

	BotUserID      string
	Prefix         string
	CodeModeConfig config.CodeModeConfig
	ChatConfig     config.ChatConfig
}

// Router routes inbound guild messages.
type Router struct {
	client   Platform
	chat     llm.LLMClient
	codeMode CodeRunner
	tracker  *streak.Tracker
	profiles *persistence.ProfileStore
	usage    *metrics.QueryService
	logger   *logx.Logger
	cfg      Config

	chanMu   sync.RWMutex
	channels map[string]*platform.Channel
}

// New creates a router from its wiring.
func New(cfg Config) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	return &Router{
		client:   cfg.Client,
		chat:     cfg.Chat,
		codeMode: cfg.CodeMode,
		tracker:  cfg.Tracker,
		profiles: cfg.Profiles,
		usage:    cfg.Usage,
		logger:   logx.NewLogger("router"),
		cfg:      cfg,
		channels: make(map[string]*platform.Channel),
	}
}

// HandleMessage is the gateway adapter. Dispatch can block on the whole
// Code Mode pipeline, so it always runs off the gateway read loop.
func (r *Router) HandleMessage(s *platform.Session, mc *platform.MessageCreate) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		r.Dispatch(ctx, mc.Message)
	}()
}

// Dispatch routes one message: command, Code Mode task, or chat fallback.
// Messages from bots and messages not addressed to this bot are ignored.
func (r *Router) Dispatch(ctx context.Context, msg *platform.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.Author.ID == r.cfg.BotUserID {
		return
	}

	content := strings.TrimSpace(msg.Content)
	mentioned := msg.MentionsUser(r.cfg.BotUserID)
	body := stripMention(content, r.cfg.BotUserID)

	if cmd, args, ok := r.parseCommand(content, body, mentioned); ok {
		r.logger.Info("🎛️ Command %s from %s", cmd, msg.Author.Username)
		r.runCommand(ctx, msg, cmd, args)
		return
	}
	if mentioned {
		r.handleMention(ctx, msg, body)
	}
}

// commands the router understands, by first word.
//
//nolint:gochecknoglobals // Static lookup table
var commands = map[string]bool{"help": true, "profile": true, "streak": true, "usage": true}

// parseCommand recognizes "<prefix>cmd args..." anywhere, and bare
// "cmd args..." when the bot was mentioned.
func (r *Router) parseCommand(content, body string, mentioned bool) (string, []string, bool) {
	var text string
	switch {
	case strings.HasPrefix(content, r.cfg.Prefix):
		text = content[len(r.cfg.Prefix):]
	case mentioned:
		text = body
	default:
		return "", nil, false
	}

	fields := strings.Fields(text)
	if len(fields) == 0 || !commands[strings.ToLower(fields[0])] {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func (r *Router) runCommand(ctx context.Context, msg *platform.Message, cmd string, args []string) {
	var reply string
	var err error

	switch cmd {
	case "help":
		reply = r.helpText()
	case "profile":
		reply, err = r.profileCommand(ctx, msg.Author.ID, args)
	case "streak":
		reply, err = r.streakCommand(ctx, msg.Author.ID)
	case "usage":
		reply, err = r.usageCommand(ctx)
	}
	if err != nil {
		r.logger.Error("❌ Command %s failed: %v", cmd, err)
		reply = "⚠️ Something went wrong running that command."
	}
	r.reply(ctx, msg.ChannelID, reply)
}

func (r *Router) helpText() string {
	p := r.cfg.Prefix
	return strings.Join([]string{
		"🤖 **guildbot commands**",
		fmt.Sprintf("`%shelp` — this message", p),
		fmt.Sprintf("`%sprofile set github <handle>` — link your GitHub handle", p),
		fmt.Sprintf("`%sprofile set timezone <iana-tz>` — set your timezone (e.g. Europe/Berlin)", p),
		fmt.Sprintf("`%sprofile show` — show your profile", p),
		fmt.Sprintf("`%sstreak` — your commit streak", p),
		fmt.Sprintf("`%susage` — LLM token and cost report for the last 24h", p),
		"Mention me with a task in an allowed channel and I'll write and run code for it.",
	}, "\n")
}

// githubHandlePattern matches GitHub's username rules: alphanumeric and
// hyphens, no leading hyphen, at most 39 characters.
var githubHandlePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)

func (r *Router) profileCommand(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) == 0 || args[0] == "show" {
		return r.showProfile(ctx, userID)
	}

	if len(args) == 3 && args[0] == "set" {
		switch args[1] {
		case "github":
			if !githubHandlePattern.MatchString(args[2]) {
				return fmt.Sprintf("`%s` doesn't look like a GitHub handle.", args[2]), nil
			}
			if err := r.patchProfile(ctx, userID, func(p *persistence.Profile) { p.GithubHandle = args[2] }); err != nil {
				return "", err
			}
			return fmt.Sprintf("🪪 GitHub handle set to `%s`.", args[2]), nil

		case "timezone":
			if _, err := time.LoadLocation(args[2]); err != nil {
				return fmt.Sprintf("`%s` is not a timezone I know — use an IANA name like `Europe/Berlin`.", args[2]), nil
			}
			if err := r.patchProfile(ctx, userID, func(p *persistence.Profile) { p.Timezone = args[2] }); err != nil {
				return "", err
			}
			return fmt.Sprintf("🪪 Timezone set to `%s`.", args[2]), nil
		}
	}

	return fmt.Sprintf("Usage: `%sprofile show` or `%sprofile set github|timezone <value>`", r.cfg.Prefix, r.cfg.Prefix), nil
}

func (r *Router) showProfile(ctx context.Context, userID string) (string, error) {
	profile, err := r.profiles.Get(ctx, userID)
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Sprintf("No profile yet. Link one with `%sprofile set github <handle>`.", r.cfg.Prefix), nil
	}
	if err != nil {
		return "", err
	}

	handle := profile.GithubHandle
	if handle == "" {
		handle = "(not set)"
	}
	tz := profile.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf("🪪 GitHub: `%s` · Timezone: `%s`", handle, tz), nil
}

// patchProfile read-modify-writes one field, since Upsert overwrites all
// columns.
func (r *Router) patchProfile(ctx context.Context, userID string, patch func(*persistence.Profile)) error {
	profile, err := r.profiles.Get(ctx, userID)
	if errors.Is(err, persistence.ErrNotFound) {
		profile = &persistence.Profile{UserID: userID}
	} else if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	patch(profile)
	if err := r.profiles.Upsert(ctx, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (r *Router) streakCommand(ctx context.Context, userID string) (string, error) {
	report, err := r.tracker.Report(ctx, userID, time.Now())
	if err != nil {
		return "", err
	}
	if report.TotalDays == 0 {
		return "No commit days on record yet. Post in the commits channel to start a streak!", nil
	}
	if report.Current == 0 {
		return fmt.Sprintf("💤 No current streak. Best so far: %d %s, last commit day %s.",
			report.Best, dayWord(report.Best), report.LastDay), nil
	}
	return fmt.Sprintf("🔥 Current streak: %d %s (best %d, %d on record).",
		report.Current, dayWord(report.Current), report.Best, report.TotalDays), nil
}

func (r *Router) usageCommand(ctx context.Context) (string, error) {
	if r.usage == nil {
		return "Usage reporting is not enabled.", nil
	}
	summary, err := r.usage.GetUsageSummary(ctx, 24*time.Hour)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📊 Last 24h: %d prompt + %d completion tokens, $%.2f total across %d model(s).",
		summary.PromptTokens, summary.CompletionTokens, summary.TotalCost, len(summary.ByModel)), nil
}

// handleMention decides between a Code Mode run and a plain chat reply.
// Requests the classifier turns down fall through to chat.
func (r *Router) handleMention(ctx context.Context, msg *platform.Message, body string) {
	if r.qualifies(ctx, msg) {
		req := codemode.NewRequest(msg)
		req.Body = body // mention markup stripped
		if state := r.codeMode.HandleRequest(ctx, req); state != codemode.StateNotCode {
			return
		}
	}
	r.chatReply(ctx, msg, body)
}

// qualifies checks the Code Mode trigger conditions: feature on, not in a
// thread, channel's category allowlisted, author holds the permission role.
func (r *Router) qualifies(ctx context.Context, msg *platform.Message) bool {
	cm := r.cfg.CodeModeConfig
	if !cm.Enabled || r.codeMode == nil {
		return false
	}

	ch, err := r.channel(ctx, msg.ChannelID)
	if err != nil {
		r.logger.Warn("Failed to resolve channel %s: %v", msg.ChannelID, err)
		return false
	}
	if ch.IsThread() {
		return false
	}
	if len(cm.CategoryAllowlist) > 0 && !slices.Contains(cm.CategoryAllowlist, ch.ParentID) {
		return false
	}
	if cm.PermissionRole != "" && (msg.Member == nil || !msg.Member.HasRole(cm.PermissionRole)) {
		return false
	}
	return true
}

// channel resolves a channel, caching results. Category membership and
// thread-ness don't change often enough to matter here.
func (r *Router) channel(ctx context.Context, id string) (*platform.Channel, error) {
	r.chanMu.RLock()
	ch, ok := r.channels[id]
	r.chanMu.RUnlock()
	if ok {
		return ch, nil
	}

	ch, err := r.client.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	r.chanMu.Lock()
	r.channels[id] = ch
	r.chanMu.Unlock()
	return ch, nil
}

// chatReply answers a non-task mention with a short conversational reply.
func (r *Router) chatReply(ctx context.Context, msg *platform.Message, body string) {
	if body == "" {
		r.reply(ctx, msg.ChannelID, fmt.Sprintf("👋 Yes? Try `%shelp` to see what I can do.", r.cfg.Prefix))
		return
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(chatSystemPrompt),
		llm.NewUserMessage(body),
	})
	req.Temperature = llm.TemperatureDefault
	if r.cfg.ChatConfig.MaxTokens > 0 {
		req.MaxTokens = r.cfg.ChatConfig.MaxTokens
	}

	resp, err := r.chat.Complete(ctx, req)
	if err != nil {
		r.logger.Error("❌ Chat reply failed: %v", err)
		r.reply(ctx, msg.ChannelID, "⚠️ I couldn't come up with a reply just now.")
		return
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = "🤔 I don't have a good answer to that."
	}
	r.reply(ctx, msg.ChannelID, utils.TruncateString(reply, replyLimit))
}

func (r *Router) reply(ctx context.Context, channelID, content string) {
	if content == "" {
		return
	}
	if _, err := r.client.SendMessage(ctx, channelID, &platform.MessageSend{Content: content}); err != nil {
		r.logger.Error("❌ Failed to send reply to %s: %v", channelID, err)
	}
}

// stripMention removes this bot's mention tokens from the text.
func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}

func dayWord(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

// Package welcome greets new members, opens discussion threads under
// showcase posts, and keeps an evergreen notice at the bottom of its
// channel.
package welcome

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"guildbot/pkg/config"
	"guildbot/pkg/logx"
	"guildbot/pkg/platform"
	"guildbot/pkg/utils"
)

// Platform is the subset of the chat API the welcomer posts through.
type Platform interface {
	SendMessage(ctx context.Context, channelID string, send *platform.MessageSend) (*platform.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	StartThreadFromMessage(ctx context.Context, channelID, messageID, name string) (*platform.Channel, error)
}

// welcomeTemplates rotate so back-to-back joins don't read copy-pasted.
//
//nolint:gochecknoglobals // Static template table
var welcomeTemplates = []string{
	"👋 Welcome to the guild, %s! Introduce yourself when you get a chance.",
	"🎉 %s just joined! Say hi.",
	"🚀 Glad you made it, %s. The help channel is open if you get stuck.",
	"🌱 %s has arrived. What are you building?",
}

// Welcomer owns the greeting, auto-thread, and evergreen behaviors.
type Welcomer struct {
	client Platform
	logger *logx.Logger
	cfg    config.WelcomeConfig

	mu          sync.Mutex
	rotation    int
	evergreenID string

	showcase map[string]bool
}

// New creates a welcomer for the given configuration.
func New(client Platform, cfg config.WelcomeConfig) *Welcomer {
	showcase := make(map[string]bool, len(cfg.ShowcaseChannels))
	for _, id := range cfg.ShowcaseChannels {
		showcase[id] = true
	}
	return &Welcomer{
		client:   client,
		logger:   logx.NewLogger("welcome"),
		cfg:      cfg,
		showcase: showcase,
	}
}

// HandleMemberAdd is the gateway adapter for join events.
func (w *Welcomer) HandleMemberAdd(s *platform.Session, ev *platform.GuildMemberAdd) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.Greet(ctx, ev); err != nil {
			w.logger.Warn("Failed to greet new member: %v", err)
		}
	}()
}

// Greet posts a rotating welcome line for the new member.
func (w *Welcomer) Greet(ctx context.Context, ev *platform.GuildMemberAdd) error {
	if w.cfg.Channel == "" || ev == nil || ev.Member == nil || ev.User == nil || ev.User.Bot {
		return nil
	}

	w.mu.Lock()
	tpl := welcomeTemplates[w.rotation%len(welcomeTemplates)]
	w.rotation++
	w.mu.Unlock()

	_, err := w.client.SendMessage(ctx, w.cfg.Channel, &platform.MessageSend{
		Content: fmt.Sprintf(tpl, ev.User.Mention()),
	})
	if err != nil {
		return fmt.Errorf("failed to send welcome message: %w", err)
	}
	w.logger.Info("👋 Welcomed %s", ev.User.Username)
	return nil
}

// HandleMessage is the gateway adapter for showcase auto-threads.
func (w *Welcomer) HandleMessage(s *platform.Session, mc *platform.MessageCreate) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.AutoThread(ctx, mc.Message); err != nil {
			w.logger.Warn("Failed to open showcase thread: %v", err)
		}
	}()
}

// AutoThread opens a discussion thread under a showcase post so feedback
// lands next to the work instead of burying it.
func (w *Welcomer) AutoThread(ctx context.Context, msg *platform.Message) error {
	if msg == nil || !w.showcase[msg.ChannelID] {
		return nil
	}
	if msg.Author == nil || msg.Author.Bot {
		return nil
	}

	if _, err := w.client.StartThreadFromMessage(ctx, msg.ChannelID, msg.ID, showcaseThreadName(msg)); err != nil {
		return fmt.Errorf("failed to start thread for message %s: %w", msg.ID, err)
	}
	return nil
}

// showcaseThreadName titles the thread after the post's first line.
func showcaseThreadName(msg *platform.Message) string {
	line := strings.TrimSpace(strings.SplitN(msg.Content, "\n", 2)[0])
	if line == "" {
		return fmt.Sprintf("Discussion: %s's post", msg.Author.Username)
	}
	return utils.TruncateString(line, 80)
}

// RepostEvergreen deletes the previous evergreen notice and posts a fresh
// copy so it stays the newest message in its channel.
func (w *Welcomer) RepostEvergreen(ctx context.Context) error {
	if w.cfg.EvergreenChannel == "" || w.cfg.EvergreenMessage == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.evergreenID != "" {
		// The old copy may have been deleted by a moderator already.
		if err := w.client.DeleteMessage(ctx, w.cfg.EvergreenChannel, w.evergreenID); err != nil {
			w.logger.Debug("Failed to delete previous evergreen message %s: %v", w.evergreenID, err)
		}
	}

	msg, err := w.client.SendMessage(ctx, w.cfg.EvergreenChannel, &platform.MessageSend{
		Content: w.cfg.EvergreenMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to post evergreen message: %w", err)
	}
	w.evergreenID = msg.ID
	w.logger.Info("🌲 Reposted evergreen message as %s", msg.ID)
	return nil
}

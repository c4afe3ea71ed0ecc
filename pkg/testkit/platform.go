package testkit

import (
	"context"
	"fmt"
	"io"
	"sync"

	"guildbot/pkg/platform"
)

// SentFile is a recorded message attachment with its content drained.
type SentFile struct {
	Name    string
	Content string
}

// SentMessage is a recorded SendMessage call.
type SentMessage struct {
	ID         string
	ChannelID  string
	Content    string
	Components []platform.ActionRow
	Files      []SentFile
}

// EditedMessage is a recorded EditMessage call.
type EditedMessage struct {
	ChannelID  string
	MessageID  string
	Content    *string
	Components *[]platform.ActionRow
}

// StartedThread is a recorded StartThreadFromMessage call.
type StartedThread struct {
	ChannelID string
	MessageID string
	Name      string
	ThreadID  string
}

// Reaction is a recorded AddReaction call.
type Reaction struct {
	ChannelID string
	MessageID string
	Emoji     string
}

// BulkDelete is a recorded BulkDeleteMessages call.
type BulkDelete struct {
	ChannelID  string
	MessageIDs []string
}

// Deletion is a recorded DeleteMessage call.
type Deletion struct {
	ChannelID string
	MessageID string
}

// Ack is a recorded InteractionRespond call.
type Ack struct {
	InteractionID string
	ResponseType  int
}

// PlatformRecorder implements the REST surface the bot drives and records
// every call. Sent messages get sequential ids ("sent-1", "sent-2", ...),
// threads likewise. The error fields, when set before use, make the matching
// call fail. Safe for concurrent use.
type PlatformRecorder struct {
	SendErr       error
	EditErr       error
	BulkDeleteErr error
	DeleteErr     error
	ThreadErr     error
	TypingErr     error
	ReactionErr   error
	AckErr        error
	ChannelErr    error

	// Channels configures GetChannel lookups. Unknown ids resolve to a
	// plain text channel so callers that only need an id keep working.
	Channels map[string]*platform.Channel

	mu          sync.Mutex
	nextSendID  int
	nextThread  int
	sent        []SentMessage
	edits       []EditedMessage
	threads     []StartedThread
	reactions   []Reaction
	bulkDeletes []BulkDelete
	deletes     []Deletion
	typing      []string
	acks        []Ack
}

// NewPlatformRecorder creates an empty recorder.
func NewPlatformRecorder() *PlatformRecorder {
	return &PlatformRecorder{}
}

// SendMessage records the message and assigns it an id. Attachment readers
// are drained, mirroring the real client's multipart upload.
func (p *PlatformRecorder) SendMessage(_ context.Context, channelID string, send *platform.MessageSend) (*platform.Message, error) {
	if p.SendErr != nil {
		return nil, p.SendErr
	}

	var files []SentFile
	for _, f := range send.Files {
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", f.Name, err)
		}
		files = append(files, SentFile{Name: f.Name, Content: string(data)})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSendID++
	id := fmt.Sprintf("sent-%d", p.nextSendID)
	p.sent = append(p.sent, SentMessage{
		ID:         id,
		ChannelID:  channelID,
		Content:    send.Content,
		Components: send.Components,
		Files:      files,
	})
	return &platform.Message{ID: id, ChannelID: channelID, Content: send.Content, Components: send.Components}, nil
}

// EditMessage records the edit.
func (p *PlatformRecorder) EditMessage(_ context.Context, channelID, messageID string, edit *platform.MessageEdit) (*platform.Message, error) {
	if p.EditErr != nil {
		return nil, p.EditErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edits = append(p.edits, EditedMessage{
		ChannelID:  channelID,
		MessageID:  messageID,
		Content:    edit.Content,
		Components: edit.Components,
	})
	msg := platform.Message{ID: messageID, ChannelID: channelID}
	if edit.Content != nil {
		msg.Content = *edit.Content
	}
	return &msg, nil
}

// BulkDeleteMessages records the deletion.
func (p *PlatformRecorder) BulkDeleteMessages(_ context.Context, channelID string, messageIDs []string) error {
	if p.BulkDeleteErr != nil {
		return p.BulkDeleteErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(messageIDs))
	copy(ids, messageIDs)
	p.bulkDeletes = append(p.bulkDeletes, BulkDelete{ChannelID: channelID, MessageIDs: ids})
	return nil
}

// DeleteMessage records the single-message deletion.
func (p *PlatformRecorder) DeleteMessage(_ context.Context, channelID, messageID string) error {
	if p.DeleteErr != nil {
		return p.DeleteErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes = append(p.deletes, Deletion{ChannelID: channelID, MessageID: messageID})
	return nil
}

// GetChannel serves lookups from the Channels map, defaulting unknown ids
// to a plain text channel.
func (p *PlatformRecorder) GetChannel(_ context.Context, channelID string) (*platform.Channel, error) {
	if p.ChannelErr != nil {
		return nil, p.ChannelErr
	}
	if ch, ok := p.Channels[channelID]; ok {
		out := *ch
		return &out, nil
	}
	return &platform.Channel{ID: channelID, Type: platform.ChannelTypeText}, nil
}

// StartThreadFromMessage records the thread and assigns it an id.
func (p *PlatformRecorder) StartThreadFromMessage(_ context.Context, channelID, messageID, name string) (*platform.Channel, error) {
	if p.ThreadErr != nil {
		return nil, p.ThreadErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextThread++
	id := fmt.Sprintf("thread-%d", p.nextThread)
	p.threads = append(p.threads, StartedThread{ChannelID: channelID, MessageID: messageID, Name: name, ThreadID: id})
	return &platform.Channel{ID: id, Name: name, ParentID: channelID, Type: platform.ChannelTypeThread}, nil
}

// TriggerTyping records the typing pulse.
func (p *PlatformRecorder) TriggerTyping(_ context.Context, channelID string) error {
	if p.TypingErr != nil {
		return p.TypingErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing = append(p.typing, channelID)
	return nil
}

// AddReaction records the reaction.
func (p *PlatformRecorder) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	if p.ReactionErr != nil {
		return p.ReactionErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, Reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

// InteractionRespond records the acknowledgement.
func (p *PlatformRecorder) InteractionRespond(_ context.Context, interaction *platform.Interaction, responseType int) error {
	if p.AckErr != nil {
		return p.AckErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, Ack{InteractionID: interaction.ID, ResponseType: responseType})
	return nil
}

// Sent returns a copy of all recorded sends.
func (p *PlatformRecorder) Sent() []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

// SentTo returns recorded sends to one channel, in order.
func (p *PlatformRecorder) SentTo(channelID string) []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []SentMessage
	for _, m := range p.sent {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

// Edits returns a copy of all recorded edits.
func (p *PlatformRecorder) Edits() []EditedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EditedMessage, len(p.edits))
	copy(out, p.edits)
	return out
}

// Threads returns a copy of all recorded thread starts.
func (p *PlatformRecorder) Threads() []StartedThread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartedThread, len(p.threads))
	copy(out, p.threads)
	return out
}

// Reactions returns a copy of all recorded reactions.
func (p *PlatformRecorder) Reactions() []Reaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Reaction, len(p.reactions))
	copy(out, p.reactions)
	return out
}

// BulkDeletes returns a copy of all recorded bulk deletions.
func (p *PlatformRecorder) BulkDeletes() []BulkDelete {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BulkDelete, len(p.bulkDeletes))
	copy(out, p.bulkDeletes)
	return out
}

// Deletes returns a copy of all recorded single-message deletions.
func (p *PlatformRecorder) Deletes() []Deletion {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Deletion, len(p.deletes))
	copy(out, p.deletes)
	return out
}

// TypingChannels returns the channels typing was triggered in, in order.
func (p *PlatformRecorder) TypingChannels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.typing))
	copy(out, p.typing)
	return out
}

// Acks returns a copy of all recorded interaction acknowledgements.
func (p *PlatformRecorder) Acks() []Ack {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Ack, len(p.acks))
	copy(out, p.acks)
	return out
}

// EventBus is an in-memory stand-in for a gateway session. Handlers are
// registered with AddHandler and fired synchronously from Emit calls on the
// caller's goroutine.
type EventBus struct {
	mu       sync.Mutex
	handlers map[int]any
	nextID   int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[int]any)}
}

// AddHandler registers a handler and returns its remover. Panics on handler
// types the gateway would reject, so tests fail loudly.
func (b *EventBus) AddHandler(handler any) platform.HandlerRemover {
	switch handler.(type) {
	case func(*platform.Session, *platform.MessageCreate),
		func(*platform.Session, *platform.InteractionCreate),
		func(*platform.Session, *platform.GuildMemberAdd):
	default:
		panic(fmt.Sprintf("testkit: unsupported handler type %T", handler))
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// HandlerCount returns the number of active handlers. Tests use it to wait
// for listeners to appear before emitting, and to assert cleanup.
func (b *EventBus) HandlerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func (b *EventBus) snapshot() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, 0, len(b.handlers))
	for _, h := range b.handlers {
		out = append(out, h)
	}
	return out
}

// EmitMessage delivers a MessageCreate event to all message handlers.
func (b *EventBus) EmitMessage(m *platform.Message) {
	ev := &platform.MessageCreate{Message: m}
	for _, h := range b.snapshot() {
		if fn, ok := h.(func(*platform.Session, *platform.MessageCreate)); ok {
			fn(nil, ev)
		}
	}
}

// EmitInteraction delivers an InteractionCreate event to all interaction
// handlers.
func (b *EventBus) EmitInteraction(i *platform.Interaction) {
	ev := &platform.InteractionCreate{Interaction: i}
	for _, h := range b.snapshot() {
		if fn, ok := h.(func(*platform.Session, *platform.InteractionCreate)); ok {
			fn(nil, ev)
		}
	}
}

// EmitMemberAdd delivers a GuildMemberAdd event to all member handlers.
func (b *EventBus) EmitMemberAdd(ev *platform.GuildMemberAdd) {
	for _, h := range b.snapshot() {
		if fn, ok := h.(func(*platform.Session, *platform.GuildMemberAdd)); ok {
			fn(nil, ev)
		}
	}
}

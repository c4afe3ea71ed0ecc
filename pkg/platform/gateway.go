package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"guildbot/pkg/logx"
)

// Reconnect backoff bounds.
const (
	reconnectMinDelay = 1 * time.Second
	reconnectMaxDelay = 60 * time.Second
)

// HandlerRemover unregisters a previously added event handler. Calling it
// more than once is harmless.
type HandlerRemover func()

// Session maintains the gateway websocket: identify, heartbeat, dispatch,
// and reconnection with capped exponential backoff.
//
// Handlers run synchronously in gateway receive order, so two events observed
// in sequence are handled in sequence. Handlers doing long work must spawn
// their own goroutine.
type Session struct {
	gatewayURL string
	token      string
	intents    int
	logger     *logx.Logger

	handlerMu sync.RWMutex
	handlers  map[int]any
	nextID    int

	writeMu sync.Mutex
	conn    *websocket.Conn

	seq     atomic.Int64
	lastAck atomic.Bool

	botMu   sync.RWMutex
	botUser *User

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewSession creates a gateway session for the given bot token. The session
// subscribes to guild, member, and message events including message content.
func NewSession(gatewayURL, token string) *Session {
	return &Session{
		gatewayURL: gatewayURL,
		token:      token,
		intents:    intentGuilds | intentGuildMembers | intentGuildMessages | intentMessageContent,
		logger:     logx.NewLogger("gateway"),
		handlers:   make(map[int]any),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// AddHandler registers an event handler and returns a function that removes
// it. Supported signatures:
//
//	func(*Session, *MessageCreate)
//	func(*Session, *InteractionCreate)
//	func(*Session, *GuildMemberAdd)
//
// The returned remover takes effect synchronously: once it returns, the
// handler will not be invoked for any later event.
func (s *Session) AddHandler(handler any) HandlerRemover {
	switch handler.(type) {
	case func(*Session, *MessageCreate), func(*Session, *InteractionCreate), func(*Session, *GuildMemberAdd):
	default:
		s.logger.Warn("AddHandler called with unsupported handler type %T", handler)
		return func() {}
	}

	s.handlerMu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.handlerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.handlerMu.Lock()
			delete(s.handlers, id)
			s.handlerMu.Unlock()
		})
	}
}

// BotUser returns the account the session authenticated as, populated from
// the READY event. Nil before the first successful connect.
func (s *Session) BotUser() *User {
	s.botMu.RLock()
	defer s.botMu.RUnlock()
	return s.botUser
}

// Open connects to the gateway and starts the receive loop. It returns once
// the first connection attempt succeeds; reconnection afterwards is
// automatic.
func (s *Session) Open(ctx context.Context) error {
	if s.started {
		return errors.New("session already opened")
	}
	s.started = true

	conn, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("gateway connect: %w", err)
	}

	go s.run(conn)
	return nil
}

// Close stops the session and closes the connection.
func (s *Session) Close() {
	select {
	case <-s.stopCh:
		return
	default:
	}
	close(s.stopCh)

	s.writeMu.Lock()
	if s.conn != nil {
		s.conn.Close() //nolint:errcheck // Already shutting down
	}
	s.writeMu.Unlock()

	<-s.doneCh
	s.logger.Info("🔌 Gateway session closed")
}

// connect dials the gateway, completes the hello/identify handshake, and
// starts the heartbeat goroutine for this connection.
func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.gatewayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.gatewayURL, err)
	}

	// First frame must be HELLO with the heartbeat interval.
	var hello event
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("expected hello opcode %d, got %d", opHello, hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("decode hello: %w", err)
	}

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()

	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   s.token,
			"intents": s.intents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "guildbot",
				"device":  "guildbot",
			},
		},
	}
	if err := s.send(identify); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("send identify: %w", err)
	}

	s.lastAck.Store(true)
	go s.heartbeat(conn, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	s.logger.Info("🔌 Connected to gateway (heartbeat every %dms)", helloData.HeartbeatInterval)
	return conn, nil
}

// heartbeatSeq returns the last dispatch sequence, or nil before the first
// dispatch as the gateway expects.
func (s *Session) heartbeatSeq() any {
	if seq := s.seq.Load(); seq != 0 {
		return seq
	}
	return nil
}

// send writes a JSON frame under the write lock.
func (s *Session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return errors.New("gateway not connected")
	}
	return s.conn.WriteJSON(v)
}

// heartbeat sends periodic heartbeats until the connection is replaced or
// the session stops. A missed ack closes the connection so the receive loop
// reconnects.
func (s *Session) heartbeat(conn *websocket.Conn, interval time.Duration) {
	// Jitter the first beat per gateway guidance.
	first := time.Duration(rand.Int63n(int64(interval))) //nolint:gosec // Jitter, not crypto
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
		case <-s.stopCh:
			return
		}

		if !s.lastAck.Load() {
			s.logger.Warn("💔 Heartbeat ack missed, closing connection")
			conn.Close() //nolint:errcheck // Receive loop handles reconnect
			return
		}
		s.lastAck.Store(false)
		if err := s.send(map[string]any{"op": opHeartbeat, "d": s.heartbeatSeq()}); err != nil {
			s.logger.Warn("heartbeat send failed: %v", err)
			return
		}
		timer.Reset(interval)
	}
}

// run is the receive loop. It reads frames off the current connection and
// reconnects with backoff when the connection drops.
func (s *Session) run(conn *websocket.Conn) {
	defer close(s.doneCh)

	delay := reconnectMinDelay
	for {
		err := s.readLoop(conn)

		select {
		case <-s.stopCh:
			return
		default:
		}

		s.logger.Warn("⚠️ Gateway connection lost: %v, reconnecting in %s", err, delay)
		select {
		case <-time.After(delay):
		case <-s.stopCh:
			return
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}

		next, cerr := s.connect(context.Background())
		if cerr != nil {
			s.logger.Error("reconnect failed: %v", cerr)
			continue
		}
		conn = next
		delay = reconnectMinDelay
	}
}

// readLoop processes frames until the connection errors.
func (s *Session) readLoop(conn *websocket.Conn) error {
	for {
		var evt event
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}

		switch evt.Op {
		case opDispatch:
			if evt.S != 0 {
				s.seq.Store(evt.S)
			}
			s.dispatch(evt.T, evt.D)
		case opHeartbeat:
			if err := s.send(map[string]any{"op": opHeartbeat, "d": s.heartbeatSeq()}); err != nil {
				return fmt.Errorf("requested heartbeat: %w", err)
			}
		case opHeartbeatAck:
			s.lastAck.Store(true)
		case opReconnect, opInvalidSession:
			conn.Close() //nolint:errcheck
			return fmt.Errorf("gateway requested reconnect (op %d)", evt.Op)
		case opHello:
			// Already handled during connect.
		default:
			s.logger.Debug("ignoring gateway opcode %d", evt.Op)
		}
	}
}

// dispatch decodes a gateway event and fans it out to matching handlers.
func (s *Session) dispatch(eventType string, data json.RawMessage) {
	switch eventType {
	case "READY":
		var ready struct {
			User *User `json:"user"`
		}
		if err := json.Unmarshal(data, &ready); err != nil {
			s.logger.Error("decode READY: %v", err)
			return
		}
		s.botMu.Lock()
		s.botUser = ready.User
		s.botMu.Unlock()
		if ready.User != nil {
			s.logger.Info("✅ Ready as %s (%s)", ready.User.Username, ready.User.ID)
		}

	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error("decode MESSAGE_CREATE: %v", err)
			return
		}
		s.fire(&MessageCreate{Message: &msg})

	case "INTERACTION_CREATE":
		var interaction Interaction
		if err := json.Unmarshal(data, &interaction); err != nil {
			s.logger.Error("decode INTERACTION_CREATE: %v", err)
			return
		}
		s.fire(&InteractionCreate{Interaction: &interaction})

	case "GUILD_MEMBER_ADD":
		var add struct {
			Member
			GuildID string `json:"guild_id"`
		}
		if err := json.Unmarshal(data, &add); err != nil {
			s.logger.Error("decode GUILD_MEMBER_ADD: %v", err)
			return
		}
		s.fire(&GuildMemberAdd{Member: &add.Member, GuildID: add.GuildID})

	default:
		// Other dispatch types are not subscribed or not interesting.
	}
}

// fire invokes every registered handler whose signature matches the event.
// Invocation is synchronous so unregistration observed here is final.
func (s *Session) fire(evt any) {
	s.handlerMu.RLock()
	matched := make([]any, 0, len(s.handlers))
	for _, h := range s.handlers {
		matched = append(matched, h)
	}
	s.handlerMu.RUnlock()

	for _, h := range matched {
		switch e := evt.(type) {
		case *MessageCreate:
			if fn, ok := h.(func(*Session, *MessageCreate)); ok {
				fn(s, e)
			}
		case *InteractionCreate:
			if fn, ok := h.(func(*Session, *InteractionCreate)); ok {
				fn(s, e)
			}
		case *GuildMemberAdd:
			if fn, ok := h.(func(*Session, *GuildMemberAdd)); ok {
				fn(s, e)
			}
		}
	}
}

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"guildbot/pkg/logx"
)

// APIError is returned for non-2xx REST responses.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error status=%d body=%s", e.Status, e.Body)
}

// Client is the REST API client. All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logx.Logger
}

// NewClient creates a REST client authenticating as a bot.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 20 * time.Second},
		logger:  logx.NewLogger("platform"),
	}
}

// Token returns the credential this client authenticates with.
func (c *Client) Token() string {
	return c.token
}

// do performs a JSON request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("%s %s", method, path)
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close() //nolint:errcheck // Response body close errors are not actionable

	data, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return &APIError{Status: res.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// File is an attachment to upload alongside a message.
type File struct {
	Name   string
	Reader io.Reader
}

// MessageSend is the payload for SendMessage.
type MessageSend struct {
	Content    string      `json:"content"`
	Components []ActionRow `json:"components,omitempty"`
	Files      []File      `json:"-"`
}

// SendMessage posts a message to a channel. Attachments, when present, are
// uploaded via multipart with the JSON payload in the payload_json part.
func (c *Client) SendMessage(ctx context.Context, channelID string, send *MessageSend) (*Message, error) {
	path := "/channels/" + channelID + "/messages"

	if len(send.Files) == 0 {
		var msg Message
		if err := c.do(ctx, http.MethodPost, path, send, &msg); err != nil {
			return nil, fmt.Errorf("send message: %w", err)
		}
		return &msg, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	payload, err := json.Marshal(send)
	if err != nil {
		return nil, fmt.Errorf("marshal message payload: %w", err)
	}
	if err := w.WriteField("payload_json", string(payload)); err != nil {
		return nil, fmt.Errorf("write payload_json: %w", err)
	}
	for i, f := range send.Files {
		part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("copy attachment %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", w.FormDataContentType())

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message with attachments: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck // Response body close errors are not actionable

	data, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, &APIError{Status: res.StatusCode, Body: string(data)}
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode send message response: %w", err)
	}
	return &msg, nil
}

// MessageEdit is the payload for EditMessage. Nil fields are left unchanged;
// an empty non-nil Components slice strips all components from the message.
type MessageEdit struct {
	Content    *string      `json:"content,omitempty"`
	Components *[]ActionRow `json:"components,omitempty"`
}

// EditMessage updates a previously sent message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, edit *MessageEdit) (*Message, error) {
	var msg Message
	path := "/channels/" + channelID + "/messages/" + messageID
	if err := c.do(ctx, http.MethodPatch, path, edit, &msg); err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	return &msg, nil
}

// DeleteMessage removes a single message.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := "/channels/" + channelID + "/messages/" + messageID
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// BulkDeleteMessages removes up to 100 messages in one call. A single id is
// routed through DeleteMessage since the bulk endpoint rejects singletons.
func (c *Client) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	switch len(messageIDs) {
	case 0:
		return nil
	case 1:
		return c.DeleteMessage(ctx, channelID, messageIDs[0])
	}

	body := map[string][]string{"messages": messageIDs}
	path := "/channels/" + channelID + "/messages/bulk-delete"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("bulk delete messages: %w", err)
	}
	return nil
}

// StartThreadFromMessage creates a thread attached to an existing message.
func (c *Client) StartThreadFromMessage(ctx context.Context, channelID, messageID, name string) (*Channel, error) {
	var thread Channel
	body := map[string]any{"name": name}
	path := "/channels/" + channelID + "/messages/" + messageID + "/threads"
	if err := c.do(ctx, http.MethodPost, path, body, &thread); err != nil {
		return nil, fmt.Errorf("start thread: %w", err)
	}
	return &thread, nil
}

// TriggerTyping shows the typing indicator in a channel for a few seconds.
func (c *Client) TriggerTyping(ctx context.Context, channelID string) error {
	path := "/channels/" + channelID + "/typing"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("trigger typing: %w", err)
	}
	return nil
}

// AddReaction adds an emoji reaction on behalf of the bot.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	path := "/channels/" + channelID + "/messages/" + messageID +
		"/reactions/" + url.PathEscape(emoji) + "/@me"
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// Interaction response callback types (wire values).
const (
	// InteractionResponseDeferredUpdate acknowledges a component interaction
	// with no visible change; the message is edited separately.
	InteractionResponseDeferredUpdate = 6
)

// InteractionRespond acknowledges an interaction within the 3 second window.
func (c *Client) InteractionRespond(ctx context.Context, interaction *Interaction, responseType int) error {
	body := map[string]any{"type": responseType}
	path := "/interactions/" + interaction.ID + "/" + interaction.Token + "/callback"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("interaction respond: %w", err)
	}
	return nil
}

// GetGuild fetches guild metadata including approximate member count.
func (c *Client) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	var guild Guild
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"?with_counts=true", nil, &guild); err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	return &guild, nil
}

// GetGuildRoles lists all roles in a guild.
func (c *Client) GetGuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/roles", nil, &roles); err != nil {
		return nil, fmt.Errorf("get guild roles: %w", err)
	}
	return roles, nil
}

// GetGuildChannels lists all channels and categories in a guild.
func (c *Client) GetGuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	var channels []Channel
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &channels); err != nil {
		return nil, fmt.Errorf("get guild channels: %w", err)
	}
	return channels, nil
}

// SearchGuildMembers finds members whose username or nick starts with query.
func (c *Client) SearchGuildMembers(ctx context.Context, guildID, query string, limit int) ([]Member, error) {
	if limit <= 0 {
		limit = 25
	}
	var members []Member
	path := "/guilds/" + guildID + "/members/search?query=" + url.QueryEscape(query) +
		"&limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, fmt.Errorf("search guild members: %w", err)
	}
	return members, nil
}

// ListGuildMembers pages through the member list. after is the highest user id
// from the previous page; empty starts from the beginning.
func (c *Client) ListGuildMembers(ctx context.Context, guildID, after string, limit int) ([]Member, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	path := "/guilds/" + guildID + "/members?limit=" + strconv.Itoa(limit)
	if after != "" {
		path += "&after=" + after
	}
	var members []Member
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, fmt.Errorf("list guild members: %w", err)
	}
	return members, nil
}

// GetChannel fetches a single channel or thread.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var channel Channel
	if err := c.do(ctx, http.MethodGet, "/channels/"+channelID, nil, &channel); err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &channel, nil
}

// GetUser fetches a single user.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, &user); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetCurrentUser fetches the account the token authenticates as.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, &user); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &user, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/adamavenir/chatsync/internal/types"
)

// WireMessage is the server's JSON message form.
type WireMessage struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channelId"`
	ChatID      string    `json:"chatId,omitempty"`
	Role        string    `json:"role,omitempty"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username,omitempty"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsEdited    bool      `json:"isEdited"`
	IsDeleted   bool      `json:"isDeleted"`
	EditedAt    time.Time `json:"editedAt,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
}

// ToMessage converts the wire form. EditedAt is only kept when IsEdited is
// set, since the server emits zero times otherwise. Direct chat messages
// may carry only a role, which then stands in for the author.
func (w WireMessage) ToMessage() types.Message {
	m := types.Message{
		ID:                w.ID,
		ConversationID:    w.ChannelID,
		AuthorID:          w.UserID,
		AuthorDisplayName: w.Username,
		Body:              w.Content,
		CreatedAt:         w.Timestamp,
		Deleted:           w.IsDeleted,
		CorrelationID:     w.ClientID,
	}
	if m.ConversationID == "" && w.ChatID != "" {
		m.ConversationID = types.Conversation{Kind: types.KindChat, ID: w.ChatID}.String()
	}
	if m.AuthorID == "" && w.Role != "" {
		m.AuthorID = w.Role
		if m.AuthorDisplayName == "" {
			m.AuthorDisplayName = w.Role
		}
	}
	if w.IsEdited {
		at := w.EditedAt
		if at.IsZero() {
			at = w.Timestamp
		}
		m.EditedAt = &at
	}
	if len(w.Attachments) > 0 {
		m.Attachments = append([]string(nil), w.Attachments...)
	}
	return m
}

// FromMessage converts a message to the wire form.
func FromMessage(m types.Message) WireMessage {
	w := WireMessage{
		ID:          m.ID,
		UserID:      m.AuthorID,
		Username:    m.AuthorDisplayName,
		Content:     m.Body,
		Timestamp:   m.CreatedAt,
		IsDeleted:   m.Deleted,
		Attachments: m.Attachments,
		ClientID:    m.CorrelationID,
	}
	if conv := types.ParseConversation(m.ConversationID); conv.Kind == types.KindChat {
		w.ChatID = conv.ID
	} else {
		w.ChannelID = conv.ID
	}
	if m.EditedAt != nil {
		w.IsEdited = true
		w.EditedAt = *m.EditedAt
	}
	return w
}

// DecodeMessages parses a message list. It accepts a bare array, an object
// with a "messages" field, or null.
func DecodeMessages(data []byte) ([]types.Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var wire []WireMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
	} else {
		var envelope struct {
			Messages []WireMessage `json:"messages"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		wire = envelope.Messages
	}
	out := make([]types.Message, 0, len(wire))
	for _, w := range wire {
		if w.ID == "" {
			continue
		}
		out = append(out, w.ToMessage())
	}
	return out, nil
}

// DecodeMessage parses a single message, bare or wrapped in "message". It
// reports false when data is empty or carries no id.
func DecodeMessage(data []byte) (types.Message, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return types.Message{}, false
	}
	var envelope struct {
		Message *WireMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Message != nil && envelope.Message.ID != "" {
		return envelope.Message.ToMessage(), true
	}
	var wire WireMessage
	if err := json.Unmarshal(data, &wire); err != nil || wire.ID == "" {
		return types.Message{}, false
	}
	return wire.ToMessage(), true
}

func messagesPath(conv types.Conversation) string {
	if conv.Kind == types.KindChat {
		return "/api/chats/" + url.PathEscape(conv.ID) + "/messages"
	}
	return "/api/channels/" + url.PathEscape(conv.ID) + "/messages"
}

// ListMessages fetches a conversation's messages. With after set only
// messages newer than that id are returned. Direct chats have no cursor
// query, so the full thread is fetched and trimmed here.
func (c *Client) ListMessages(ctx context.Context, conversationID, after string) ([]types.Message, error) {
	conv := types.ParseConversation(conversationID)
	if conv.Kind == types.KindChat {
		data, err := c.doRaw(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(conv.ID), nil, nil)
		if err != nil {
			return nil, err
		}
		msgs, err := DecodeMessages(data)
		if err != nil {
			return nil, err
		}
		return messagesAfter(msgs, after), nil
	}

	var query url.Values
	if after != "" {
		query = url.Values{}
		query.Set("after", after)
	}
	data, err := c.doRaw(ctx, http.MethodGet, messagesPath(conv), query, nil)
	if err != nil {
		return nil, err
	}
	return DecodeMessages(data)
}

// messagesAfter drops everything up to and including after. An unknown
// cursor keeps the whole list; callers deduplicate by id.
func messagesAfter(msgs []types.Message, after string) []types.Message {
	if after == "" {
		return msgs
	}
	for i, m := range msgs {
		if m.ID == after {
			return msgs[i+1:]
		}
	}
	return msgs
}

type createMessageRequest struct {
	Content  string `json:"content"`
	ClientID string `json:"clientId,omitempty"`
}

type createChatMessageRequest struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId,omitempty"`
}

// CreateMessage posts a message. ok is false when the server accepted the
// request but returned no usable message; callers should refetch.
func (c *Client) CreateMessage(ctx context.Context, conversationID, body, clientID string) (types.Message, bool, error) {
	conv := types.ParseConversation(conversationID)
	var payload any = createMessageRequest{Content: body, ClientID: clientID}
	if conv.Kind == types.KindChat {
		payload = createChatMessageRequest{Message: body, ClientID: clientID}
	}
	data, err := c.doRaw(ctx, http.MethodPost, messagesPath(conv), nil, payload)
	if err != nil {
		return types.Message{}, false, err
	}
	msg, ok := DecodeMessage(data)
	if !ok {
		return types.Message{}, false, nil
	}
	msg.ConversationID = conv.String()
	if msg.CorrelationID == "" {
		msg.CorrelationID = clientID
	}
	return msg, true, nil
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

// UpdateMessage edits a message body. ok is false when the response carried
// no message.
func (c *Client) UpdateMessage(ctx context.Context, messageID, body string) (types.Message, bool, error) {
	data, err := c.doRaw(ctx, http.MethodPut, "/api/messages/"+url.PathEscape(messageID), nil, updateMessageRequest{Content: body})
	if err != nil {
		return types.Message{}, false, err
	}
	msg, ok := DecodeMessage(data)
	return msg, ok, nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.doRaw(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil, nil)
	return err
}

type userEnvelope struct {
	User *types.Author `json:"user"`
	types.Author
}

// GetUser fetches a user's public profile.
func (c *Client) GetUser(ctx context.Context, userID string) (types.Author, error) {
	var resp userEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID), nil, nil, &resp); err != nil {
		return types.Author{}, err
	}
	return resp.author(userID), nil
}

// Me fetches the authenticated user.
func (c *Client) Me(ctx context.Context) (types.Author, error) {
	var resp userEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, nil, &resp); err != nil {
		return types.Author{}, err
	}
	return resp.author(""), nil
}

func (e userEnvelope) author(fallbackID string) types.Author {
	a := e.Author
	if e.User != nil {
		a = *e.User
	}
	if a.ID == "" {
		a.ID = fallbackID
	}
	return a
}

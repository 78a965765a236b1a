package types

import (
	"strings"
	"time"
)

// TempIDPrefix marks client-generated ids for optimistic messages.
// These ids are never persisted by the server.
const TempIDPrefix = "temp-"

// Message represents a chat message in a channel or direct chat.
type Message struct {
	ID                string     `json:"id"`
	ConversationID    string     `json:"conversation_id"`
	AuthorID          string     `json:"author_id"`
	AuthorDisplayName string     `json:"author_display_name,omitempty"`
	Body              string     `json:"body"`
	CreatedAt         time.Time  `json:"created_at"`
	EditedAt          *time.Time `json:"edited_at,omitempty"`
	Deleted           bool       `json:"deleted,omitempty"`
	Attachments       []string   `json:"attachments,omitempty"`
	CorrelationID     string     `json:"correlation_id,omitempty"`

	// Local-only flags for optimistic entries.
	Pending bool `json:"pending,omitempty"`
	Failed  bool `json:"failed,omitempty"`
}

// IsTemporary reports whether the message carries a client-generated id.
func (m Message) IsTemporary() bool {
	return IsTemporaryID(m.ID)
}

// Edited reports whether the message has been edited.
func (m Message) Edited() bool {
	return m.EditedAt != nil
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	if m.EditedAt != nil {
		ts := *m.EditedAt
		out.EditedAt = &ts
	}
	if m.Attachments != nil {
		out.Attachments = append([]string(nil), m.Attachments...)
	}
	return out
}

// IsTemporaryID reports whether id was generated locally.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Cursor tracks the high-water mark for a conversation.
type Cursor struct {
	ConversationID string `json:"conversation_id"`
	LastSeenID     string `json:"last_seen_id,omitempty"`
}

// ConnState is the user-facing connection state.
type ConnState string

const (
	ConnDisconnected    ConnState = "disconnected"
	ConnConnecting      ConnState = "connecting"
	ConnConnected       ConnState = "connected"
	ConnDegradedPolling ConnState = "degraded-polling"
)

// Author is a resolved user identity.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
}

// Draft is a failed send preserved for retry.
type Draft struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
	ClientID       string `json:"client_id"`
	Error          string `json:"error,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

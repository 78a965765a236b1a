package types

import "strings"

// ConversationKind distinguishes server channels from direct chat threads.
type ConversationKind string

const (
	KindChannel ConversationKind = "channel"
	KindChat    ConversationKind = "chat"
)

// chatPrefix marks a direct chat in a conversation id, as in "chat:42".
// Bare ids and "channel:" ids name channels.
const chatPrefix = "chat:"

const channelPrefix = "channel:"

// Conversation is a parsed conversation id.
type Conversation struct {
	Kind ConversationKind
	// ID is the server-side id without the kind prefix.
	ID string
}

// ParseConversation splits a conversation id into its kind and server id.
func ParseConversation(id string) Conversation {
	id = strings.TrimSpace(id)
	switch {
	case strings.HasPrefix(id, chatPrefix):
		return Conversation{Kind: KindChat, ID: strings.TrimPrefix(id, chatPrefix)}
	case strings.HasPrefix(id, channelPrefix):
		return Conversation{Kind: KindChannel, ID: strings.TrimPrefix(id, channelPrefix)}
	default:
		return Conversation{Kind: KindChannel, ID: id}
	}
}

// String returns the canonical id: bare for channels, prefixed for chats.
func (c Conversation) String() string {
	if c.Kind == KindChat {
		return chatPrefix + c.ID
	}
	return c.ID
}

// HasPush reports whether the server offers a push socket for the
// conversation. Direct chats are only reachable over REST.
func (c Conversation) HasPush() bool {
	return c.Kind != KindChat
}

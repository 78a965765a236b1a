package chat

import (
	"strings"

	"github.com/gen2brain/beeep"

	"github.com/adamavenir/chatsync/internal/types"
)

// SendNotification shows an OS notification for a message.
func SendNotification(msg types.Message, conversationID string) error {
	title := msg.AuthorDisplayName
	if title == "" {
		title = msg.AuthorID
	}
	if conversationID != "" {
		title = "#" + conversationID + " · " + title
	}
	return beeep.Notify(title, truncateNotification(msg.Body, 100), "")
}

func truncateNotification(s string, maxLen int) string {
	// Collapse whitespace for notification
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}

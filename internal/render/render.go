// Package render turns a livesync View into terminal lines.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/adamavenir/chatsync/internal/livesync"
	"github.com/adamavenir/chatsync/internal/types"
)

const deletedBody = "(message deleted)"

// Item is one display row.
type Item struct {
	ID       string
	AuthorID string
	Author   string
	Body     string
	When     string
	Mine     bool
	Edited   bool
	Deleted  bool
	Pending  bool
	Failed   bool
}

// Markers returns the short status tags shown after the body.
func (i Item) Markers() []string {
	var out []string
	switch {
	case i.Failed:
		out = append(out, "failed: retry or discard")
	case i.Pending:
		out = append(out, "sending...")
	}
	if i.Edited && !i.Deleted {
		out = append(out, "edited")
	}
	return out
}

// Items builds display rows in store order.
func Items(messages []types.Message, selfID string, now time.Time) []Item {
	items := make([]Item, 0, len(messages))
	for _, m := range messages {
		items = append(items, ItemFor(m, selfID, now))
	}
	return items
}

// ItemFor builds one display row.
func ItemFor(m types.Message, selfID string, now time.Time) Item {
	author := m.AuthorDisplayName
	if author == "" {
		author = m.AuthorID
	}
	if author == "" {
		author = "unknown"
	}
	body := m.Body
	if m.Deleted {
		body = deletedBody
	}
	when := ""
	if !m.CreatedAt.IsZero() {
		when = humanize.RelTime(m.CreatedAt, now, "ago", "from now")
	}
	return Item{
		ID:       m.ID,
		AuthorID: m.AuthorID,
		Author:   author,
		Body:     body,
		When:     when,
		Mine:     selfID != "" && m.AuthorID == selfID,
		Edited:   m.Edited(),
		Deleted:  m.Deleted,
		Pending:  m.Pending,
		Failed:   m.Failed,
	}
}

// Line renders an item with styles and code highlighting.
func Line(item Item) string {
	nameColor := ColorForAuthor(item.AuthorID)
	if item.Mine {
		nameColor = selfColor
	}
	name := lipgloss.NewStyle().Bold(true).Foreground(nameColor).Render(item.Author)
	when := lipgloss.NewStyle().Foreground(mutedColor).Render(item.When)

	var body string
	switch {
	case item.Deleted:
		body = lipgloss.NewStyle().Italic(true).Foreground(mutedColor).Render(item.Body)
	case item.Failed:
		body = lipgloss.NewStyle().Foreground(failedColor).Render(item.Body)
	case item.Pending:
		body = lipgloss.NewStyle().Foreground(pendingColor).Render(item.Body)
	default:
		body = HighlightCodeBlocks(item.Body)
	}

	var b strings.Builder
	b.WriteString(name)
	if item.When != "" {
		b.WriteString(" ")
		b.WriteString(when)
	}
	b.WriteString("\n")
	b.WriteString(body)
	if markers := item.Markers(); len(markers) > 0 {
		style := lipgloss.NewStyle().Foreground(mutedColor)
		if item.Failed {
			style = style.Foreground(failedColor)
		}
		b.WriteString(" ")
		b.WriteString(style.Render("(" + strings.Join(markers, ", ") + ")"))
	}
	return b.String()
}

// PlainLine renders an item on one line without styling.
func PlainLine(item Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", item.ID, item.Author, strings.ReplaceAll(item.Body, "\n", " "))
	if markers := item.Markers(); len(markers) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(markers, ", "))
	}
	return b.String()
}

// StateLabel is the short connection label.
func StateLabel(v livesync.View) string {
	switch v.State {
	case types.ConnConnected:
		return "live"
	case types.ConnConnecting:
		return "connecting"
	case types.ConnDegradedPolling:
		if v.Forced {
			return "polling"
		}
		return "polling (degraded)"
	default:
		return "offline"
	}
}

// StatusLine renders the connection indicator, typing names and banner.
func StatusLine(v livesync.View) string {
	dotColor := mutedColor
	switch v.State {
	case types.ConnConnected:
		dotColor = okColor
	case types.ConnConnecting, types.ConnDegradedPolling:
		dotColor = infoColor
	}
	parts := []string{
		lipgloss.NewStyle().Foreground(dotColor).Render("●") + " " + StateLabel(v),
	}
	if v.ConversationID != "" {
		parts = append(parts, "#"+v.ConversationID)
	}
	if typing := TypingText(v.Typing); typing != "" {
		parts = append(parts, lipgloss.NewStyle().Italic(true).Foreground(mutedColor).Render(typing))
	}
	if v.Banner.Level != livesync.BannerNone {
		color := infoColor
		if v.Banner.Level == livesync.BannerAction {
			color = actionColor
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(color).Render(v.Banner.Text))
	}
	return strings.Join(parts, " · ")
}

// TypingText phrases the typing indicator.
func TypingText(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return fmt.Sprintf("%s and %d others are typing...", names[0], len(names)-1)
	}
}

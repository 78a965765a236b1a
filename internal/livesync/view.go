package livesync

import (
	"fmt"
	"sort"

	"github.com/adamavenir/chatsync/internal/reconnect"
	"github.com/adamavenir/chatsync/internal/transport"
	"github.com/adamavenir/chatsync/internal/types"
)

// BannerLevel is the severity of the status banner.
type BannerLevel int

const (
	BannerNone BannerLevel = iota
	// BannerInfo is transient and needs no action.
	BannerInfo
	// BannerAction offers the user a retry.
	BannerAction
)

func (l BannerLevel) String() string {
	switch l {
	case BannerInfo:
		return "info"
	case BannerAction:
		return "action"
	default:
		return "none"
	}
}

// Banner is the single user-visible status line.
type Banner struct {
	Level BannerLevel
	Text  string
}

// View is a read-only snapshot of the active conversation.
type View struct {
	ConversationID string
	Messages       []types.Message
	State          types.ConnState
	// Mode is the transport currently delivering events, empty when none.
	Mode       transport.Kind
	Forced     bool
	Banner     Banner
	Typing     []string
	LastSeenID string
	Attempts   int
	Loaded     bool
}

// FailedSends returns the failed optimistic entries.
func (v View) FailedSends() []types.Message {
	var out []types.Message
	for _, m := range v.Messages {
		if m.Failed {
			out = append(out, m)
		}
	}
	return out
}

func (c *Coordinator) buildView(s *session) View {
	if s == nil {
		return View{State: types.ConnDisconnected}
	}
	v := View{
		ConversationID: s.conversationID,
		Messages:       s.store.Messages(),
		State:          s.machine.ConnState(),
		Forced:         s.machine.Forced,
		LastSeenID:     s.cursor.LastSeenID,
		Attempts:       s.machine.Attempts,
		Loaded:         s.loaded,
	}
	switch {
	case s.machine.State == reconnect.Connected:
		v.Mode = transport.KindPush
	case s.poll != nil:
		v.Mode = transport.KindPoll
	}
	for _, entry := range s.typing {
		v.Typing = append(v.Typing, entry.name)
	}
	sort.Strings(v.Typing)
	v.Banner = c.banner(s, v)
	return v
}

func (c *Coordinator) banner(s *session, v View) Banner {
	if failed := len(v.FailedSends()); failed > 0 {
		text := "message failed to send: retry or discard"
		if failed > 1 {
			text = fmt.Sprintf("%d messages failed to send: retry or discard", failed)
		}
		return Banner{Level: BannerAction, Text: text}
	}
	m := s.machine
	switch {
	case m.State == reconnect.Degraded && !m.Forced:
		return Banner{Level: BannerAction, Text: "live updates unavailable, polling for new messages: retry"}
	case m.Probing():
		return Banner{Level: BannerInfo, Text: "reconnecting..."}
	case m.State == reconnect.BackingOff:
		return Banner{Level: BannerInfo, Text: fmt.Sprintf("reconnecting... (attempt %d of %d)", m.Attempts, m.Policy.MaxAttempts)}
	case m.State == reconnect.Connecting && m.Attempts > 0:
		return Banner{Level: BannerInfo, Text: "reconnecting..."}
	}
	if s.notice != "" {
		return Banner{Level: BannerInfo, Text: s.notice}
	}
	return Banner{}
}

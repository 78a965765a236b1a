// Package chat is the interactive terminal client for one conversation.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/adamavenir/chatsync/internal/livesync"
	"github.com/adamavenir/chatsync/internal/types"
)

// typingInterval throttles outgoing typing notifications.
const typingInterval = 2 * time.Second

// Controller is the part of the sync coordinator the UI drives.
type Controller interface {
	View() livesync.View
	Send(body string) (string, error)
	RetrySend(tempID string) error
	DiscardFailed(tempID string) error
	Edit(messageID, body string) error
	Delete(messageID string) error
	SendTyping() error
	ToggleTransportMode() error
	RetryPush() error
}

// Options configure chat.
type Options struct {
	Controller Controller
	Bridge     *Bridge
	SelfID     string
	// Now is used for relative timestamps; defaults to time.Now.
	Now func() time.Time
}

// Run starts the chat UI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	model, err := NewModel(opts)
	if err != nil {
		return err
	}
	title := "chatsync"
	if v := opts.Controller.View(); v.ConversationID != "" {
		title = "chatsync · #" + v.ConversationID
	}
	fmt.Printf("\033]0;%s\007", title)

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if opts.Bridge != nil {
		opts.Bridge.Attach(program)
		defer opts.Bridge.Detach()
	}
	_, err = program.Run()
	return err
}

// viewMsg carries a fresh coordinator view into the program.
type viewMsg struct {
	view livesync.View
}

// errMsg carries an asynchronous coordinator error.
type errMsg struct {
	err error
}

// Model implements the chat UI.
type Model struct {
	ctrl     Controller
	selfID   string
	now      func() time.Time
	viewport viewport.Model
	input    textarea.Model
	view     livesync.View
	status   string
	// statusIsError renders status in the error color.
	statusIsError bool
	width         int
	height        int

	// editingMessageID is set while the input holds an edit.
	editingMessageID string
	lastTyping       time.Time
	initialScroll    bool
}

// NewModel creates the UI model.
func NewModel(opts Options) (*Model, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("chat: controller is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Model{
		ctrl:          opts.Controller,
		selfID:        opts.SelfID,
		now:           now,
		viewport:      viewport.New(0, 0),
		input:         newInputModel(),
		view:          opts.Controller.View(),
		initialScroll: true,
	}, nil
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

// latestFailed returns the most recent failed send, if any.
func (m *Model) latestFailed() (types.Message, bool) {
	failed := m.view.FailedSends()
	if len(failed) == 0 {
		return types.Message{}, false
	}
	return failed[len(failed)-1], true
}

// lastOwnMessage returns the newest confirmed message by the local user.
func (m *Model) lastOwnMessage() (types.Message, bool) {
	for i := len(m.view.Messages) - 1; i >= 0; i-- {
		msg := m.view.Messages[i]
		if msg.AuthorID == m.selfID && m.selfID != "" && !msg.IsTemporary() && !msg.Deleted {
			return msg, true
		}
	}
	return types.Message{}, false
}

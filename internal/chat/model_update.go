package chat

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adamavenir/chatsync/internal/livesync"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case viewMsg:
		m.applyView(msg.view)
		return m, nil
	case errMsg:
		m.setError(msg.err)
		return m, nil
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyView(v livesync.View) {
	follow := m.viewport.AtBottom() || m.initialScroll || v.ConversationID != m.view.ConversationID
	if v.Loaded && !m.view.Loaded {
		follow = true
	}
	m.view = v
	if m.width == 0 || m.height == 0 {
		return
	}
	m.refreshViewport(follow)
}

func (m *Model) setStatus(text string) {
	m.status = text
	m.statusIsError = false
}

func (m *Model) setError(err error) {
	if err == nil {
		return
	}
	var sendErr *livesync.SendFailedError
	if errors.As(err, &sendErr) {
		m.status = "send failed: ctrl+y to retry, ctrl+x to discard"
	} else {
		m.status = err.Error()
	}
	m.statusIsError = true
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.input.Value() != "" || m.editingMessageID != "" {
			if m.editingMessageID != "" {
				m.exitEditMode()
			} else {
				m.resetInput()
			}
			return m, nil
		}
		return m, tea.Quit
	case tea.KeyEsc:
		if m.editingMessageID != "" {
			m.exitEditMode()
			return m, nil
		}
		return m, nil
	case tea.KeyEnter:
		return m.submit()
	case tea.KeyCtrlJ:
		m.insertInputText("\n")
		return m, nil
	case tea.KeyCtrlT:
		m.runAction(m.ctrl.ToggleTransportMode(), "")
		return m, nil
	case tea.KeyCtrlR:
		m.runAction(m.ctrl.RetryPush(), "reconnecting...")
		return m, nil
	case tea.KeyCtrlY:
		m.retryFailed("")
		return m, nil
	case tea.KeyCtrlX:
		m.discardFailed("")
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case tea.KeyUp:
		if m.input.Value() == "" && m.editingMessageID == "" {
			if own, ok := m.lastOwnMessage(); ok {
				m.enterEditMode(own.ID, own.Body)
				return m, nil
			}
		}
	}

	if msg.Type == tea.KeyRunes && msg.Paste {
		m.insertInputText(normalizeNewlines(string(msg.Runes)))
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.resize()
		if value != "" && !strings.HasPrefix(value, "/") {
			m.maybeSendTyping()
		}
	}
	return m, cmd
}

// maybeSendTyping sends at most one typing notification per interval.
// The coordinator shows its own notice when typing cannot be delivered.
func (m *Model) maybeSendTyping() {
	now := m.now()
	if !m.lastTyping.IsZero() && now.Sub(m.lastTyping) < typingInterval {
		return
	}
	m.lastTyping = now
	_ = m.ctrl.SendTyping()
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if m.editingMessageID != "" {
		if value == "" {
			m.setError(errors.New("cannot save an empty message"))
			return m, nil
		}
		id := m.editingMessageID
		m.exitEditMode()
		m.runAction(m.ctrl.Edit(id, value), "")
		return m, nil
	}
	if value == "" {
		return m, nil
	}
	if strings.HasPrefix(value, "/") {
		return m, m.runSlashCommand(value)
	}
	if _, err := m.ctrl.Send(value); err != nil {
		// Keep the input so nothing typed is lost.
		m.setError(err)
		return m, nil
	}
	m.resetInput()
	m.setStatus("")
	m.refreshViewport(true)
	return m, nil
}

func (m *Model) runAction(err error, okStatus string) {
	if err != nil {
		m.setError(err)
		return
	}
	m.setStatus(okStatus)
}

func (m *Model) retryFailed(id string) {
	if id == "" {
		failed, ok := m.latestFailed()
		if !ok {
			m.setStatus("no failed messages")
			return
		}
		id = failed.ID
	}
	m.runAction(m.ctrl.RetrySend(id), "retrying...")
}

func (m *Model) discardFailed(id string) {
	if id == "" {
		failed, ok := m.latestFailed()
		if !ok {
			m.setStatus("no failed messages")
			return
		}
		id = failed.ID
	}
	m.runAction(m.ctrl.DiscardFailed(id), "discarded")
}

package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const helpText = "/edit <id> <text>  /rm <id>  /retry [id]  /discard [id]  /poll  /reconnect  /quit · " +
	"ctrl+t poll/push · ctrl+r reconnect · ctrl+y retry · ctrl+x discard · up edit last"

// runSlashCommand executes a /command typed into the input. The input is
// cleared on success and kept on error.
func (m *Model) runSlashCommand(input string) tea.Cmd {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	var err error
	status := ""
	switch name {
	case "/quit", "/exit":
		return tea.Quit
	case "/help":
		status = helpText
	case "/edit":
		if len(args) < 2 {
			err = fmt.Errorf("usage: /edit <id> <text>")
			break
		}
		rest := strings.TrimSpace(input[len(fields[0]):])
		body := strings.TrimSpace(rest[len(fields[1]):])
		err = m.ctrl.Edit(stripHash(args[0]), body)
	case "/rm", "/delete":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /rm <id>")
			break
		}
		err = m.ctrl.Delete(stripHash(args[0]))
	case "/retry":
		m.retryFailed(firstArg(args))
		if m.statusIsError {
			return nil
		}
		m.resetInput()
		return nil
	case "/discard":
		m.discardFailed(firstArg(args))
		if m.statusIsError {
			return nil
		}
		m.resetInput()
		return nil
	case "/poll":
		err = m.ctrl.ToggleTransportMode()
	case "/reconnect":
		err = m.ctrl.RetryPush()
		status = "reconnecting..."
	default:
		err = fmt.Errorf("unknown command %s (try /help)", name)
	}

	if err != nil {
		m.setError(err)
		return nil
	}
	m.resetInput()
	m.setStatus(status)
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return stripHash(args[0])
}

func stripHash(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), "#")
}

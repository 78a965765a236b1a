package chat

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/adamavenir/chatsync/internal/render"
)

func (m *Model) View() string {
	lines := []string{
		m.viewport.View(),
		"",
		render.StatusLine(m.view),
		m.renderInput(),
		m.renderStatus(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderInput() string {
	return lipgloss.NewStyle().Background(inputBg).Padding(0, inputPadding, 0, 0).Render(m.input.View())
}

func (m *Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	color := statusColor
	if m.statusIsError {
		color = errorColor
	}
	return lipgloss.NewStyle().Foreground(color).Render(m.status)
}

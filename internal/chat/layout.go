package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/adamavenir/chatsync/internal/render"
)

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}

	inputWidth := m.width - inputPadding
	if inputWidth < 1 {
		inputWidth = 1
	}
	m.input.SetWidth(inputWidth)
	lineCount := m.input.LineCount()
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > inputMaxHeight {
		lineCount = inputMaxHeight
	}
	m.input.SetHeight(lineCount)
	inputHeight := m.input.Height()

	statusHeight := 2
	marginHeight := 1
	m.viewport.Width = m.width
	m.viewport.Height = m.height - inputHeight - statusHeight - marginHeight
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
	if m.initialScroll {
		m.refreshViewport(true)
		m.initialScroll = false
		return
	}
	m.refreshViewport(false)
}

func (m *Model) refreshViewport(scrollToBottom bool) {
	content := m.renderMessages()
	m.viewport.SetContent(content)
	if scrollToBottom {
		m.viewport.GotoBottom()
		return
	}
	maxOffset := lipgloss.Height(content) - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if m.viewport.YOffset > maxOffset {
		m.viewport.SetYOffset(maxOffset)
	}
}

func (m *Model) renderMessages() string {
	if !m.view.Loaded {
		return lipgloss.NewStyle().Foreground(statusColor).Render("loading...")
	}
	if len(m.view.Messages) == 0 {
		return lipgloss.NewStyle().Foreground(statusColor).Render("no messages yet")
	}
	items := render.Items(m.view.Messages, m.selfID, m.now())
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		line := render.Line(item)
		if m.width > 0 {
			line = lipgloss.NewStyle().Width(m.width).Render(line)
		}
		blocks = append(blocks, line)
	}
	return strings.Join(blocks, "\n\n")
}

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/lipgloss"
)

const (
	inputPadding   = 1
	inputMaxHeight = 6
)

func newInputModel() textarea.Model {
	input := textarea.New()
	input.Placeholder = "Message (enter to send, ctrl+j for newline, /help)"
	input.Prompt = "> "
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(1)
	// Enter submits; ctrl+j inserts a newline instead.
	input.KeyMap.InsertNewline.SetEnabled(false)
	applyInputStyles(&input, textColor, blurText)
	input.Focus()
	return input
}

func applyInputStyles(input *textarea.Model, textColor, blurColor lipgloss.Color) {
	input.FocusedStyle.Base = lipgloss.NewStyle().Foreground(textColor).Background(inputBg)
	input.FocusedStyle.Text = lipgloss.NewStyle().Foreground(textColor).Background(inputBg)
	input.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(caretColor).Background(inputBg)
	input.FocusedStyle.CursorLine = lipgloss.NewStyle().Background(inputBg)
	input.BlurredStyle.Base = lipgloss.NewStyle().Foreground(blurColor).Background(inputBg)
	input.BlurredStyle.Text = lipgloss.NewStyle().Foreground(blurColor).Background(inputBg)
	input.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(caretColor).Background(inputBg)
	input.BlurredStyle.CursorLine = lipgloss.NewStyle().Background(inputBg)
}

func (m *Model) insertInputText(text string) {
	if text == "" {
		return
	}
	m.input.InsertString(text)
	m.resize()
}

func (m *Model) resetInput() {
	m.input.Reset()
	m.resize()
}

func (m *Model) enterEditMode(id, body string) {
	m.editingMessageID = id
	m.input.SetValue(body)
	m.input.CursorEnd()
	applyInputStyles(&m.input, editColor, editColor)
	m.status = "editing [" + id + "] (esc to cancel)"
	m.resize()
}

func (m *Model) exitEditMode() {
	m.editingMessageID = ""
	m.input.Reset()
	applyInputStyles(&m.input, textColor, blurText)
	m.status = ""
	m.resize()
}

func normalizeNewlines(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")
	return value
}

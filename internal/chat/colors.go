package chat

import "github.com/charmbracelet/lipgloss"

var (
	inputBg     = lipgloss.Color("236")
	textColor   = lipgloss.Color("252")
	blurText    = lipgloss.Color("244")
	caretColor  = lipgloss.Color("111")
	editColor   = lipgloss.Color("216")
	statusColor = lipgloss.Color("244")
	errorColor  = lipgloss.Color("196")
)

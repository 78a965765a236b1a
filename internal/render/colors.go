package render

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

var authorPalette = []lipgloss.Color{
	lipgloss.Color("111"),
	lipgloss.Color("157"),
	lipgloss.Color("216"),
	lipgloss.Color("36"),
	lipgloss.Color("183"),
	lipgloss.Color("230"),
}

var (
	selfColor    = lipgloss.Color("250")
	mutedColor   = lipgloss.Color("242")
	failedColor  = lipgloss.Color("203")
	infoColor    = lipgloss.Color("179")
	okColor      = lipgloss.Color("114")
	actionColor  = lipgloss.Color("203")
	pendingColor = lipgloss.Color("244")
)

// ColorForAuthor picks a stable palette color for an author id.
func ColorForAuthor(authorID string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(authorID))
	return authorPalette[int(h.Sum32()%uint32(len(authorPalette)))]
}

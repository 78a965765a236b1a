package render

import (
	"bytes"
	"os"
	"strings"

	"github.com/alecthomas/chroma/quick"
)

const (
	chromaFormatter = "terminal256"
	chromaStyle     = "dracula"
)

// fenced is an open code fence while scanning a body.
type fenced struct {
	marker string // run of ` or ~ that opened the block
	lang   string
	start  int // index of the opening line
}

// HighlightCodeBlocks colors fenced code blocks in a message body. Fence
// lines and prose are kept as written. An unclosed fence is left as plain
// text, and nothing is colored when NO_COLOR is set.
func HighlightCodeBlocks(body string) string {
	if body == "" || os.Getenv("NO_COLOR") != "" {
		return body
	}

	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	var open *fenced
	for i, line := range lines {
		if open == nil {
			if marker, lang, ok := parseFence(line); ok {
				open = &fenced{marker: marker, lang: lang, start: i}
				continue
			}
			out = append(out, line)
			continue
		}
		if !closesFence(line, open.marker) {
			continue
		}
		out = append(out, lines[open.start])
		if code := strings.Join(lines[open.start+1:i], "\n"); code != "" {
			out = append(out, highlightCode(code, open.lang))
		}
		out = append(out, line)
		open = nil
	}
	if open != nil {
		out = append(out, lines[open.start:]...)
	}
	return strings.Join(out, "\n")
}

// parseFence reports whether line opens a fence of three or more backticks
// or tildes, returning the marker and the info-string language.
func parseFence(line string) (string, string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" || (trimmed[0] != '`' && trimmed[0] != '~') {
		return "", "", false
	}
	n := len(trimmed) - len(strings.TrimLeft(trimmed, trimmed[:1]))
	if n < 3 {
		return "", "", false
	}
	lang := ""
	if info := strings.Fields(trimmed[n:]); len(info) > 0 {
		lang = info[0]
	}
	return trimmed[:n], lang, true
}

// closesFence matches a line made only of the opening character, at least
// as long as the opening marker.
func closesFence(line, marker string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= len(marker) && strings.Trim(trimmed, marker[:1]) == ""
}

func highlightCode(code, lang string) string {
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, code, strings.ToLower(strings.TrimSpace(lang)), chromaFormatter, chromaStyle); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

package main

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const (
	esc = 0x1B
	bel = 0x07

	// maxPendingEscape bounds how much of an unterminated escape sequence
	// is held back before it is flushed anyway.
	maxPendingEscape = 4096
)

// sanitize strips ANSI escape sequences and control characters from text
// received from the server before it is written to the terminal. Tabs and
// newlines are kept and CRLF becomes LF.
func sanitize(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' || (r > 0x1F && r != 0x7F && (r < 0x80 || r > 0x9F)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// streamSanitizer sanitizes text that arrives in pieces. An escape sequence
// split across pieces is held back until the piece that completes it.
type streamSanitizer struct {
	pending string
}

// Write returns the sanitized text that is safe to print so far.
func (s *streamSanitizer) Write(text string) string {
	text = s.pending + text
	cut := pendingEscape(text)
	if len(text)-cut > maxPendingEscape {
		cut = len(text)
	}
	s.pending = text[cut:]
	return sanitize(text[:cut])
}

// Flush returns whatever is still held back, sanitized.
func (s *streamSanitizer) Flush() string {
	out := sanitize(s.pending)
	s.pending = ""
	return out
}

// pendingEscape returns the index at which an unterminated escape sequence
// at the end of s starts, or len(s) when there is none.
func pendingEscape(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != esc {
			continue
		}
		end := escapeEnd(s, i)
		if end < 0 {
			return i
		}
		i = end - 1
	}
	return len(s)
}

// escapeEnd returns the index just past the escape sequence starting at i,
// or -1 when s ends before the sequence does.
func escapeEnd(s string, i int) int {
	if i+1 >= len(s) {
		return -1
	}
	switch s[i+1] {
	case '[':
		for j := i + 2; j < len(s); j++ {
			switch c := s[j]; {
			case c >= 0x40 && c <= 0x7E:
				return j + 1
			case c < 0x20 || c > 0x7E:
				return j
			}
		}
		return -1
	case ']', 'P', '_', '^', 'X':
		for j := i + 2; j < len(s); j++ {
			switch s[j] {
			case bel:
				return j + 1
			case esc:
				if j+1 >= len(s) {
					return -1
				}
				if s[j+1] == '\\' {
					return j + 2
				}
			}
		}
		return -1
	default:
		return i + 2
	}
}

// Package goldmark renders assistant answers, which are markdown, to
// ANSI-styled terminal output using goldmark for parsing and lipgloss for
// styling.
package goldmark

import "github.com/fwojciec/ragchat"

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs, list items and quotes are word-wrapped to width; code blocks
// and tables are not reflowed. Citation markers such as [1] are
// highlighted with the theme's source color.
//
// Render accepts incomplete input, so a partially streamed answer can be
// rendered after every chunk.
func Render(source string, width int, theme ragchat.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	return newRenderer(theme).render([]byte(source), width)
}

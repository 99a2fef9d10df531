package bubbletea

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/ragchat"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// maxErrorDetailLines caps how much of a server error body is shown.
const maxErrorDetailLines = 5

// ErrorBlock renders a failed send or command. Errors from the chat
// backend get a summary line naming the failure and the server's response
// body, when there is one, as detail below it.
type ErrorBlock struct {
	summary string
	detail  string
	styles  Styles
}

// NewErrorBlock creates an ErrorBlock for err.
func NewErrorBlock(err error, styles Styles) *ErrorBlock {
	summary, detail := describeError(err)
	return &ErrorBlock{summary: summary, detail: detail, styles: styles}
}

func (b *ErrorBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	content := b.styles.Error.Render(b.summary)
	if b.detail != "" {
		content += "\n" + b.styles.Muted.Render(b.detail)
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

func describeError(err error) (summary, detail string) {
	var statusErr *ragchat.StatusError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.StatusCode >= 500 {
			summary = fmt.Sprintf("Server error (HTTP %d)", statusErr.StatusCode)
		} else {
			summary = fmt.Sprintf("Request rejected (HTTP %d)", statusErr.StatusCode)
		}
		return summary, truncateLines(strings.TrimSpace(statusErr.Body), maxErrorDetailLines)
	case errors.Is(err, ragchat.ErrTransport):
		return "Cannot reach the server", err.Error()
	case errors.Is(err, ragchat.ErrNoResponseBody):
		return "The server returned no answer", ""
	case errors.Is(err, ragchat.ErrStreamInFlight):
		return "An answer is still streaming", ""
	default:
		return fmt.Sprintf("Error: %v", err), ""
	}
}

func truncateLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}

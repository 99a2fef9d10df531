package bubbletea

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*UserMessageBlock)(nil)

// UserMessageBlock renders a user message with a "> " prefix and the
// number of attached images.
type UserMessageBlock struct {
	text   string
	images int
	styles Styles
}

// NewUserMessageBlock creates a UserMessageBlock.
func NewUserMessageBlock(text string, images int, styles Styles) *UserMessageBlock {
	return &UserMessageBlock{text: text, images: images, styles: styles}
}

func (b *UserMessageBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *UserMessageBlock) View(width int) string {
	content := b.styles.UserMsg.Render("> ") + b.text
	switch {
	case b.images == 1:
		content += " " + b.styles.Muted.Render("[1 image]")
	case b.images > 1:
		content += " " + b.styles.Muted.Render(fmt.Sprintf("[%d images]", b.images))
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

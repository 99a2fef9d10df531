package bubbletea

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/ragchat"
	"github.com/fwojciec/ragchat/goldmark"
	"github.com/mattn/go-runewidth"
)

var _ MessageBlock = (*AssistantBlock)(nil)

// AssistantBlock renders a streamed answer as markdown followed by its
// sources and token count. Text up to the last paragraph break outside a
// code fence is rendered once per width and cached; only the tail is
// re-rendered as chunks arrive.
type AssistantBlock struct {
	content strings.Builder
	sources []ragchat.SourceDocument
	tokens  int
	theme   ragchat.Theme
	styles  Styles

	expanded bool

	stable        string
	stableByWidth map[int]string
}

// NewAssistantBlock creates an empty AssistantBlock.
func NewAssistantBlock(theme ragchat.Theme, styles Styles) *AssistantBlock {
	return &AssistantBlock{
		theme:         theme,
		styles:        styles,
		stableByWidth: make(map[int]string),
	}
}

// NewAssistantBlockFromMessage creates a block showing a stored answer.
func NewAssistantBlockFromMessage(msg ragchat.Message, theme ragchat.Theme, styles Styles) *AssistantBlock {
	b := NewAssistantBlock(theme, styles)
	b.Append(msg.Content)
	b.sources = msg.Sources
	if msg.Confidence != nil {
		b.tokens = int(*msg.Confidence)
	}
	return b
}

// Apply folds a chunk into the block the same way the conversation folds
// it into the history.
func (b *AssistantBlock) Apply(chunk ragchat.StreamChunk) {
	b.Append(chunk.Content)
	if chunk.Sources != nil {
		b.sources = chunk.Sources
	}
	if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
		b.tokens = chunk.Usage.TotalTokens
	}
}

// Append adds streamed text.
func (b *AssistantBlock) Append(text string) {
	b.content.WriteString(text)
	b.advanceStable()
}

// HasSources reports whether the answer carries source attributions.
func (b *AssistantBlock) HasSources() bool {
	return len(b.sources) > 0
}

func (b *AssistantBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.expanded = !b.expanded
	}
	return b, nil
}

func (b *AssistantBlock) View(width int) string {
	parts := []string{}
	if text := b.renderText(width); text != "" {
		parts = append(parts, text)
	}
	if s := b.renderSources(width); s != "" {
		parts = append(parts, s)
	}
	if b.tokens > 0 {
		parts = append(parts, b.styles.Muted.Render(fmt.Sprintf("%d tokens", b.tokens)))
	}
	return strings.Join(parts, "\n")
}

func (b *AssistantBlock) renderText(width int) string {
	stable := b.renderStable(width)
	tail := b.tail()
	if hasUnclosedFence(tail) {
		tail += "\n```"
	}
	if strings.TrimSpace(tail) == "" {
		return stable
	}
	rendered := goldmark.Render(tail, width, b.theme)
	if strings.TrimSpace(rendered) == "" {
		return stable
	}
	if stable == "" {
		return rendered
	}
	return strings.TrimRight(stable, "\n") + "\n\n" + strings.TrimLeft(rendered, "\n")
}

func (b *AssistantBlock) renderSources(width int) string {
	if len(b.sources) == 0 {
		return ""
	}
	if !b.expanded {
		noun := "sources"
		if len(b.sources) == 1 {
			noun = "source"
		}
		return b.styles.Source.Render(fmt.Sprintf("▸ %d %s", len(b.sources), noun)) +
			b.styles.Muted.Render(" (Tab to expand)")
	}

	lines := []string{b.styles.Source.Render("▾ Sources")}
	for i, src := range b.sources {
		label := fmt.Sprintf("  [%d] ", i+1)
		title := src.Title()
		if title == "" {
			title = "untitled"
		}
		var score string
		if v, ok := src.Score(); ok {
			score = fmt.Sprintf(" (%.2f)", v)
		}
		room := width - runewidth.StringWidth(label) - runewidth.StringWidth(score)
		if room > 0 {
			title = runewidth.Truncate(title, room, "…")
		}
		lines = append(lines, b.styles.Source.Render(label+title)+b.styles.Muted.Render(score))
	}
	return strings.Join(lines, "\n")
}

// advanceStable moves the cached prefix forward to the last "\n\n" that is
// not inside a fenced code block.
func (b *AssistantBlock) advanceStable() {
	raw := b.content.String()
	end := len(raw)
	for {
		idx := strings.LastIndex(raw[:end], "\n\n")
		if idx <= 0 {
			return
		}
		candidate := raw[:idx]
		if !hasUnclosedFence(candidate) {
			if candidate != b.stable {
				b.stable = candidate
				clear(b.stableByWidth)
			}
			return
		}
		end = idx
	}
}

func (b *AssistantBlock) renderStable(width int) string {
	if width <= 0 || b.stable == "" {
		return ""
	}
	if cached, ok := b.stableByWidth[width]; ok {
		return cached
	}
	rendered := goldmark.Render(b.stable, width, b.theme)
	b.stableByWidth[width] = rendered
	return rendered
}

func (b *AssistantBlock) tail() string {
	raw := b.content.String()
	if b.stable == "" {
		return raw
	}
	return strings.TrimPrefix(raw, b.stable+"\n\n")
}

// hasUnclosedFence counts "```" occurrences; an odd count means a fence is
// open.
func hasUnclosedFence(s string) bool {
	return strings.Count(s, "```")%2 == 1
}

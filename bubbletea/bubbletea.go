// Package bubbletea provides a Bubble Tea TUI for chatting with the RAG
// backend.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/ragchat"
)

// Chat is the conversation the TUI drives. *ragchat.Conversation
// implements it.
type Chat interface {
	SessionID() string
	Messages() []ragchat.Message
	Send(ctx context.Context, input string, settings ragchat.Settings, images []ragchat.Image, onChunk func(ragchat.StreamChunk)) error
	Reset(ctx context.Context) error
}

var _ Chat = (*ragchat.Conversation)(nil)

// ImageLoader loads the images matched by glob patterns.
type ImageLoader func(patterns ...string) ([]ragchat.Image, error)

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. When ctx is cancelled, the program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// ChunkMsg delivers a streamed chunk to the model after the conversation
// has folded it into the history.
type ChunkMsg struct {
	Chunk ragchat.StreamChunk
}

// SendDoneMsg signals that a send has completed.
type SendDoneMsg struct {
	Err error
}

// ResetDoneMsg signals that a new session has been started.
type ResetDoneMsg struct {
	SessionID string
	Err       error
}

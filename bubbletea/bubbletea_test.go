package bubbletea_test

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/ragchat"
	bt "github.com/fwojciec/ragchat/bubbletea"
	"github.com/stretchr/testify/require"
)

// fakeChat is a Chat whose Send is scripted by sendFn.
type fakeChat struct {
	mu       sync.Mutex
	id       string
	messages []ragchat.Message
	resets   int
	sendFn   func(ctx context.Context, input string, images []ragchat.Image, onChunk func(ragchat.StreamChunk)) error
}

func (c *fakeChat) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *fakeChat) Messages() []ragchat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ragchat.Message(nil), c.messages...)
}

func (c *fakeChat) Send(ctx context.Context, input string, _ ragchat.Settings, images []ragchat.Image, onChunk func(ragchat.StreamChunk)) error {
	if c.sendFn == nil {
		return nil
	}
	return c.sendFn(ctx, input, images, onChunk)
}

func (c *fakeChat) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	c.id = "sess-new"
	c.messages = nil
	return nil
}

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, chat bt.Chat, opts ...bt.Option) bt.Model {
	t.Helper()
	m := bt.New(chat, ragchat.DefaultSettings(), ragchat.DefaultTheme(), opts...)
	return updateModel(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// typeText sets the input value and presses Enter, returning the command.
func typeText(t *testing.T, m bt.Model, text string) (bt.Model, tea.Cmd) {
	t.Helper()
	m.Input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model, cmd
}

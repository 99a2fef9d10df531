package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/ragchat"
)

var _ tea.Model = Model{}

const (
	cmdNew   = "/new"
	cmdImage = "/image"
)

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	chat       Chat
	settings   ragchat.Settings
	loadImages ImageLoader
	theme      ragchat.Theme
	styles     Styles

	blocks []MessageBlock
	active *AssistantBlock // answer being streamed
	images []ragchat.Image // attached to the next message

	running bool
	cancel  context.CancelFunc
	chunkCh chan ragchat.StreamChunk
	doneCh  chan error
	err     error
	ready   bool
}

// Option configures a Model.
type Option func(*Model)

// WithImageLoader enables the /image command.
func WithImageLoader(fn ImageLoader) Option {
	return func(m *Model) { m.loadImages = fn }
}

// New creates a TUI Model for chat, sending every message with settings.
func New(chat Chat, settings ragchat.Settings, theme ragchat.Theme, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		Input:    ti,
		chat:     chat,
		settings: settings,
		theme:    theme,
		styles:   NewStyles(theme),
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Running returns whether a send is in flight.
func (m Model) Running() bool { return m.running }

// Err returns the error of the last send, if any.
func (m Model) Err() error { return m.err }

// AttachedImages returns the number of images attached to the next message.
func (m Model) AttachedImages() int { return len(m.images) }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ChunkMsg:
		if m.active != nil {
			m.active.Apply(msg.Chunk)
		}
		m = m.refresh()
		if m.chunkCh != nil {
			return m, listenForChunk(m.chunkCh, m.doneCh)
		}
		return m, nil

	case SendDoneMsg:
		return m.handleSendDone(msg)

	case ResetDoneMsg:
		if msg.Err != nil {
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
		} else {
			m.blocks = nil
			m.images = nil
			m.err = nil
			m.blocks = append(m.blocks, NewNoticeBlock("New session "+msg.SessionID, m.styles))
		}
		return m.refresh(), nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)
	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputHeight := 1
	statusHeight := 1
	borderHeight := 2
	vpHeight := max(msg.Height-inputHeight-statusHeight-borderHeight, 1)

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m = m.renderHistory()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}
	m.Input.Width = msg.Width
	return m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" && len(m.images) == 0 {
			return m, nil
		}
		m.Input.SetValue("")
		return m.handleInput(text)

	case tea.KeyTab:
		if b := m.lastWithSources(); b != nil {
			b.Update(ToggleMsg{})
			m.Viewport.SetContent(m.renderContent())
		}
		return m, nil
	}

	if m.running {
		return m, nil
	}
	var cmds []tea.Cmd
	var cmd tea.Cmd
	// Character keys go only to the input so they do not scroll.
	if msg.Type != tea.KeyRunes {
		m.Viewport, cmd = m.Viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleInput(text string) (tea.Model, tea.Cmd) {
	switch {
	case text == cmdNew:
		return m, resetSession(m.chat)
	case text == cmdImage || strings.HasPrefix(text, cmdImage+" "):
		return m.attachImages(strings.Fields(strings.TrimPrefix(text, cmdImage))), nil
	}
	return m.submit(text)
}

func (m Model) attachImages(patterns []string) Model {
	switch {
	case m.loadImages == nil:
		m.blocks = append(m.blocks, NewErrorBlock(errors.New("image attachments are not enabled"), m.styles))
	case len(patterns) == 0:
		m.blocks = append(m.blocks, NewErrorBlock(errors.New("usage: /image <glob>..."), m.styles))
	default:
		images, err := m.loadImages(patterns...)
		if err != nil {
			m.blocks = append(m.blocks, NewErrorBlock(err, m.styles))
			break
		}
		m.images = append(m.images, images...)
		m.blocks = append(m.blocks, NewNoticeBlock(fmt.Sprintf("Attached %d image(s) to the next message", len(images)), m.styles))
	}
	return m.refresh()
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	m.err = nil
	images := m.images
	m.images = nil

	m.active = NewAssistantBlock(m.theme, m.styles)
	m.blocks = append(m.blocks, NewUserMessageBlock(text, len(images), m.styles), m.active)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.chunkCh = make(chan ragchat.StreamChunk, 256)
	m.doneCh = make(chan error, 1)
	m.running = true
	m.Input.Blur()

	return m.refresh(), tea.Batch(
		startSend(ctx, m.chat, text, m.settings, images, m.chunkCh, m.doneCh),
		listenForChunk(m.chunkCh, m.doneCh),
	)
}

func (m Model) handleSendDone(msg SendDoneMsg) (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.cancel = nil
	m.chunkCh = nil
	m.doneCh = nil

	if msg.Err != nil {
		// The conversation drops a failed answer, so the view does too.
		m.blocks = m.withoutActive()
		if errors.Is(msg.Err, context.Canceled) {
			m.blocks = append(m.blocks, NewNoticeBlock("Cancelled", m.styles))
		} else {
			m.err = msg.Err
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
		}
	}
	m.active = nil
	cmd := m.Input.Focus()
	return m.refresh(), cmd
}

func (m Model) withoutActive() []MessageBlock {
	out := make([]MessageBlock, 0, len(m.blocks))
	for _, b := range m.blocks {
		if b != MessageBlock(m.active) {
			out = append(out, b)
		}
	}
	return out
}

func (m Model) lastWithSources() *AssistantBlock {
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if b, ok := m.blocks[i].(*AssistantBlock); ok && b.HasSources() {
			return b
		}
	}
	return nil
}

// renderHistory creates blocks for the messages already in the session.
func (m Model) renderHistory() Model {
	for _, msg := range m.chat.Messages() {
		switch msg.Role {
		case ragchat.RoleUser:
			m.blocks = append(m.blocks, NewUserMessageBlock(msg.Content, 0, m.styles))
		case ragchat.RoleAssistant:
			m.blocks = append(m.blocks, NewAssistantBlockFromMessage(msg, m.theme, m.styles))
		}
	}
	return m
}

func (m Model) refresh() Model {
	if !m.ready {
		return m
	}
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

func (m Model) renderContent() string {
	var b strings.Builder
	for _, block := range m.blocks {
		view := block.View(m.Viewport.Width)
		if view == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(view)
	}
	return b.String()
}

func (m Model) statusLine() string {
	if m.running {
		return m.styles.Muted.Render("Streaming... Ctrl+C to cancel")
	}
	var parts []string
	if n := len(m.images); n > 0 {
		parts = append(parts, m.styles.Accent.Render(fmt.Sprintf("%d image(s) attached", n)))
	}
	parts = append(parts, m.styles.Muted.Render("Enter to send, /new for a new session, /image <glob> to attach, Ctrl+C to quit"))
	return strings.Join(parts, m.styles.Muted.Render(" · "))
}

// startSend runs the send in a goroutine and signals completion.
func startSend(ctx context.Context, chat Chat, text string, settings ragchat.Settings, images []ragchat.Image, chunkCh chan<- ragchat.StreamChunk, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := chat.Send(ctx, text, settings, images, func(c ragchat.StreamChunk) {
			select {
			case chunkCh <- c:
			case <-ctx.Done():
			}
		})
		close(chunkCh)
		doneCh <- err
		return nil
	}
}

// listenForChunk waits for the next chunk from the channel.
// When the channel closes, it reads the error from doneCh and returns SendDoneMsg.
func listenForChunk(ch <-chan ragchat.StreamChunk, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-ch
		if !ok {
			return SendDoneMsg{Err: <-doneCh}
		}
		return ChunkMsg{Chunk: chunk}
	}
}

func resetSession(chat Chat) tea.Cmd {
	return func() tea.Msg {
		if err := chat.Reset(context.Background()); err != nil {
			return ResetDoneMsg{Err: err}
		}
		return ResetDoneMsg{SessionID: chat.SessionID()}
	}
}

package ragchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ConversationState is the state of the most recent send cycle.
type ConversationState int

const (
	StateIdle      ConversationState = iota // No send since the session was loaded or reset.
	StateSent                               // User message appended, awaiting the response.
	StateStreaming                          // Response stream open, folding chunks.
	StateFinalized                          // Answer complete and immutable.
	StateErrored                            // Send failed, placeholder removed.
)

func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("ConversationState(%d)", int(s))
	}
}

// Conversation holds the in-memory history of the active session and folds
// streamed answers into it. Every change to the history is persisted
// through the SessionStore before the change becomes visible to callers.
//
// At most one send is in flight at a time; a second Send while one is
// pending returns ErrStreamInFlight.
type Conversation struct {
	sessions *SessionStore
	client   Client
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	session  Session
	messages []Message
	state    ConversationState
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithLogger sets the logger used by the Conversation.
func WithLogger(l *slog.Logger) ConversationOption {
	return func(c *Conversation) { c.logger = l }
}

// WithClock sets the function used to timestamp new messages.
func WithClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) { c.now = now }
}

// NewConversation loads (or creates) the active session and its history.
func NewConversation(ctx context.Context, sessions *SessionStore, client Client, opts ...ConversationOption) (*Conversation, error) {
	c := &Conversation{
		sessions: sessions,
		client:   client,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}

	session, err := sessions.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := sessions.LoadHistory(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	c.session = session
	c.messages = msgs
	return c, nil
}

// SessionID returns the identifier of the active session.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.ID
}

// State returns the state of the most recent send cycle.
func (c *Conversation) State() ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streaming reports whether a send is in flight. Front ends use it to gate
// new sends.
func (c *Conversation) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy()
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Send appends a user message, streams the answer into a placeholder
// assistant message and returns once the answer is final or the send
// failed. onChunk, if non-nil, is called after each chunk has been folded
// into the history.
//
// On failure the placeholder is removed, the user message is kept and the
// error is returned. Partial answers are never kept.
func (c *Conversation) Send(ctx context.Context, input string, settings Settings, images []Image, onChunk func(StreamChunk)) error {
	req, err := c.begin(ctx, input, settings, images)
	if err != nil {
		return err
	}

	stream, err := c.client.Stream(ctx, req)
	if err != nil {
		return c.fail(ctx, err)
	}
	defer stream.Close()

	c.mu.Lock()
	c.state = StateStreaming
	c.mu.Unlock()

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			c.finalize()
			return nil
		}
		if err != nil {
			return c.fail(ctx, err)
		}

		final, err := c.fold(ctx, chunk)
		if err != nil {
			return c.fail(ctx, err)
		}
		if onChunk != nil {
			onChunk(chunk)
		}
		if final {
			return nil
		}
	}
}

// Reset starts a new session and clears the in-memory history.
func (c *Conversation) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy() {
		return ErrStreamInFlight
	}
	session, err := c.sessions.Reset(ctx)
	if err != nil {
		return err
	}
	c.session = session
	c.messages = nil
	c.state = StateIdle
	return nil
}

func (c *Conversation) busy() bool {
	return c.state == StateSent || c.state == StateStreaming
}

// begin appends the user message and the placeholder, persists them and
// builds the request.
func (c *Conversation) begin(ctx context.Context, input string, settings Settings, images []Image) (ChatRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy() {
		return ChatRequest{}, ErrStreamInFlight
	}
	if err := settings.Validate(); err != nil {
		return ChatRequest{}, err
	}
	text := strings.TrimSpace(input)
	if text == "" && len(images) == 0 {
		return ChatRequest{}, fmt.Errorf("message is empty: %w", ErrValidation)
	}

	now := c.now()
	prevState := c.state
	c.messages = append(c.messages,
		Message{Role: RoleUser, Content: text, Timestamp: now},
		Message{Role: RoleAssistant, Content: "", Timestamp: now},
	)
	c.state = StateSent

	if err := c.persist(ctx); err != nil {
		c.messages = c.messages[:len(c.messages)-2]
		c.state = prevState
		return ChatRequest{}, err
	}

	history := make([]Message, len(c.messages)-1)
	copy(history, c.messages[:len(c.messages)-1])

	c.logger.Debug("send started", "session_id", c.session.ID, "messages", len(history), "images", len(images))
	return ChatRequest{
		SessionID: c.session.ID,
		Messages:  history,
		Settings:  settings,
		Images:    images,
	}, nil
}

// fold applies a chunk to the placeholder and reports whether the chunk
// finalized the answer.
func (c *Conversation) fold(ctx context.Context, chunk StreamChunk) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := &c.messages[len(c.messages)-1]
	msg.Content += chunk.Content
	if chunk.Sources != nil {
		msg.Sources = chunk.Sources
	}
	if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
		tokens := float64(chunk.Usage.TotalTokens)
		msg.Confidence = &tokens
	}
	if chunk.IsFinal {
		c.state = StateFinalized
	}

	if err := c.persist(ctx); err != nil {
		return false, err
	}
	if chunk.IsFinal {
		c.logger.Debug("answer finalized", "session_id", c.session.ID, "content_length", len(msg.Content))
	}
	return chunk.IsFinal, nil
}

func (c *Conversation) finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateFinalized
	c.logger.Debug("stream ended", "session_id", c.session.ID, "content_length", len(c.messages[len(c.messages)-1].Content))
}

// fail removes the placeholder and returns cause, joined with any error
// from persisting the rollback.
func (c *Conversation) fail(ctx context.Context, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.messages); n > 0 && c.messages[n-1].Role == RoleAssistant {
		c.messages = c.messages[:n-1]
	}
	c.state = StateErrored
	c.logger.Warn("send failed", "session_id", c.session.ID, "error", cause)

	// The caller's context may be the reason for the failure.
	if err := c.persist(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// persist must be called with mu held.
func (c *Conversation) persist(ctx context.Context) error {
	return c.sessions.SaveHistory(ctx, c.session.ID, c.messages)
}

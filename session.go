package ragchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Keys under which session state is persisted in a Store.
const (
	SessionIDKey     = "ragchat:session_id"
	historyKeyPrefix = "ragchat:history:"
)

// HistoryKey returns the Store key holding the history of a session.
func HistoryKey(sessionID string) string {
	return historyKeyPrefix + sessionID
}

// Session is the durable conversation identity of this device.
// Created is true when the identifier was minted by the call that
// returned it.
type Session struct {
	ID      string
	Created bool
}

// SessionStore owns the active session identifier and the history stored
// for it. It is the only component that reads or writes session state.
type SessionStore struct {
	store  Store
	codec  HistoryCodec
	newID  func() string
	logger *slog.Logger
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithIDGenerator replaces the random UUID generator. Useful for tests.
func WithIDGenerator(fn func() string) SessionOption {
	return func(s *SessionStore) { s.newID = fn }
}

// WithSessionLogger sets the logger used by the SessionStore.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionStore) { s.logger = l }
}

// NewSessionStore creates a SessionStore persisting to store with codec.
func NewSessionStore(store Store, codec HistoryCodec, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		store:  store,
		codec:  codec,
		newID:  uuid.NewString,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetOrCreate returns the persisted session, minting and persisting a new
// identifier when none exists yet.
func (s *SessionStore) GetOrCreate(ctx context.Context) (Session, error) {
	data, err := s.store.Get(ctx, SessionIDKey)
	switch {
	case err == nil && len(data) > 0:
		return Session{ID: string(data)}, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Session{}, fmt.Errorf("read session id: %w", err)
	}

	id := s.newID()
	if err := s.store.Put(ctx, SessionIDKey, []byte(id)); err != nil {
		return Session{}, fmt.Errorf("write session id: %w", err)
	}
	s.logger.Debug("session created", "session_id", id)
	return Session{ID: id, Created: true}, nil
}

// Reset replaces the session identifier with a freshly minted one and then
// discards the history of the previous session. Callers must clear any
// in-memory copy of the history themselves.
//
// The new identifier is written first, so a failed write leaves the
// previous session and its history intact. Once the new identifier is
// stored a failure to delete the old history is logged and the reset
// still succeeds.
func (s *SessionStore) Reset(ctx context.Context) (Session, error) {
	prev, err := s.store.Get(ctx, SessionIDKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Session{}, fmt.Errorf("read session id: %w", err)
	}

	id := s.newID()
	for id == string(prev) {
		id = s.newID()
	}
	if err := s.store.Put(ctx, SessionIDKey, []byte(id)); err != nil {
		return Session{}, fmt.Errorf("write session id: %w", err)
	}
	if len(prev) > 0 {
		if err := s.store.Delete(ctx, HistoryKey(string(prev))); err != nil {
			s.logger.Warn("delete history of previous session", "session_id", string(prev), "error", err)
		}
	}
	s.logger.Debug("session reset", "previous_session_id", string(prev), "session_id", id)
	return Session{ID: id, Created: true}, nil
}

// LoadHistory returns the stored history of a session. A session without
// stored history has an empty history.
func (s *SessionStore) LoadHistory(ctx context.Context, sessionID string) ([]Message, error) {
	data, err := s.store.Get(ctx, HistoryKey(sessionID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	msgs, err := s.codec.UnmarshalHistory(data)
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

// SaveHistory overwrites the stored history of a session.
func (s *SessionStore) SaveHistory(ctx context.Context, sessionID string, messages []Message) error {
	data, err := s.codec.MarshalHistory(sessionID, messages)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.store.Put(ctx, HistoryKey(sessionID), data); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

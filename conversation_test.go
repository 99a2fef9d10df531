package ragchat_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/ragchat"
	ragjson "github.com/fwojciec/ragchat/json"
	"github.com/fwojciec/ragchat/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

// recordingStore wraps an in-memory store and records every history write.
type recordingStore struct {
	*mock.Store
	mu      sync.Mutex
	history [][]ragchat.Message
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	rs := &recordingStore{Store: mock.MemoryStore()}
	put := rs.PutFn
	rs.PutFn = func(ctx context.Context, key string, value []byte) error {
		if strings.HasPrefix(key, ragchat.HistoryKey("")) {
			msgs, err := ragjson.Codec{}.UnmarshalHistory(value)
			require.NoError(t, err)
			rs.mu.Lock()
			rs.history = append(rs.history, msgs)
			rs.mu.Unlock()
		}
		return put(ctx, key, value)
	}
	return rs
}

func (rs *recordingStore) writes() [][]ragchat.Message {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([][]ragchat.Message(nil), rs.history...)
}

func newConversation(t *testing.T, store ragchat.Store, client ragchat.Client) *ragchat.Conversation {
	t.Helper()
	sessions := ragchat.NewSessionStore(store, ragjson.Codec{}, ragchat.WithIDGenerator(sequentialIDs("sess-1", "sess-2", "sess-3")))
	conv, err := ragchat.NewConversation(context.Background(), sessions, client,
		ragchat.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return conv
}

func streamOf(err error, chunks ...ragchat.StreamChunk) *mock.Client {
	return &mock.Client{StreamFn: func(context.Context, ragchat.ChatRequest) (ragchat.ChunkStream, error) {
		return mock.Chunks(err, chunks...), nil
	}}
}

func TestConversation_HelloWorld(t *testing.T) {
	t.Parallel()
	client := streamOf(nil,
		ragchat.StreamChunk{Content: "Hello ", IsFinal: false},
		ragchat.StreamChunk{Content: "world!", IsFinal: true},
	)
	conv := newConversation(t, mock.MemoryStore(), client)

	var seen []string
	var streamingDuring []bool
	err := conv.Send(context.Background(), "hi", ragchat.DefaultSettings(), nil, func(c ragchat.StreamChunk) {
		seen = append(seen, c.Content)
		streamingDuring = append(streamingDuring, conv.Streaming())
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello ", "world!"}, seen)
	assert.Equal(t, []bool{true, false}, streamingDuring)
	assert.False(t, conv.Streaming())
	assert.Equal(t, ragchat.StateFinalized, conv.State())

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, ragchat.Message{Role: ragchat.RoleUser, Content: "hi", Timestamp: fixedNow}, msgs[0])
	assert.Equal(t, ragchat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello world!", msgs[1].Content)
	assert.Equal(t, fixedNow, msgs[1].Timestamp)
}

func TestConversation_ContentIsConcatenation(t *testing.T) {
	t.Parallel()
	sequences := [][]string{
		{"a"},
		{"", "", ""},
		{"The ", "quick ", "brown ", "fox"},
		{"multi\nline ", "```go\n", "fmt.Println()\n", "```"},
		{"żółw ", "🐢", " 亀"},
	}
	for _, seq := range sequences {
		chunks := make([]ragchat.StreamChunk, len(seq))
		for i, s := range seq {
			chunks[i] = ragchat.StreamChunk{Content: s}
		}
		conv := newConversation(t, mock.MemoryStore(), streamOf(nil, chunks...))
		require.NoError(t, conv.Send(context.Background(), "q", ragchat.DefaultSettings(), nil, nil))

		msgs := conv.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, strings.Join(seq, ""), msgs[1].Content)
		assert.Equal(t, ragchat.StateFinalized, conv.State(), "clean EOF finalizes")
	}
}

func TestConversation_RollbackOnError(t *testing.T) {
	t.Parallel()

	t.Run("read error mid-stream", func(t *testing.T) {
		t.Parallel()
		store := newRecordingStore(t)
		readErr := errors.New("connection reset")
		conv := newConversation(t, store, streamOf(readErr, ragchat.StreamChunk{Content: "partial"}))

		err := conv.Send(context.Background(), "hi", ragchat.DefaultSettings(), nil, nil)
		require.ErrorIs(t, err, readErr)

		assert.Equal(t, ragchat.StateErrored, conv.State())
		assert.False(t, conv.Streaming())
		msgs := conv.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, ragchat.RoleUser, msgs[0].Role)

		writes := store.writes()
		last := writes[len(writes)-1]
		require.Len(t, last, 1, "rolled back history is persisted")
		assert.Equal(t, "hi", last[0].Content)
	})

	t.Run("status error before the stream opens", func(t *testing.T) {
		t.Parallel()
		client := &mock.Client{StreamFn: func(context.Context, ragchat.ChatRequest) (ragchat.ChunkStream, error) {
			return nil, &ragchat.StatusError{StatusCode: 500, Body: "boom"}
		}}
		conv := newConversation(t, mock.MemoryStore(), client)

		var chunks int
		err := conv.Send(context.Background(), "hi", ragchat.DefaultSettings(), nil, func(ragchat.StreamChunk) { chunks++ })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.Zero(t, chunks)
		assert.Len(t, conv.Messages(), 1)
	})

	t.Run("persist failure during rollback is joined", func(t *testing.T) {
		t.Parallel()
		store := mock.MemoryStore()
		put := store.PutFn
		var failing bool
		store.PutFn = func(ctx context.Context, key string, value []byte) error {
			if failing {
				return errors.New("disk full")
			}
			return put(ctx, key, value)
		}
		readErr := errors.New("connection reset")
		client := &mock.Client{StreamFn: func(context.Context, ragchat.ChatRequest) (ragchat.ChunkStream, error) {
			failing = true
			return mock.Chunks(readErr), nil
		}}
		conv := newConversation(t, store, client)

		err := conv.Send(context.Background(), "hi", ragchat.DefaultSettings(), nil, nil)
		require.ErrorIs(t, err, readErr)
		assert.ErrorContains(t, err, "disk full")
		assert.Len(t, conv.Messages(), 1)
	})

	t.Run("persist failure when sending leaves history untouched", func(t *testing.T) {
		t.Parallel()
		store := mock.MemoryStore()
		store.PutFn = func(ctx context.Context, key string, value []byte) error {
			if strings.HasPrefix(key, ragchat.HistoryKey("")) {
				return errors.New("disk full")
			}
			return nil
		}
		client := &mock.Client{StreamFn: func(context.Context, ragchat.ChatRequest) (ragchat.ChunkStream, error) {
			t.Fatal("stream must not open")
			return nil, nil
		}}
		conv := newConversation(t, store, client)

		err := conv.Send(context.Background(), "hi", ragchat.DefaultSettings(), nil, nil)
		assert.ErrorContains(t, err, "disk full")
		assert.Empty(t, conv.Messages())
		assert.Equal(t, ragchat.StateIdle, conv.State())
	})

	t.Run("context cancelled mid-stream", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		client := &mock.Client{StreamFn: func(ctx context.Context, _ ragchat.ChatRequest) (ragchat.ChunkStream, error) {
			sent := false
			return &mock.ChunkStream{NextFn: func() (ragchat.StreamChunk, error) {
				if !sent {
					sent = true
					return ragchat.StreamChunk{Content: "partial"}, nil
				}
				<-ctx.Done()
				return ragchat.StreamChunk{}, ctx.Err()
			}}, nil
		}}
		store := newRecordingStore(t)
		conv := newConversation(t, store, client)

		err := conv.Send(ctx, "hi", ragchat.DefaultSettings(), nil, func(ragchat.StreamChunk) { cancel() })
		require.ErrorIs(t, err, context.Canceled)
		assert.Len(t, conv.Messages(), 1)

		writes := store.writes()
		assert.Len(t, writes[len(writes)-1], 1, "rollback persisted despite cancelled context")
	})
}

func TestConversation_PersistsEveryTransition(t *testing.T) {
	t.Parallel()
	store := newRecordingStore(t)
	conv := newConversation(t, store, streamOf(nil,
		ragchat.StreamChunk{Content: "a"},
		ragchat.StreamChunk{Content: "b"},
		ragchat.StreamChunk{Content: "c", IsFinal: true},
	))

	require.NoError(t, conv.Send(context.Background(), "q", ragchat.DefaultSettings(), nil, nil))

	writes := store.writes()
	require.Len(t, writes, 4)
	contents := make([]string, len(writes))
	for i, w := range writes {
		require.Len(t, w, 2)
		contents[i] = w[1].Content
	}
	assert.Equal(t, []string{"", "a", "ab", "abc"}, contents)

	reloaded := newConversation(t, store.Store, streamOf(nil))
	assert.Equal(t, conv.SessionID(), reloaded.SessionID())
	assert.Equal(t, conv.Messages(), reloaded.Messages())
}

func TestConversation_Request(t *testing.T) {
	t.Parallel()
	var captured ragchat.ChatRequest
	client := &mock.Client{StreamFn: func(_ context.Context, req ragchat.ChatRequest) (ragchat.ChunkStream, error) {
		captured = req
		return mock.Chunks(nil, ragchat.StreamChunk{Content: "second answer", IsFinal: true}), nil
	}}
	store := mock.MemoryStore()
	conv := newConversation(t, store, client)
	require.NoError(t, conv.Send(context.Background(), "first", ragchat.DefaultSettings(), nil, nil))

	settings := ragchat.DefaultSettings()
	settings.TopK = 2
	images := []ragchat.Image{{MimeType: "image/png", Data: []byte{1}}}
	require.NoError(t, conv.Send(context.Background(), "  second  ", settings, images, nil))

	assert.Equal(t, "sess-1", captured.SessionID)
	assert.Equal(t, 2, captured.TopK)
	assert.Equal(t, images, captured.Images)
	require.Len(t, captured.Messages, 3, "history up to the new user message, without the placeholder")
	assert.Equal(t, "first", captured.Messages[0].Content)
	assert.Equal(t, ragchat.RoleAssistant, captured.Messages[1].Role)
	assert.Equal(t, ragchat.Message{Role: ragchat.RoleUser, Content: "second", Timestamp: fixedNow}, captured.Messages[2])
}

func TestConversation_SourcesAndUsage(t *testing.T) {
	t.Parallel()
	first := []ragchat.SourceDocument{ragchat.SourceDocument(`{"filename":"a.pdf"}`)}
	second := []ragchat.SourceDocument{ragchat.SourceDocument(`{"filename":"b.pdf"}`), ragchat.SourceDocument(`{"filename":"c.pdf"}`)}
	conv := newConversation(t, mock.MemoryStore(), streamOf(nil,
		ragchat.StreamChunk{Content: "x", Sources: first},
		ragchat.StreamChunk{Content: "y", Usage: &ragchat.Usage{TotalTokens: 0}},
		ragchat.StreamChunk{Content: "z", Sources: second, Usage: &ragchat.Usage{TotalTokens: 57, CostUSD: 0.01}},
		ragchat.StreamChunk{IsFinal: true},
	))

	require.NoError(t, conv.Send(context.Background(), "q", ragchat.DefaultSettings(), nil, nil))

	answer := conv.Messages()[1]
	assert.Equal(t, "xyz", answer.Content)
	assert.Equal(t, second, answer.Sources, "later sources replace earlier ones")
	require.NotNil(t, answer.Confidence)
	assert.Equal(t, 57.0, *answer.Confidence)
}

func TestConversation_FinalChunkStopsReading(t *testing.T) {
	t.Parallel()
	var closed bool
	reads := 0
	client := &mock.Client{StreamFn: func(context.Context, ragchat.ChatRequest) (ragchat.ChunkStream, error) {
		return &mock.ChunkStream{
			NextFn: func() (ragchat.StreamChunk, error) {
				reads++
				if reads == 1 {
					return ragchat.StreamChunk{Content: "done", IsFinal: true}, nil
				}
				return ragchat.StreamChunk{Content: "ignored"}, nil
			},
			CloseFn: func() error { closed = true; return nil },
		}, nil
	}}
	conv := newConversation(t, mock.MemoryStore(), client)

	require.NoError(t, conv.Send(context.Background(), "q", ragchat.DefaultSettings(), nil, nil))
	assert.Equal(t, 1, reads)
	assert.True(t, closed)
	assert.Equal(t, "done", conv.Messages()[1].Content)
}

func TestConversation_Validation(t *testing.T) {
	t.Parallel()
	conv := newConversation(t, mock.MemoryStore(), streamOf(nil))

	err := conv.Send(context.Background(), "   ", ragchat.DefaultSettings(), nil, nil)
	assert.ErrorIs(t, err, ragchat.ErrValidation)

	bad := ragchat.DefaultSettings()
	bad.Temperature = 5
	err = conv.Send(context.Background(), "hi", bad, nil, nil)
	assert.ErrorIs(t, err, ragchat.ErrValidation)

	assert.Empty(t, conv.Messages())
	assert.Equal(t, ragchat.StateIdle, conv.State())

	// Images alone are a valid message.
	err = conv.Send(context.Background(), "", ragchat.DefaultSettings(), []ragchat.Image{{Data: []byte{1}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", conv.Messages()[0].Content)
}

func TestConversation_SingleFlight(t *testing.T) {
	t.Parallel()
	opened := make(chan struct{})
	release := make(chan struct{})
	client := &mock.Client{StreamFn: func(context.Context, ragchat.ChatRequest) (ragchat.ChunkStream, error) {
		close(opened)
		<-release
		return mock.Chunks(nil, ragchat.StreamChunk{Content: "ok", IsFinal: true}), nil
	}}
	conv := newConversation(t, mock.MemoryStore(), client)

	done := make(chan error)
	go func() {
		done <- conv.Send(context.Background(), "first", ragchat.DefaultSettings(), nil, nil)
	}()
	<-opened

	assert.True(t, conv.Streaming())
	assert.Equal(t, ragchat.StateSent, conv.State())
	assert.ErrorIs(t, conv.Send(context.Background(), "second", ragchat.DefaultSettings(), nil, nil), ragchat.ErrStreamInFlight)
	assert.ErrorIs(t, conv.Reset(context.Background()), ragchat.ErrStreamInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, conv.Messages(), 2)
	assert.Equal(t, "ok", conv.Messages()[1].Content)
}

func TestConversation_Reset(t *testing.T) {
	t.Parallel()
	store := mock.MemoryStore()
	conv := newConversation(t, store, streamOf(nil, ragchat.StreamChunk{Content: "a", IsFinal: true}))
	require.NoError(t, conv.Send(context.Background(), "q", ragchat.DefaultSettings(), nil, nil))
	first := conv.SessionID()

	require.NoError(t, conv.Reset(context.Background()))
	second := conv.SessionID()
	assert.Empty(t, conv.Messages())
	assert.Equal(t, ragchat.StateIdle, conv.State())

	require.NoError(t, conv.Reset(context.Background()))
	third := conv.SessionID()
	assert.Empty(t, conv.Messages())

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, second, third)

	_, err := store.Get(context.Background(), ragchat.HistoryKey(first))
	assert.ErrorIs(t, err, ragchat.ErrNotFound)
}

func TestConversation_EOFWithoutChunks(t *testing.T) {
	t.Parallel()
	client := &mock.Client{StreamFn: func(context.Context, ragchat.ChatRequest) (ragchat.ChunkStream, error) {
		return &mock.ChunkStream{NextFn: func() (ragchat.StreamChunk, error) { return ragchat.StreamChunk{}, io.EOF }}, nil
	}}
	conv := newConversation(t, mock.MemoryStore(), client)
	require.NoError(t, conv.Send(context.Background(), "q", ragchat.DefaultSettings(), nil, nil))

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "", msgs[1].Content)
	assert.Equal(t, ragchat.StateFinalized, conv.State())
}

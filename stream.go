package ragchat

import "context"

// StreamChunk is one decoded unit of a streamed answer.
type StreamChunk struct {
	Content string           `json:"content"`
	IsFinal bool             `json:"is_final"`
	Sources []SourceDocument `json:"sources,omitempty"`
	Usage   *Usage           `json:"usage,omitempty"`
}

// ChunkStream uses a pull-based iterator pattern. Next returns io.EOF once
// the stream has ended cleanly, either because the server sent the end
// sentinel or because the body ended. Any other error is terminal.
// Cancellation flows through the context passed to Client.Stream.
type ChunkStream interface {
	Next() (StreamChunk, error)
	Close() error
}

// Client opens a streamed answer for a chat request. Implementations return
// exactly one error per call; once a ChunkStream is returned, later
// failures are reported by Next.
type Client interface {
	Stream(ctx context.Context, req ChatRequest) (ChunkStream, error)
}

// Package mock provides test doubles for ragchat interfaces using function fields.
package mock

import (
	"context"
	"io"

	"github.com/fwojciec/ragchat"
)

// Interface compliance checks.
var (
	_ ragchat.Client      = (*Client)(nil)
	_ ragchat.ChunkStream = (*ChunkStream)(nil)
)

// Client is a test double for ragchat.Client.
// Set StreamFn before calling Stream.
type Client struct {
	StreamFn func(ctx context.Context, req ragchat.ChatRequest) (ragchat.ChunkStream, error)
}

// Stream delegates to StreamFn.
func (c *Client) Stream(ctx context.Context, req ragchat.ChatRequest) (ragchat.ChunkStream, error) {
	return c.StreamFn(ctx, req)
}

// ChunkStream is a test double for ragchat.ChunkStream.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe
// because callers commonly defer Close and rarely need custom behavior.
type ChunkStream struct {
	NextFn  func() (ragchat.StreamChunk, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *ChunkStream) Next() (ragchat.StreamChunk, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *ChunkStream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Chunks returns a ChunkStream that yields chunks in order and then
// returns err, or io.EOF when err is nil.
func Chunks(err error, chunks ...ragchat.StreamChunk) *ChunkStream {
	i := 0
	return &ChunkStream{
		NextFn: func() (ragchat.StreamChunk, error) {
			if i < len(chunks) {
				i++
				return chunks[i-1], nil
			}
			if err != nil {
				return ragchat.StreamChunk{}, err
			}
			return ragchat.StreamChunk{}, io.EOF
		},
	}
}

// Package http implements ragchat.Client over the streaming chat endpoint.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fwojciec/ragchat"
	"github.com/fwojciec/ragchat/sse"
)

const defaultChatPath = "/api/chat/stream"

// Interface compliance checks.
var (
	_ ragchat.Client      = (*Client)(nil)
	_ ragchat.ChunkStream = (*stream)(nil)
)

// Client sends chat requests and returns the streamed answer.
type Client struct {
	baseURL    string
	chatPath   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithChatPath sets the path of the chat endpoint, relative to the base URL.
func WithChatPath(path string) Option {
	return func(c *Client) { c.chatPath = path }
}

// WithLogger sets the logger used by the client and its streams.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client] for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatPath:   defaultChatPath,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the chat endpoint URL.
func (c *Client) URL() string {
	return c.baseURL + c.chatPath
}

// Stream sends req and returns a stream of the answer's chunks. Failures
// before the stream opens are returned as a single error: ragchat.ErrTransport
// for network failures, *ragchat.StatusError for non-2xx responses and
// ragchat.ErrNoResponseBody when the response has no body.
func (c *Client) Stream(ctx context.Context, req ragchat.ChatRequest) (ragchat.ChunkStream, error) {
	httpReq, err := NewRequest(ctx, c.URL(), req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending chat request", "url", httpReq.URL.String(), "messages", len(req.Messages), "images", len(req.Images))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http: %w: %w", ragchat.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("http: %w", ragchat.ErrNoResponseBody)
	}

	return &stream{
		body:    resp.Body,
		decoder: sse.NewDecoder(resp.Body, sse.WithLogger(c.logger)),
	}, nil
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("http: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	return &ragchat.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}

// stream implements [ragchat.ChunkStream] over an HTTP response body.
type stream struct {
	body    io.ReadCloser
	decoder *sse.Decoder
}

func (s *stream) Next() (ragchat.StreamChunk, error) {
	chunk, err := s.decoder.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		return ragchat.StreamChunk{}, fmt.Errorf("http: read stream: %w", err)
	}
	return chunk, err
}

func (s *stream) Close() error {
	return s.body.Close()
}

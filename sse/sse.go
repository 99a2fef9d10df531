// Package sse decodes the server-sent event stream of the chat endpoint
// into ragchat.StreamChunk values.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fwojciec/ragchat"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	frameDelimiter = "\n\n"
	doneSentinel   = "[DONE]"
	readBlockSize  = 4096
)

var dataLine = regexp.MustCompile(`(?m)^data:[ \t]*(.*)$`)

// Decoder reads frames from an event stream and yields the chunks they
// carry. Frames may be split across reads at any byte offset.
type Decoder struct {
	r      io.Reader
	block  []byte
	buf    string
	frames []string
	eof    bool
	done   bool
	err    error
	logger *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used to report skipped frames.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// NewDecoder returns a Decoder reading from r. Bytes are decoded as UTF-8
// incrementally; invalid sequences become U+FFFD.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:      transform.NewReader(r, unicode.UTF8.NewDecoder()),
		block:  make([]byte, readBlockSize),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Next returns the next chunk. It returns io.EOF once the stream has ended,
// either because the underlying reader is exhausted or because the [DONE]
// sentinel was received. A read error is returned once the frames read
// before it have been consumed, and on every call after that.
func (d *Decoder) Next() (ragchat.StreamChunk, error) {
	for {
		for len(d.frames) > 0 {
			frame := d.frames[0]
			d.frames = d.frames[1:]
			chunk, ok := d.parseFrame(frame)
			if d.done {
				d.frames = nil
				d.err = io.EOF
				return ragchat.StreamChunk{}, io.EOF
			}
			if ok {
				return chunk, nil
			}
		}

		if d.err != nil {
			return ragchat.StreamChunk{}, d.err
		}
		if d.eof {
			d.err = io.EOF
			continue
		}

		n, err := d.r.Read(d.block)
		if n > 0 {
			d.buffer(string(d.block[:n]))
		}
		switch {
		case err == io.EOF:
			// A trailing partial frame is never emitted.
			d.buf = ""
			d.eof = true
		case err != nil:
			d.err = fmt.Errorf("sse: %w", err)
		}
	}
}

// Done reports whether the [DONE] sentinel has been received.
func (d *Decoder) Done() bool {
	return d.done
}

// buffer appends text and moves every complete frame to the frame queue.
func (d *Decoder) buffer(text string) {
	d.buf += text
	parts := strings.Split(d.buf, frameDelimiter)
	d.buf = parts[len(parts)-1]
	d.frames = append(d.frames, parts[:len(parts)-1]...)
}

// parseFrame extracts the chunk carried by a frame. It reports false for
// frames that carry no chunk.
func (d *Decoder) parseFrame(frame string) (ragchat.StreamChunk, bool) {
	frame = strings.TrimSpace(frame)
	if frame == "" {
		return ragchat.StreamChunk{}, false
	}
	m := dataLine.FindStringSubmatch(frame)
	if m == nil {
		return ragchat.StreamChunk{}, false
	}
	payload := strings.TrimSpace(m[1])
	if payload == doneSentinel {
		d.done = true
		return ragchat.StreamChunk{}, false
	}

	// null, arrays and scalars decode without error but are not chunks.
	if !strings.HasPrefix(payload, "{") {
		d.logger.Warn("skipping malformed frame", "error", "payload is not a JSON object", "payload", payload)
		return ragchat.StreamChunk{}, false
	}
	var chunk ragchat.StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		d.logger.Warn("skipping malformed frame", "error", err, "payload", payload)
		return ragchat.StreamChunk{}, false
	}
	return chunk, true
}

package sse_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/fwojciec/ragchat"
	"github.com/fwojciec/ragchat/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// partsReader returns one part per Read call, then io.EOF.
type partsReader struct {
	parts []string
	reads int
}

func (r *partsReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.parts) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.parts[0])
	r.parts[0] = r.parts[0][n:]
	if r.parts[0] == "" {
		r.parts = r.parts[1:]
	}
	return n, nil
}

func collect(t *testing.T, d *sse.Decoder) []ragchat.StreamChunk {
	t.Helper()
	var chunks []ragchat.StreamChunk
	for {
		chunk, err := d.Next()
		if err == io.EOF {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
}

const helloWorld = "data: {\"content\":\"Hello \",\"is_final\":false}\n\n" +
	"data: {\"content\":\"world!\",\"is_final\":true}\n\n"

func TestDecoder_TwoChunks(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder(strings.NewReader(helloWorld))

	chunks := collect(t, d)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Hello ", chunks[0].Content)
	assert.False(t, chunks[0].IsFinal)
	assert.Equal(t, "world!", chunks[1].Content)
	assert.True(t, chunks[1].IsFinal)
	assert.False(t, d.Done())
}

func TestDecoder_SplitAtEveryOffset(t *testing.T) {
	t.Parallel()
	stream := helloWorld + "data: {\"content\":\"żółw 🐢\",\"is_final\":false}\n\n"
	want := collect(t, sse.NewDecoder(strings.NewReader(stream)))
	require.Len(t, want, 3)

	for i := 1; i < len(stream); i++ {
		r := &partsReader{parts: []string{stream[:i], stream[i:]}}
		got := collect(t, sse.NewDecoder(r))
		assert.Equal(t, want, got, "split at offset %d", i)
	}
}

func TestDecoder_MultiByteRuneAcrossReads(t *testing.T) {
	t.Parallel()
	stream := "data: {\"content\":\"naïve café ☕\",\"is_final\":true}\n\n"
	d := sse.NewDecoder(iotest.OneByteReader(strings.NewReader(stream)))

	chunks := collect(t, d)

	require.Len(t, chunks, 1)
	assert.Equal(t, "naïve café ☕", chunks[0].Content)
}

func TestDecoder_InvalidUTF8Replaced(t *testing.T) {
	t.Parallel()
	stream := "data: {\"content\":\"a\xffb\",\"is_final\":true}\n\n"

	chunks := collect(t, sse.NewDecoder(strings.NewReader(stream)))

	require.Len(t, chunks, 1)
	assert.Equal(t, "a�b", chunks[0].Content)
}

func TestDecoder_MalformedFrameSkipped(t *testing.T) {
	t.Parallel()
	stream := "data: {\"content\":\"ok\",\"is_final\":false}\n\n" +
		"data: {bad json\n\n" +
		"data: null\n\n" +
		"data: [1,2]\n\n" +
		"data: \"text\"\n\n" +
		"data: {\"content\":\"done\",\"is_final\":true}\n\n"
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	d := sse.NewDecoder(strings.NewReader(stream), sse.WithLogger(logger))

	chunks := collect(t, d)

	require.Len(t, chunks, 2)
	assert.Equal(t, "ok", chunks[0].Content)
	assert.Equal(t, "done", chunks[1].Content)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "skipping malformed frame")
	assert.Equal(t, 4, strings.Count(logs.String(), "skipping malformed frame"))
}

func TestDecoder_FramesWithoutData(t *testing.T) {
	t.Parallel()
	stream := ": keep-alive\n\n" +
		"\n\n" +
		"event: ping\n\n" +
		"event: message\ndata:{\"content\":\"x\",\"is_final\":false}\n\n"

	chunks := collect(t, sse.NewDecoder(strings.NewReader(stream)))

	require.Len(t, chunks, 1)
	assert.Equal(t, "x", chunks[0].Content)
}

func TestDecoder_DoneStopsReading(t *testing.T) {
	t.Parallel()
	r := &partsReader{parts: []string{
		"data: {\"content\":\"a\",\"is_final\":false}\n\ndata: [DONE]\n\ndata: {\"content\":\"late\",\"is_final\":false}\n\n",
		"data: {\"content\":\"never read\",\"is_final\":false}\n\n",
	}}
	d := sse.NewDecoder(r)

	chunks := collect(t, d)

	require.Len(t, chunks, 1)
	assert.Equal(t, "a", chunks[0].Content)
	assert.True(t, d.Done())
	reads := r.reads

	_, err := d.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, reads, r.reads, "no reads after [DONE]")
}

func TestDecoder_TrailingPartialFrameDiscarded(t *testing.T) {
	t.Parallel()
	stream := "data: {\"content\":\"a\",\"is_final\":false}\n\ndata: {\"content\":\"b\""

	chunks := collect(t, sse.NewDecoder(strings.NewReader(stream)))

	require.Len(t, chunks, 1)
	assert.Equal(t, "a", chunks[0].Content)
}

func TestDecoder_SourcesAndUsage(t *testing.T) {
	t.Parallel()
	stream := `data: {"content":"","is_final":true,"sources":[{"filename":"a.pdf","score":0.5}],"usage":{"total_tokens":17}}` + "\n\n"

	chunks := collect(t, sse.NewDecoder(strings.NewReader(stream)))

	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Sources, 1)
	assert.Equal(t, "a.pdf", chunks[0].Sources[0].Title())
	require.NotNil(t, chunks[0].Usage)
	assert.Equal(t, 17, chunks[0].Usage.TotalTokens)
}

func TestDecoder_ReadErrorIsSticky(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"content\":\"a\",\"is_final\":false}\n\n"),
		iotest.ErrReader(boom),
	)
	d := sse.NewDecoder(r)

	chunk, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", chunk.Content)

	_, err = d.Next()
	require.ErrorIs(t, err, boom)
	_, err = d.Next()
	require.ErrorIs(t, err, boom)
}

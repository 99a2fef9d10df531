// Package yaml encodes conversation histories as YAML for export.
package yaml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/ragchat"
	"gopkg.in/yaml.v3"
)

// Interface compliance check.
var _ ragchat.HistoryCodec = Codec{}

type document struct {
	SessionID string    `yaml:"session_id"`
	Messages  []message `yaml:"messages"`
}

type message struct {
	Role       string    `yaml:"role"`
	Content    string    `yaml:"content"`
	Timestamp  time.Time `yaml:"timestamp"`
	Sources    []any     `yaml:"sources,omitempty"`
	Confidence *float64  `yaml:"confidence,omitempty"`
}

// Codec implements ragchat.HistoryCodec with a human-readable YAML document.
// Source records are written as YAML mappings.
type Codec struct{}

// MarshalHistory encodes messages as a YAML document.
func (Codec) MarshalHistory(sessionID string, messages []ragchat.Message) ([]byte, error) {
	doc := document{SessionID: sessionID, Messages: make([]message, len(messages))}
	for i, m := range messages {
		out := message{
			Role:       string(m.Role),
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			Confidence: m.Confidence,
		}
		for _, src := range m.Sources {
			var v any
			if err := json.Unmarshal(src, &v); err != nil {
				return nil, fmt.Errorf("yaml: message %d: decode source: %w", i, err)
			}
			out.Sources = append(out.Sources, v)
		}
		doc.Messages[i] = out
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalHistory decodes a document written by MarshalHistory.
func (Codec) UnmarshalHistory(data []byte) ([]ragchat.Message, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if len(doc.Messages) == 0 {
		return nil, nil
	}
	msgs := make([]ragchat.Message, len(doc.Messages))
	for i, m := range doc.Messages {
		msg := ragchat.Message{
			Role:       ragchat.Role(m.Role),
			Content:    m.Content,
			Timestamp:  m.Timestamp,
			Confidence: m.Confidence,
		}
		for _, src := range m.Sources {
			raw, err := json.Marshal(src)
			if err != nil {
				return nil, fmt.Errorf("yaml: message %d: encode source: %w", i, err)
			}
			msg.Sources = append(msg.Sources, ragchat.SourceDocument(raw))
		}
		msgs[i] = msg
	}
	return msgs, nil
}

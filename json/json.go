// Package json encodes conversation histories as versioned JSON envelopes
// for durable storage.
package json

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/ragchat"
)

const envelopeVersion = 1

// Interface compliance check.
var _ ragchat.HistoryCodec = Codec{}

// envelope is the v1 wire format for a persisted history.
type envelope struct {
	Version   int          `json:"version"`
	SessionID string       `json:"session_id"`
	Messages  []messageDTO `json:"messages"`
}

// messageDTO is the stored representation of a Message. It is kept separate
// from ragchat.Message so the storage format can evolve on its own.
type messageDTO struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	Sources    []json.RawMessage `json:"sources,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
}

// Codec implements ragchat.HistoryCodec.
type Codec struct {
	// Indent, when set, pretty-prints the envelope with this indent.
	Indent string
}

// MarshalHistory serializes messages in v1 envelope format.
func (c Codec) MarshalHistory(sessionID string, messages []ragchat.Message) ([]byte, error) {
	env := envelope{
		Version:   envelopeVersion,
		SessionID: sessionID,
		Messages:  make([]messageDTO, len(messages)),
	}
	for i, m := range messages {
		env.Messages[i] = marshalMessage(m)
	}
	if c.Indent != "" {
		return json.MarshalIndent(env, "", c.Indent)
	}
	return json.Marshal(env)
}

// UnmarshalHistory deserializes messages from v1 envelope format.
func (c Codec) UnmarshalHistory(data []byte) ([]ragchat.Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	if len(env.Messages) == 0 {
		return nil, nil
	}
	msgs := make([]ragchat.Message, len(env.Messages))
	for i, dto := range env.Messages {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return msgs, nil
}

func marshalMessage(m ragchat.Message) messageDTO {
	dto := messageDTO{
		Role:       string(m.Role),
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Confidence: m.Confidence,
	}
	if m.Sources != nil {
		dto.Sources = make([]json.RawMessage, len(m.Sources))
		for i, s := range m.Sources {
			dto.Sources[i] = json.RawMessage(s)
		}
	}
	return dto
}

func unmarshalMessage(dto messageDTO) (ragchat.Message, error) {
	role := ragchat.Role(dto.Role)
	switch role {
	case ragchat.RoleUser, ragchat.RoleAssistant, ragchat.RoleSystem:
	default:
		return ragchat.Message{}, fmt.Errorf("unknown role: %q", dto.Role)
	}
	msg := ragchat.Message{
		Role:       role,
		Content:    dto.Content,
		Timestamp:  dto.Timestamp,
		Confidence: dto.Confidence,
	}
	if dto.Sources != nil {
		msg.Sources = make([]ragchat.SourceDocument, len(dto.Sources))
		for i, s := range dto.Sources {
			msg.Sources[i] = ragchat.SourceDocument(s)
		}
	}
	return msg, nil
}

package ragchat

import (
	"encoding/json"
	"time"
)

// Message is one entry of a conversation history. The ordered list of
// messages in a session is the conversation.
//
// For assistant messages Content only grows by append while the answer is
// streaming and is never modified once the stream has finished.
type Message struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Sources   []SourceDocument `json:"sources,omitempty"`

	// Confidence holds the total token count reported by the server for
	// this answer, not a probability. The field name is a historical
	// misnomer kept so stored histories and the wire format stay compatible.
	Confidence *float64 `json:"confidence,omitempty"`
}

// SourceDocument is an attribution record attached to an assistant answer.
// It holds the raw JSON sent by the server and is never modified.
type SourceDocument json.RawMessage

// MarshalJSON returns the record verbatim.
func (d SourceDocument) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores a copy of data.
func (d *SourceDocument) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], data...)
	return nil
}

// sourceFields are the keys commonly present in attribution records.
type sourceFields struct {
	Filename string   `json:"filename"`
	Source   string   `json:"source"`
	Title    string   `json:"title"`
	Location string   `json:"location"`
	Score    *float64 `json:"score"`
}

func (d SourceDocument) fields() sourceFields {
	var f sourceFields
	_ = json.Unmarshal(d, &f)
	return f
}

// Title returns a human-readable label for the record: the first non-empty
// of filename, source, title and location. Empty when none is present.
func (d SourceDocument) Title() string {
	f := d.fields()
	for _, s := range []string{f.Filename, f.Source, f.Title, f.Location} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Score returns the relevance score of the record, if present.
func (d SourceDocument) Score() (float64, bool) {
	f := d.fields()
	if f.Score == nil {
		return 0, false
	}
	return *f.Score, true
}

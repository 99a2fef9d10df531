package ragchat

import (
	"encoding/base64"
	"fmt"
)

const defaultImageMimeType = "image/jpeg"

// Settings carries the retrieval and generation parameters of a chat
// request. The fields are flattened into the top level of the request body.
type Settings struct {
	TopK                int      `json:"top_k" toml:"top_k" yaml:"top_k"`
	Temperature         float64  `json:"temperature" toml:"temperature" yaml:"temperature"`
	MaxTokens           int      `json:"max_tokens" toml:"max_tokens" yaml:"max_tokens"`
	IncludeSources      bool     `json:"include_sources" toml:"include_sources" yaml:"include_sources"`
	VectorStores        []string `json:"vector_stores" toml:"vector_stores" yaml:"vector_stores"`
	SimilarityThreshold float64  `json:"similarity_threshold" toml:"similarity_threshold" yaml:"similarity_threshold"`
	Model               string   `json:"model,omitempty" toml:"model,omitempty" yaml:"model,omitempty"`
	SystemPrompt        string   `json:"system_prompt,omitempty" toml:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		TopK:           5,
		Temperature:    0.7,
		MaxTokens:      1024,
		IncludeSources: true,
		VectorStores:   []string{},
	}
}

// Validate checks the settings against the ranges the backend accepts.
func (s Settings) Validate() error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g: %w", s.Temperature, ErrValidation)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", s.MaxTokens, ErrValidation)
	}
	if s.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d: %w", s.TopK, ErrValidation)
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %g: %w", s.SimilarityThreshold, ErrValidation)
	}
	return nil
}

// Image is an inline image attached to a chat request.
type Image struct {
	MimeType string
	Data     []byte
}

// DataURI returns the image as a data URI, e.g. "data:image/png;base64,...".
// An empty MimeType is sent as image/jpeg.
func (i Image) DataURI() string {
	mime := i.MimeType
	if mime == "" {
		mime = defaultImageMimeType
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ChatRequest is a single send: the session, the history up to and
// including the new user message, the settings and optional images.
// It is built fresh for every send and never persisted.
type ChatRequest struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Settings
	Images []Image `json:"-"`
}

package ragchat

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request, message or setting failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamInFlight indicates a send was attempted while another answer
	// was still streaming in the same conversation.
	ErrStreamInFlight = errors.New("stream already in flight")

	// ErrNotFound indicates a key is absent from a Store.
	ErrNotFound = errors.New("not found")

	// ErrTransport indicates the request failed before any response status
	// was received.
	ErrTransport = errors.New("transport error")

	// ErrNoResponseBody indicates a successful status without a readable body.
	ErrNoResponseBody = errors.New("no response body")
)

// StatusError is returned when the server answers with a non-success status.
// Body holds the full response body as text.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

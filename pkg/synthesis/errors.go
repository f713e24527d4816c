package synthesis

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when an API key is required but missing.
	ErrNoAPIKey = errors.New("synthesis: API key required")

	// ErrEmptyText is returned when there is no text to synthesize.
	ErrEmptyText = errors.New("synthesis: empty text")

	// ErrFirstChunkTimeout is returned when the provider produces no
	// audio at all within the initial deadline.
	ErrFirstChunkTimeout = errors.New("synthesis: timed out waiting for first audio chunk")
)

// DialError wraps a WebSocket handshake failure.
type DialError struct {
	// StatusCode is the HTTP status of the failed handshake, or 0 when
	// no response was received.
	StatusCode int

	// Err is the underlying dial error.
	Err error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("synthesis: websocket dial failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("synthesis: websocket dial failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	return e.Err
}

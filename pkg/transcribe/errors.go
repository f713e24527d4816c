package transcribe

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when an API key is required but missing.
	ErrNoAPIKey = errors.New("transcribe: API key required")

	// ErrNotConnected is returned when audio is sent before Connect or
	// after Close.
	ErrNotConnected = errors.New("transcribe: not connected")
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
		return fmt.Sprintf("transcribe: websocket dial failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transcribe: websocket dial failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	return e.Err
}

// Package capture provides microphone audio capture for transcription
// sessions, with gain control and WAV recording.
package capture

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Config holds audio capture configuration.
type Config struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of audio channels.
	Channels int

	// BufferDuration is the size of each captured frame.
	BufferDuration time.Duration
}

// DefaultConfig returns a Config matching the recognizer's input
// format: 16kHz mono PCM16.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 200 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// FrameSize returns the number of samples per captured frame.
func (c *Config) FrameSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds() * float64(c.Channels))
}

// Source captures raw PCM16 audio frames.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Read returns the next raw PCM16 frame (little-endian), blocking
	// if necessary. Returns io.EOF when the source is stopped.
	Read(ctx context.Context) ([]byte, error)

	// Stop halts capture. Safe to call more than once.
	Stop() error

	// Config returns the capture configuration.
	Config() Config

	// Close releases all resources. After Close the source cannot be
	// restarted.
	io.Closer
}

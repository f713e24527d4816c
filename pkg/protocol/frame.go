// Package protocol defines the WebSocket frame types sent to live
// session clients.
package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// FrameType identifies the type of an outbound session frame.
type FrameType string

const (
	// TypeUserMessage carries a transcript of the user's utterance.
	// IsFinal distinguishes interim from final transcripts.
	TypeUserMessage FrameType = "user_message"

	// TypeTurnEnded signals that the user's turn is complete and a
	// response is being generated.
	TypeTurnEnded FrameType = "turn_ended"

	// TypeResponse carries a generated answer.
	TypeResponse FrameType = "response"

	// TypeSearch carries a formatted web-search summary.
	TypeSearch FrameType = "search"

	// TypeAudio carries a base64 synthesis chunk for a generated answer.
	TypeAudio FrameType = "audio"

	// TypeSpeakAudio carries a base64 synthesis chunk for a direct
	// speak command.
	TypeSpeakAudio FrameType = "speak_audio"

	// TypeZapier reports the outcome of a webhook forward.
	TypeZapier FrameType = "zapier"

	// TypeError carries a human-readable failure message.
	TypeError FrameType = "error"

	// TypeSoundAlert asks the client to play a notification sound.
	TypeSoundAlert FrameType = "sound_alert"
)

// Frame is the wrapper for all outbound session messages.
type Frame struct {
	Type    FrameType `json:"type"`
	Data    string    `json:"data,omitempty"`
	IsFinal *bool     `json:"is_final,omitempty"`
}

// New creates a frame without a finality tag.
func New(t FrameType, data string) Frame {
	return Frame{Type: t, Data: data}
}

// NewFinal creates a transcript or audio frame tagged with finality.
func NewFinal(t FrameType, data string, isFinal bool) Frame {
	return Frame{Type: t, Data: data, IsFinal: &isFinal}
}

// Encode returns the JSON encoding of the frame.
func (f Frame) Encode() ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Type, err)
	}
	return b, nil
}

// Parse decodes a frame from JSON bytes.
func Parse(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	return f, nil
}

// Sink delivers frames and raw text acknowledgements to a connected
// session client. Implementations must be safe for concurrent use.
type Sink interface {
	// Send delivers a JSON frame.
	Send(f Frame) error

	// SendText delivers a plain-text acknowledgement.
	SendText(msg string) error
}

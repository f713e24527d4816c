// Package synthesis streams text-to-speech audio from the Murf
// stream-input WebSocket API.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL = "wss://api.murf.ai/v1/speech/stream-input"

	// contextID pins all sessions to one provider-side voice context.
	contextID = "storyteller_context_27"

	defaultVoiceID = "en-IN-alia"
	defaultStyle   = "Narration"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Logger  *slog.Logger

	// FirstChunkTimeout bounds the wait for the first audio chunk.
	// Exceeding it is an error.
	FirstChunkTimeout time.Duration

	// ChunkTimeout bounds the wait between subsequent chunks. Exceeding
	// it ends the stream gracefully.
	ChunkTimeout time.Duration
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL overrides the default WebSocket URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithFirstChunkTimeout sets the deadline for the first audio chunk.
func WithFirstChunkTimeout(d time.Duration) Option {
	return func(c *Config) { c.FirstChunkTimeout = d }
}

// WithChunkTimeout sets the deadline between subsequent audio chunks.
func WithChunkTimeout(d time.Duration) Option {
	return func(c *Config) { c.ChunkTimeout = d }
}

// Request describes one synthesis stream.
type Request struct {
	Text    string
	VoiceID string
	Speed   float64
}

// Chunk is one audio frame from the provider. Audio is base64-encoded
// WAV data, passed through without decoding.
type Chunk struct {
	Audio   string
	IsFinal bool
}

// Client synthesizes speech over a per-call WebSocket connection. The
// API key is supplied per call because credentials can change at
// runtime.
type Client struct {
	config *Config
	logger *slog.Logger
}

// NewClient creates a Murf streaming client.
func NewClient(opts ...Option) *Client {
	cfg := &Config{
		BaseURL:           defaultBaseURL,
		Logger:            slog.Default(),
		FirstChunkTimeout: 10 * time.Second,
		ChunkTimeout:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "synthesis.murf"),
	}
}

// Stream dials the provider, sends the text, and delivers each audio
// chunk to onChunk in order. It returns after the provider marks the
// stream final, after a between-chunk timeout (treated as normal
// completion), or on error. A non-nil error from onChunk aborts the
// stream.
func (c *Client) Stream(ctx context.Context, apiKey string, req *Request, onChunk func(Chunk) error) error {
	if apiKey == "" {
		return ErrNoAPIKey
	}
	if req.Text == "" {
		return ErrEmptyText
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}

	url := fmt.Sprintf("%s?api_key=%s&context_id=%s&format=WAV&sample_rate=44100&channel_type=MONO",
		c.config.BaseURL, apiKey, contextID)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return &DialError{StatusCode: status, Err: err}
	}
	defer conn.Close()

	if err := c.writeJSON(conn, map[string]any{"init": true}); err != nil {
		return fmt.Errorf("synthesis: send init: %w", err)
	}
	voiceConfig := map[string]any{
		"voice_config": map[string]any{
			"voiceId": voiceID,
			"style":   defaultStyle,
			"speed":   speed,
		},
	}
	if err := c.writeJSON(conn, voiceConfig); err != nil {
		return fmt.Errorf("synthesis: send voice config: %w", err)
	}
	if err := c.writeJSON(conn, map[string]any{"text": req.Text}); err != nil {
		return fmt.Errorf("synthesis: send text: %w", err)
	}

	c.logger.Debug("synthesis stream started", "voice", voiceID, "speed", speed, "chars", len(req.Text))

	first := true
	for {
		timeout := c.config.ChunkTimeout
		if first {
			timeout = c.config.FirstChunkTimeout
		}
		conn.SetReadDeadline(time.Now().Add(timeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				if first {
					return ErrFirstChunkTimeout
				}
				c.logger.Warn("timeout waiting for additional audio chunk")
				return nil
			}
			if !first && websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug("synthesis stream closed by provider")
				return nil
			}
			return fmt.Errorf("synthesis: read audio: %w", err)
		}

		var chunk struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"is_final"`
		}
		if err := json.Unmarshal(message, &chunk); err != nil {
			c.logger.Warn("failed to parse audio chunk", "error", err)
			continue
		}
		first = false

		if chunk.Audio != "" {
			if err := onChunk(Chunk{Audio: chunk.Audio, IsFinal: chunk.IsFinal}); err != nil {
				return err
			}
		}
		if chunk.IsFinal {
			return nil
		}
	}
}

// writeJSON marshals with goccy and writes a single text frame.
func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

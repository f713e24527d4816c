// Package transcribe streams microphone audio to the AssemblyAI
// realtime v3 API and surfaces transcription events on a channel.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL    = "wss://streaming.assemblyai.com/v3/ws"
	defaultSampleRate = 16000
	defaultBuffer     = 64
)

// EventType identifies a streaming event from the recognizer.
type EventType string

const (
	EventBegin       EventType = "Begin"
	EventTurn        EventType = "Turn"
	EventTermination EventType = "Termination"
	EventError       EventType = "Error"
)

// Event is one recognizer event. Transcript and Formatted are set for
// Turn events; Err is set for Error events.
type Event struct {
	Type       EventType
	Transcript string
	Formatted  bool
	Err        error
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	SampleRate  int
	FormatTurns bool
	EventBuffer int
	Logger      *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL overrides the default WebSocket URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithSampleRate sets the audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithEventBuffer sets the capacity of the event channel.
func WithEventBuffer(n int) Option {
	return func(c *Config) { c.EventBuffer = n }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Client is a realtime transcription session. One Client serves one
// Connect/Close cycle; events are consumed from Events by a single
// reader.
type Client struct {
	config *Config
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewClient creates a streaming transcription client.
func NewClient(opts ...Option) *Client {
	cfg := &Config{
		BaseURL:     defaultBaseURL,
		SampleRate:  defaultSampleRate,
		FormatTurns: true,
		EventBuffer: defaultBuffer,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "transcribe.assemblyai"),
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Connect dials the recognizer and starts the read loop.
func (c *Client) Connect(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return ErrNoAPIKey
	}

	url := fmt.Sprintf("%s?sample_rate=%d&format_turns=%t",
		c.config.BaseURL, c.config.SampleRate, c.config.FormatTurns)

	headers := http.Header{}
	headers.Set("Authorization", apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return &DialError{StatusCode: status, Err: err}
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("recognizer connected", "sample_rate", c.config.SampleRate)

	go c.readLoop(conn)
	return nil
}

// Events returns the channel of recognizer events. It is closed after
// the session terminates. The channel is bounded; the consumer must
// keep draining it while the session runs.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SendAudio forwards one PCM frame to the recognizer.
func (c *Client) SendAudio(frame []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("transcribe: send audio: %w", err)
	}
	return nil
}

// Terminate asks the recognizer to finish the session. The recognizer
// replies with a Termination event before closing.
func (c *Client) Terminate() error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	data, _ := json.Marshal(map[string]string{"type": "Terminate"})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transcribe: send terminate: %w", err)
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// readLoop parses recognizer messages and delivers them on the event
// channel until the connection drops or the session terminates.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.events)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Error("recognizer read error", "error", err)
					c.deliver(Event{Type: EventError, Err: fmt.Errorf("transcribe: read: %w", err)})
				}
			}
			return
		}

		var msg struct {
			Type            string `json:"type"`
			Transcript      string `json:"transcript"`
			TurnIsFormatted bool   `json:"turn_is_formatted"`
			Error           string `json:"error"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("failed to parse recognizer message", "error", err)
			continue
		}

		switch EventType(msg.Type) {
		case EventBegin:
			c.deliver(Event{Type: EventBegin})
		case EventTurn:
			if msg.Transcript == "" {
				continue
			}
			c.deliver(Event{
				Type:       EventTurn,
				Transcript: msg.Transcript,
				Formatted:  msg.TurnIsFormatted,
			})
		case EventTermination:
			c.deliver(Event{Type: EventTermination})
			return
		default:
			if msg.Error != "" {
				c.deliver(Event{Type: EventError, Err: fmt.Errorf("transcribe: %s", msg.Error)})
			}
		}
	}
}

// deliver blocks until the consumer takes the event, preserving order.
func (c *Client) deliver(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

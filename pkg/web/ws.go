package web

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/novaflowai/novaflow/pkg/protocol"
)

// admitSession validates the upgrade request before the handshake:
// a chat_id is required and must name an existing conversation.
func (s *Server) admitSession(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	chatID := c.Query("chat_id")
	if chatID == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing chat_id")
	}
	if !s.history.Exists(chatID) {
		return c.Status(fiber.StatusForbidden).SendString("Chat ID does not exist")
	}
	return c.Next()
}

// handleSession runs one live voice session over the WebSocket: every
// received text message is a client command; everything outbound goes
// through the frame sink.
func (s *Server) handleSession(c *websocket.Conn) {
	chatID := c.Query("chat_id")
	logger := s.logger.With("chat_id", chatID)
	logger.Info("websocket connected")

	sink := &wsSink{conn: c}
	sess, err := s.newSession(chatID, sink)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		sink.Send(protocol.New(protocol.TypeError, "Failed to start session: "+err.Error()))
		return
	}
	defer func() {
		sess.Close()
		logger.Info("websocket closed")
	}()

	ctx := context.Background()
	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			logger.Info("websocket receive ended", "error", err)
			return
		}
		if err := sess.HandleCommand(ctx, string(msg)); err != nil {
			logger.Error("command failed", "error", err)
			return
		}
	}
}

// wsSink adapts a Fiber WebSocket connection to protocol.Sink. Writes
// are serialized because frames come from multiple goroutines.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Send writes one JSON frame.
func (s *wsSink) Send(f protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// SendText writes a plain-text acknowledgement.
func (s *wsSink) SendText(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

var _ protocol.Sink = (*wsSink)(nil)

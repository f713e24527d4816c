// Package web exposes the HTTP and WebSocket surface of the voice
// assistant: page routes, conversation and settings management, file
// uploads, and the live session endpoint.
package web

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/novaflowai/novaflow/pkg/history"
	"github.com/novaflowai/novaflow/pkg/knowledge"
	"github.com/novaflowai/novaflow/pkg/protocol"
	"github.com/novaflowai/novaflow/pkg/settings"
)

// Session handles the command protocol of one live connection.
type Session interface {
	HandleCommand(ctx context.Context, msg string) error
	Close() error
}

// SessionFactory creates a session bound to a conversation and an
// outbound sink.
type SessionFactory func(chatID string, sink protocol.Sink) (Session, error)

// Config holds the server's collaborators.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// PagesDir holds the static HTML pages. Empty disables page routes.
	PagesDir string

	Settings    *settings.Store
	Credentials *settings.Credentials
	History     *history.Store
	Knowledge   *knowledge.Store
	NewSession  SessionFactory

	Logger *slog.Logger
}

// Server is the web frontend.
type Server struct {
	app    *fiber.App
	addr   string
	pages  string
	logger *slog.Logger

	settings   *settings.Store
	creds      *settings.Credentials
	history    *history.Store
	knowledge  *knowledge.Store
	newSession SessionFactory
}

// NewServer creates the Fiber app and mounts all routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Settings == nil || cfg.Credentials == nil || cfg.History == nil ||
		cfg.Knowledge == nil || cfg.NewSession == nil {
		return nil, errors.New("web: settings, credentials, history, knowledge and session factory are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:       cfg.Addr,
		pages:      cfg.PagesDir,
		logger:     logger.With("component", "web"),
		settings:   cfg.Settings,
		creds:      cfg.Credentials,
		history:    cfg.History,
		knowledge:  cfg.Knowledge,
		newSession: cfg.NewSession,
	}

	app := fiber.New(fiber.Config{
		AppName:               "NovaFlow",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(cors.New())

	if s.pages != "" {
		app.Static("/static", filepath.Join(s.pages, "static"))
		app.Get("/", s.page("home.html"))
		app.Get("/app", s.page("index.html"))
		app.Get("/docu", s.page("docs.html"))
		app.Get("/settings", s.page("settings.html"))
	}

	app.Get("/chats", s.handleListChats)
	app.Post("/new_chat", s.handleNewChat)
	app.Get("/chat_history", s.handleChatHistory)
	app.Post("/upload", s.handleUpload)
	app.Post("/set_keys", s.handleSetKeys)
	app.Post("/set_settings", s.handleSetSettings)
	app.Post("/reset_settings", s.handleResetSettings)
	app.Post("/clear_chat_history", s.handleClearChatHistory)
	app.Post("/clear_knowledge_base", s.handleClearKnowledgeBase)

	app.Use("/ws", s.admitSession)
	app.Get("/ws", websocket.New(s.handleSession))

	s.app = app
	return s, nil
}

// App exposes the Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("web server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithContext(context.Background())
}

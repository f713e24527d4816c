// novaflow: web backend for the NovaFlow voice assistant.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/novaflowai/novaflow/internal/config"
	"github.com/novaflowai/novaflow/internal/log"
	"github.com/novaflowai/novaflow/pkg/capture"
	"github.com/novaflowai/novaflow/pkg/generate"
	"github.com/novaflowai/novaflow/pkg/history"
	"github.com/novaflowai/novaflow/pkg/knowledge"
	"github.com/novaflowai/novaflow/pkg/orchestrator"
	"github.com/novaflowai/novaflow/pkg/protocol"
	"github.com/novaflowai/novaflow/pkg/search"
	"github.com/novaflowai/novaflow/pkg/session"
	"github.com/novaflowai/novaflow/pkg/settings"
	"github.com/novaflowai/novaflow/pkg/synthesis"
	"github.com/novaflowai/novaflow/pkg/transcribe"
	"github.com/novaflowai/novaflow/pkg/web"
	"github.com/novaflowai/novaflow/pkg/webhook"
)

var pagesDir = flag.String("pages", "./web/pages", "directory with static HTML pages")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	settingsStore := settings.NewStore(cfg.SettingsFile(), logger)
	creds := settings.NewCredentials(cfg.Credentials(), logger)

	historyStore, err := history.NewStore(cfg.ChatsDir(), func() bool {
		return settingsStore.Snapshot().AutoSaveHistory
	}, logger)
	if err != nil {
		log.Error("failed to open chat history store", "error", err)
		os.Exit(1)
	}
	knowledgeStore, err := knowledge.NewStore(cfg.KnowledgeDir(), logger)
	if err != nil {
		log.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Settings:    settingsStore,
		Credentials: creds,
		Knowledge:   knowledgeStore,
		History:     historyStore,
		Generator:   generate.NewClient(generate.WithLogger(logger)),
		Searcher:    search.NewClient(search.WithLogger(logger)),
		Synthesizer: synthesis.NewClient(synthesis.WithLogger(logger)),
		Notifier:    webhook.NewClient(webhook.WithLogger(logger)),
		Logger:      logger,
	})
	if err != nil {
		log.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	newSession := func(chatID string, sink protocol.Sink) (web.Session, error) {
		return session.New(session.Config{
			ChatID:      chatID,
			Sink:        sink,
			Settings:    settingsStore,
			Credentials: creds,
			Responder:   orch,
			NewRecognizer: func() session.Recognizer {
				return transcribe.NewClient(transcribe.WithLogger(logger))
			},
			Source:    capture.NewMockSource(capture.DefaultConfig(), logger),
			RecordDir: cfg.DataDir,
			Logger:    logger,
		})
	}

	server, err := web.NewServer(web.Config{
		Addr:        cfg.Addr,
		PagesDir:    *pagesDir,
		Settings:    settingsStore,
		Credentials: creds,
		History:     historyStore,
		Knowledge:   knowledgeStore,
		NewSession:  newSession,
		Logger:      logger,
	})
	if err != nil {
		log.Error("failed to build web server", "error", err)
		os.Exit(1)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	log.Info("novaflow starting", "addr", cfg.Addr, "data_dir", cfg.DataDir)
	if err := server.Start(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

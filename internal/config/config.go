// Package config loads process configuration for novaflow commands.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Env holds configuration sourced from the process environment.
type Env struct {
	Addr     string `env:"NOVAFLOW_ADDR" envDefault:":8000"`
	DataDir  string `env:"NOVAFLOW_DATA_DIR" envDefault:"uploads"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Provider credentials. Any of these may be empty; user-supplied
	// keys set over /set_keys fill the gap at runtime.
	AAIAPIKey        string `env:"AAI_API_KEY"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	MurfAPIKey       string `env:"MURF_API_KEY"`
	TavilyAPIKey     string `env:"TAVILY_API_KEY"`
	ZapierWebhookURL string `env:"ZAPIER_WEBHOOK_URL"`
}

// Load parses the environment into an Env.
func Load() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// ChatsDir returns the chat history directory under the data dir.
func (e Env) ChatsDir() string {
	return filepath.Join(e.DataDir, "chats")
}

// KnowledgeDir returns the knowledge base directory under the data dir.
func (e Env) KnowledgeDir() string {
	return filepath.Join(e.DataDir, "knowledge_base")
}

// SettingsFile returns the path of the persisted settings record.
func (e Env) SettingsFile() string {
	return filepath.Join(e.DataDir, "settings.json")
}

// Credentials returns environment credentials keyed by canonical name.
func (e Env) Credentials() map[string]string {
	return map[string]string{
		"aai_api_key":        e.AAIAPIKey,
		"gemini_api_key":     e.GeminiAPIKey,
		"murf_api_key":       e.MurfAPIKey,
		"tavily_api_key":     e.TavilyAPIKey,
		"zapier_webhook_url": e.ZapierWebhookURL,
	}
}

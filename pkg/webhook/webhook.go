// Package webhook forwards assistant responses to an outbound
// automation webhook.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/novaflowai/novaflow/internal/httpc"
)

// ErrNoURL is returned when no webhook URL is configured.
var ErrNoURL = errors.New("webhook: no URL configured")

// Config holds client configuration.
type Config struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Client posts responses to a webhook. The URL is supplied per call
// because it can change at runtime.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a webhook client.
func NewClient(opts ...Option) *Client {
	cfg := &Config{
		HTTPClient: httpc.Client,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		http:   cfg.HTTPClient,
		logger: cfg.Logger.With("component", "webhook"),
	}
}

// Notify posts {"response": text} to the webhook URL. Any 2xx status
// counts as delivered.
func (c *Client) Notify(ctx context.Context, url, text string) error {
	if url == "" {
		return ErrNoURL
	}

	body, err := json.Marshal(map[string]string{"response": text})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Info("webhook notified", "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

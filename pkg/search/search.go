// Package search relays queries to the Tavily search API and formats
// the results into prose.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/novaflowai/novaflow/internal/httpc"
)

const defaultBaseURL = "https://api.tavily.com"

// NoResultsMessage is returned when the provider finds nothing.
const NoResultsMessage = "No search results found."

// Config holds search client configuration.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Client issues one request per search; there is no session state.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a search client.
func NewClient(opts ...Option) *Client {
	cfg := &Config{
		BaseURL:    defaultBaseURL,
		HTTPClient: httpc.Client,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger.With("component", "search"),
	}
}

// searchRequest is the Tavily /search request body. The key travels in
// the body, matching the provider's documented contract.
type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// searchResponse is the Tavily /search response body.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Search issues one request and returns the results formatted as a
// numbered summary. A non-success status yields a typed *APIError; the
// caller decides how to surface it.
func (c *Client) Search(ctx context.Context, apiKey, query string, maxResults int) (string, error) {
	if maxResults <= 0 {
		maxResults = 3
	}

	body, err := json.Marshal(searchRequest{
		APIKey:     apiKey,
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return "", fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error("search request failed", "status", resp.StatusCode)
		return "", &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("search: decode response: %w", err)
	}

	if len(result.Results) == 0 {
		return NoResultsMessage, nil
	}
	return formatResults(result.Results), nil
}

// formatResults renders each result as a numbered line of title,
// content truncated to 200 characters, and source URL.
func formatResults(results []searchResult) string {
	var sb strings.Builder
	sb.WriteString("Here are the top search results:\n")
	for i, r := range results {
		content := r.Content
		if len(content) > 200 {
			content = content[:200]
		}
		fmt.Fprintf(&sb, "%d. %s: %s... (Source: %s)\n", i+1, r.Title, content, r.URL)
	}
	return sb.String()
}

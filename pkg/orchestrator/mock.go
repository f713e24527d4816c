package orchestrator

import (
	"context"
	"sync"

	"github.com/novaflowai/novaflow/pkg/generate"
	"github.com/novaflowai/novaflow/pkg/protocol"
	"github.com/novaflowai/novaflow/pkg/synthesis"
)

// MockGenerator is a Generator for testing that records calls and
// returns a canned response.
type MockGenerator struct {
	mu       sync.Mutex
	calls    []GeneratorCall
	Response string
	Err      error
}

// GeneratorCall records one Chat invocation.
type GeneratorCall struct {
	APIKey  string
	Request generate.Request
}

// Chat implements Generator.
func (m *MockGenerator) Chat(_ context.Context, apiKey string, req *generate.Request) (*generate.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, GeneratorCall{APIKey: apiKey, Request: *req})
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return &generate.Response{Text: m.Response, FinishReason: "STOP"}, nil
}

// Calls returns the recorded invocations.
func (m *MockGenerator) Calls() []GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GeneratorCall(nil), m.calls...)
}

// MockSearcher is a Searcher for testing.
type MockSearcher struct {
	mu     sync.Mutex
	calls  []SearchCall
	Result string
	Err    error
}

// SearchCall records one Search invocation.
type SearchCall struct {
	APIKey     string
	Query      string
	MaxResults int
}

// Search implements Searcher.
func (m *MockSearcher) Search(_ context.Context, apiKey, query string, maxResults int) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, SearchCall{APIKey: apiKey, Query: query, MaxResults: maxResults})
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.Result, nil
}

// Calls returns the recorded invocations.
func (m *MockSearcher) Calls() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SearchCall(nil), m.calls...)
}

// MockSynthesizer is a Synthesizer for testing that replays canned
// chunks.
type MockSynthesizer struct {
	mu     sync.Mutex
	calls  []SynthesisCall
	Chunks []synthesis.Chunk
	Err    error
}

// SynthesisCall records one Stream invocation.
type SynthesisCall struct {
	APIKey  string
	Request synthesis.Request
}

// Stream implements Synthesizer.
func (m *MockSynthesizer) Stream(_ context.Context, apiKey string, req *synthesis.Request, onChunk func(synthesis.Chunk) error) error {
	m.mu.Lock()
	m.calls = append(m.calls, SynthesisCall{APIKey: apiKey, Request: *req})
	m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, chunk := range m.Chunks {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Calls returns the recorded invocations.
func (m *MockSynthesizer) Calls() []SynthesisCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SynthesisCall(nil), m.calls...)
}

// MockNotifier is a Notifier for testing.
type MockNotifier struct {
	mu    sync.Mutex
	calls []NotifyCall
	Err   error
}

// NotifyCall records one Notify invocation.
type NotifyCall struct {
	URL  string
	Text string
}

// Notify implements Notifier.
func (m *MockNotifier) Notify(_ context.Context, url, text string) error {
	m.mu.Lock()
	m.calls = append(m.calls, NotifyCall{URL: url, Text: text})
	m.mu.Unlock()
	return m.Err
}

// Calls returns the recorded invocations.
func (m *MockNotifier) Calls() []NotifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NotifyCall(nil), m.calls...)
}

// MockSink is a protocol.Sink for testing that collects frames.
type MockSink struct {
	mu     sync.Mutex
	frames []protocol.Frame
	texts  []string
	Err    error
}

// Send implements protocol.Sink.
func (m *MockSink) Send(f protocol.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.frames = append(m.frames, f)
	return nil
}

// SendText implements protocol.Sink.
func (m *MockSink) SendText(msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.texts = append(m.texts, msg)
	return nil
}

// Frames returns the collected frames.
func (m *MockSink) Frames() []protocol.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Frame(nil), m.frames...)
}

// Texts returns the collected plain-text messages.
func (m *MockSink) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

var (
	_ Generator     = (*MockGenerator)(nil)
	_ Searcher      = (*MockSearcher)(nil)
	_ Synthesizer   = (*MockSynthesizer)(nil)
	_ Notifier      = (*MockNotifier)(nil)
	_ protocol.Sink = (*MockSink)(nil)
)

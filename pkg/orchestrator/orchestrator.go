// Package orchestrator turns a finished user utterance into assistant
// output: it routes between web search and text generation, relays
// synthesized audio, persists the exchange, and forwards email intents
// to the outbound webhook.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/novaflowai/novaflow/pkg/generate"
	"github.com/novaflowai/novaflow/pkg/history"
	"github.com/novaflowai/novaflow/pkg/knowledge"
	"github.com/novaflowai/novaflow/pkg/protocol"
	"github.com/novaflowai/novaflow/pkg/search"
	"github.com/novaflowai/novaflow/pkg/settings"
	"github.com/novaflowai/novaflow/pkg/synthesis"
)

// Tone instructions keyed by conversation type. Anything else falls
// back to the reflective default.
var toneInstructions = map[string]string{
	"casual":    "You are a friendly and approachable assistant. Use simple, conversational language with a relaxed tone.",
	"formal":    "You are a professional assistant. Use clear, polite, and formal language in your responses.",
	"technical": "You are a technical expert. Provide detailed, precise, and technical responses suitable for advanced users.",
}

const defaultToneInstruction = "You are a wise and gentle guide. Your tone is calm, clear, and comforting, like a thoughtful elder or a trusted friend. " +
	"You explain things in a simple way, sometimes using small analogies or everyday examples if they help. " +
	"Keep responses natural and conversational — never too formal, never dramatic, and not motivational. " +
	"The goal is to make the user feel relaxed, understood, and stress-free, while still giving useful and thoughtful answers."

// searchKeywords trigger the web-search path.
var searchKeywords = []string{"search", "find", "look up"}

// errAudioFailed marks a synthesis failure already reported to the
// client; the rest of the response is abandoned.
var errAudioFailed = errors.New("orchestrator: audio synthesis failed")

// Generator produces one completion for an utterance.
type Generator interface {
	Chat(ctx context.Context, apiKey string, req *generate.Request) (*generate.Response, error)
}

// Searcher summarizes web results for a query.
type Searcher interface {
	Search(ctx context.Context, apiKey, query string, maxResults int) (string, error)
}

// Synthesizer streams text-to-speech audio chunks.
type Synthesizer interface {
	Stream(ctx context.Context, apiKey string, req *synthesis.Request, onChunk func(synthesis.Chunk) error) error
}

// Notifier delivers a response to the outbound webhook.
type Notifier interface {
	Notify(ctx context.Context, url, text string) error
}

var (
	_ Generator   = (*generate.Client)(nil)
	_ Searcher    = (*search.Client)(nil)
	_ Synthesizer = (*synthesis.Client)(nil)
)

// Config holds the orchestrator's collaborators. Settings, Credentials,
// Knowledge and History are required; providers may be nil in tests
// that never reach them.
type Config struct {
	Settings    *settings.Store
	Credentials *settings.Credentials
	Knowledge   *knowledge.Store
	History     *history.Store

	Generator   Generator
	Searcher    Searcher
	Synthesizer Synthesizer
	Notifier    Notifier

	Logger *slog.Logger
}

// Orchestrator routes finished utterances to providers and frames the
// results for one client session.
type Orchestrator struct {
	settings *settings.Store
	creds    *settings.Credentials
	kb       *knowledge.Store
	hist     *history.Store

	generator   Generator
	searcher    Searcher
	synthesizer Synthesizer
	notifier    Notifier

	logger *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Settings == nil || cfg.Credentials == nil || cfg.Knowledge == nil || cfg.History == nil {
		return nil, errors.New("orchestrator: settings, credentials, knowledge and history are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		settings:    cfg.Settings,
		creds:       cfg.Credentials,
		kb:          cfg.Knowledge,
		hist:        cfg.History,
		generator:   cfg.Generator,
		searcher:    cfg.Searcher,
		synthesizer: cfg.Synthesizer,
		notifier:    cfg.Notifier,
		logger:      logger.With("component", "orchestrator"),
	}, nil
}

// Respond handles one finished utterance for chatID. The utterance is
// echoed back as a final user message, routed to search or generation,
// optionally voiced when wantsAudio is set, persisted, and delivered
// on sink. Provider failures are reported to the client as error
// frames; the returned error covers sink failures only.
func (o *Orchestrator) Respond(ctx context.Context, chatID, utterance string, wantsAudio bool, sink protocol.Sink) (string, error) {
	if strings.TrimSpace(utterance) == "" {
		o.logger.Error("invalid utterance", "chat_id", chatID)
		return "", sink.Send(protocol.New(protocol.TypeError, "Invalid query provided"))
	}

	if err := sink.Send(protocol.NewFinal(protocol.TypeUserMessage, utterance, true)); err != nil {
		return "", err
	}

	notify := o.credentialNotifier(sink)
	generatorKey, ok := o.creds.Resolve(settings.KeyGenerator, notify)
	if !ok {
		o.logger.Error("no generator credential available", "chat_id", chatID)
		return "", sink.Send(protocol.New(protocol.TypeError, "No valid Gemini API key found"))
	}

	snap := o.settings.Snapshot()
	original := utterance
	utterance = o.rewriteForKnowledge(utterance, snap)

	if snap.EnableSearch && matchesAny(utterance, searchKeywords) {
		return o.respondWithSearch(ctx, chatID, original, utterance, wantsAudio, snap, sink)
	}
	return o.respondWithGeneration(ctx, chatID, original, utterance, generatorKey, wantsAudio, snap, sink)
}

// Speak voices text directly without generating a response, framing
// each chunk as speak_audio.
func (o *Orchestrator) Speak(ctx context.Context, text string, sink protocol.Sink) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	err := o.synthesize(ctx, text, protocol.TypeSpeakAudio, sink)
	if errors.Is(err, errAudioFailed) {
		return nil
	}
	return err
}

// rewriteForKnowledge rewrites summary requests that mention an
// uploaded document into an explicit summarization prompt.
func (o *Orchestrator) rewriteForKnowledge(utterance string, snap settings.Settings) string {
	if !snap.IncludeKnowledgeBase || !strings.Contains(strings.ToLower(utterance), "summary") {
		return utterance
	}
	name, ok := o.kb.Match(utterance)
	if !ok {
		return utterance
	}
	rewritten := fmt.Sprintf("Summarize the content of the file '%s'", name)
	o.logger.Info("rewrote query for knowledge base", "from", utterance, "to", rewritten)
	return rewritten
}

// respondWithSearch runs the web-search path and frames the summary as
// a search result. The caller only routes here when search is enabled;
// the disabled message covers direct calls.
func (o *Orchestrator) respondWithSearch(ctx context.Context, chatID, original, utterance string, wantsAudio bool, snap settings.Settings, sink protocol.Sink) (string, error) {
	var result string
	if !snap.EnableSearch {
		result = "Search is disabled in settings."
	} else {
		key, _ := o.creds.Resolve(settings.KeySearch, o.credentialNotifier(sink))
		summary, err := o.searcher.Search(ctx, key, utterance, snap.MaxSearchResults)
		if err != nil {
			var apiErr *search.APIError
			if errors.As(err, &apiErr) {
				result = fmt.Sprintf("Error: Unable to perform web search (status %d).", apiErr.StatusCode)
				if sendErr := sink.Send(protocol.New(protocol.TypeError, result)); sendErr != nil {
					return "", sendErr
				}
			} else {
				o.logger.Error("search failed", "error", err)
				return "", sink.Send(protocol.New(protocol.TypeError, fmt.Sprintf("Error processing response: %v", err)))
			}
		} else {
			result = summary
		}
	}

	if wantsAudio {
		if err := o.synthesize(ctx, result, protocol.TypeAudio, sink); err != nil {
			if errors.Is(err, errAudioFailed) {
				return "", nil
			}
			return "", err
		}
	}

	if result != "" {
		if _, err := o.hist.Append(chatID, original, result); err != nil {
			o.logger.Error("failed to save chat history", "chat_id", chatID, "error", err)
		}
		if err := sink.Send(protocol.New(protocol.TypeSearch, result)); err != nil {
			return "", err
		}
	}
	if err := o.forwardEmailIntent(ctx, original, result, sink); err != nil {
		return "", err
	}
	return result, nil
}

// respondWithGeneration runs the text-generation path and frames the
// completion as a response.
func (o *Orchestrator) respondWithGeneration(ctx context.Context, chatID, original, utterance, apiKey string, wantsAudio bool, snap settings.Settings, sink protocol.Sink) (string, error) {
	system, ok := toneInstructions[snap.ConversationType]
	if !ok {
		system = defaultToneInstruction
	}

	parts := []string{utterance}
	if snap.IncludeKnowledgeBase && o.kb.Len() > 0 {
		parts = append(parts, o.knowledgeContext())
	}

	resp, err := o.generator.Chat(ctx, apiKey, &generate.Request{System: system, Parts: parts})
	if err != nil {
		o.logger.Error("generation failed", "error", err)
		return "", sink.Send(protocol.New(protocol.TypeError, fmt.Sprintf("Failed to generate response: %v", err)))
	}
	result := resp.Text

	if wantsAudio {
		if err := o.synthesize(ctx, result, protocol.TypeAudio, sink); err != nil {
			if errors.Is(err, errAudioFailed) {
				return "", nil
			}
			return "", err
		}
	}

	if result != "" {
		if _, err := o.hist.Append(chatID, original, result); err != nil {
			o.logger.Error("failed to save chat history", "chat_id", chatID, "error", err)
		}
		if err := sink.Send(protocol.New(protocol.TypeResponse, result)); err != nil {
			return "", err
		}
		if err := o.forwardEmailIntent(ctx, original, result, sink); err != nil {
			return "", err
		}
	}
	o.logger.Info("response complete", "chat_id", chatID, "chars", len(result))
	return result, nil
}

// knowledgeContext renders every stored document, truncated to 2000
// characters each, as an extra prompt part.
func (o *Orchestrator) knowledgeContext() string {
	var b strings.Builder
	b.WriteString("\n\nKnowledge Base Content:\n")
	for _, doc := range o.kb.Documents() {
		text := doc.Text
		if len(text) > 2000 {
			text = text[:2000]
		}
		fmt.Fprintf(&b, "\nFile: %s\n%s...\n", doc.Name, text)
	}
	return b.String()
}

// synthesize voices text and relays every chunk on sink with the given
// frame type. A provider failure becomes a client error frame.
func (o *Orchestrator) synthesize(ctx context.Context, text string, frameType protocol.FrameType, sink protocol.Sink) error {
	snap := o.settings.Snapshot()
	key, _ := o.creds.Resolve(settings.KeySynthesizer, o.credentialNotifier(sink))

	var sendErr error
	err := o.synthesizer.Stream(ctx, key, &synthesis.Request{
		Text:    text,
		VoiceID: snap.VoiceID,
		Speed:   snap.PlaybackSpeed,
	}, func(chunk synthesis.Chunk) error {
		sendErr = sink.Send(protocol.NewFinal(frameType, chunk.Audio, chunk.IsFinal))
		return sendErr
	})
	if sendErr != nil {
		return sendErr
	}
	if err != nil {
		o.logger.Error("audio synthesis failed", "error", err)
		if sendErr := sink.Send(protocol.New(protocol.TypeError, fmt.Sprintf("Failed to generate audio: %v", err))); sendErr != nil {
			return sendErr
		}
		return errAudioFailed
	}
	return nil
}

// forwardEmailIntent posts the response to the webhook when the
// original utterance asks for email delivery.
func (o *Orchestrator) forwardEmailIntent(ctx context.Context, original, response string, sink protocol.Sink) error {
	lower := strings.ToLower(original)
	if !strings.Contains(lower, "send to email") && !strings.Contains(lower, "email the summary") {
		return nil
	}
	url, _ := o.creds.Resolve(settings.KeyWebhook, o.credentialNotifier(sink))
	if err := o.notifier.Notify(ctx, url, response); err != nil {
		o.logger.Error("webhook delivery failed", "error", err)
		return sink.Send(protocol.New(protocol.TypeError, fmt.Sprintf("Error processing response: %v", err)))
	}
	return sink.Send(protocol.New(protocol.TypeZapier, "Email sent successfully"))
}

// credentialNotifier surfaces missing-credential messages to the
// client as error frames.
func (o *Orchestrator) credentialNotifier(sink protocol.Sink) settings.Notifier {
	return func(msg string) {
		if err := sink.Send(protocol.New(protocol.TypeError, msg)); err != nil {
			o.logger.Warn("failed to deliver credential error", "error", err)
		}
	}
}

// matchesAny reports whether the lowercased utterance contains any of
// the keywords.
func matchesAny(utterance string, keywords []string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

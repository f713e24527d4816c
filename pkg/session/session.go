// Package session drives one live voice session: it owns the capture
// pipeline, the recognizer connection, and the command protocol spoken
// by the web client.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novaflowai/novaflow/pkg/capture"
	"github.com/novaflowai/novaflow/pkg/protocol"
	"github.com/novaflowai/novaflow/pkg/settings"
	"github.com/novaflowai/novaflow/pkg/transcribe"
)

// joinTimeout bounds the wait for the capture goroutine on stop.
const joinTimeout = 5 * time.Second

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Recognizer is one streaming transcription connection.
type Recognizer interface {
	Connect(ctx context.Context, apiKey string) error
	Events() <-chan transcribe.Event
	SendAudio(frame []byte) error
	Terminate() error
	Close() error
}

var _ Recognizer = (*transcribe.Client)(nil)

// RecognizerFactory creates a fresh Recognizer per capture run.
type RecognizerFactory func() Recognizer

// Responder turns a finished utterance into assistant output.
type Responder interface {
	Respond(ctx context.Context, chatID, utterance string, wantsAudio bool, sink protocol.Sink) (string, error)
	Speak(ctx context.Context, text string, sink protocol.Sink) error
}

// Config holds a session's collaborators.
type Config struct {
	ChatID        string
	Sink          protocol.Sink
	Settings      *settings.Store
	Credentials   *settings.Credentials
	Responder     Responder
	NewRecognizer RecognizerFactory
	Source        capture.Source

	// RecordDir receives the WAV recording of each capture run. Empty
	// disables recording.
	RecordDir string

	Logger *slog.Logger
}

// run holds the state of one start/stop capture cycle.
type run struct {
	rec    Recognizer
	stopCh chan struct{}
	doneCh chan struct{} // capture goroutine finished

	stopOnce sync.Once
	finalize sync.Once

	mu          sync.Mutex
	frames      [][]byte
	transcripts []string
	final       string
}

func (r *run) signalStop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Session is a single client's voice session. Commands are handled by
// one reader goroutine; recognizer events are consumed by a single
// internal consumer.
type Session struct {
	chatID    string
	sink      protocol.Sink
	settings  *settings.Store
	creds     *settings.Credentials
	responder Responder
	newRec    RecognizerFactory
	source    capture.Source
	recordDir string
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	cur   *run
}

// New creates a session in the idle state.
func New(cfg Config) (*Session, error) {
	if cfg.Sink == nil || cfg.Settings == nil || cfg.Credentials == nil ||
		cfg.Responder == nil || cfg.NewRecognizer == nil || cfg.Source == nil {
		return nil, errors.New("session: sink, settings, credentials, responder, recognizer and source are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		chatID:    cfg.ChatID,
		sink:      cfg.Sink,
		settings:  cfg.Settings,
		creds:     cfg.Credentials,
		responder: cfg.Responder,
		newRec:    cfg.NewRecognizer,
		source:    cfg.Source,
		recordDir: cfg.RecordDir,
		logger: logger.With("component", "session",
			"session_id", uuid.NewString(), "chat_id", cfg.ChatID),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandleCommand processes one client command: "start", "stop",
// "text:<msg>", "speak:<msg>". Anything else is acknowledged as
// unknown.
func (s *Session) HandleCommand(ctx context.Context, msg string) error {
	s.logger.Info("received client command", "command", msg)

	switch {
	case msg == "start":
		return s.handleStart(ctx)
	case msg == "stop":
		return s.handleStop(ctx)
	case strings.HasPrefix(msg, "text:"):
		text := strings.TrimSpace(strings.TrimPrefix(msg, "text:"))
		if text == "" {
			return nil
		}
		_, err := s.responder.Respond(ctx, s.chatID, text, false, s.sink)
		return err
	case strings.HasPrefix(msg, "speak:"):
		text := strings.TrimSpace(strings.TrimPrefix(msg, "speak:"))
		if text == "" {
			return nil
		}
		return s.responder.Speak(ctx, text, s.sink)
	default:
		return s.sink.SendText(fmt.Sprintf("Unknown command: %s", msg))
	}
}

// handleStart begins a capture run. Starting while capturing is
// acknowledged without a second run.
func (s *Session) handleStart(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return errors.New("session: closed")
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return s.sink.SendText("Already transcribing")
	}

	key, _ := s.creds.Resolve(settings.KeyRecognizer, s.credentialNotifier())
	rec := s.newRec()
	if err := rec.Connect(ctx, key); err != nil {
		s.mu.Unlock()
		s.logger.Error("recognizer connect failed", "error", err)
		return s.sink.Send(protocol.New(protocol.TypeError, fmt.Sprintf("Transcription error: %v", err)))
	}
	if err := s.source.Start(ctx); err != nil {
		s.mu.Unlock()
		rec.Close()
		s.logger.Error("audio source start failed", "error", err)
		return s.sink.Send(protocol.New(protocol.TypeError, fmt.Sprintf("Transcription error: %v", err)))
	}

	r := &run{
		rec:    rec,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	s.cur = r
	s.state = StateCapturing
	s.mu.Unlock()

	go s.captureLoop(ctx, r)
	go s.consumeEvents(ctx, r)

	if err := s.sink.SendText("Started transcription"); err != nil {
		return err
	}
	return s.soundAlert("start")
}

// handleStop ends the capture run, finalizes the turn, and writes the
// recording.
func (s *Session) handleStop(ctx context.Context) error {
	s.mu.Lock()
	r := s.cur
	s.cur = nil
	s.mu.Unlock()

	if r == nil {
		// Stop without an active run still reports the empty turn.
		s.logger.Warn("no transcripts received during session")
		if err := s.sink.Send(protocol.New(protocol.TypeError, "No transcript received for this session")); err != nil {
			return err
		}
		if err := s.soundAlert("error"); err != nil {
			return err
		}
		return s.ackStop()
	}

	r.signalStop()
	s.source.Stop()

	select {
	case <-r.doneCh:
	case <-time.After(joinTimeout):
		s.logger.Warn("capture goroutine did not stop in time")
	}

	var finalizeErr error
	r.finalize.Do(func() { finalizeErr = s.finalizeTurn(ctx, r) })
	if finalizeErr != nil {
		return finalizeErr
	}

	s.writeRecording(r)

	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateIdle
	}
	s.mu.Unlock()

	return s.ackStop()
}

func (s *Session) ackStop() error {
	if err := s.sink.SendText("Stopped transcription"); err != nil {
		return err
	}
	return s.soundAlert("stop")
}

// captureLoop reads microphone frames, applies gain, records them, and
// forwards them to the recognizer until stopped.
func (s *Session) captureLoop(ctx context.Context, r *run) {
	defer close(r.doneCh)
	defer r.rec.Terminate()

	s.logger.Info("audio capture started")
	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		frame, err := s.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			// Transient device errors are retried.
			s.logger.Warn("audio read error", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		sensitivity := s.settings.Snapshot().MicSensitivity
		frame = capture.ApplyGain(frame, sensitivity)

		r.mu.Lock()
		r.frames = append(r.frames, frame)
		r.mu.Unlock()

		if err := r.rec.SendAudio(frame); err != nil {
			s.logger.Error("failed to forward audio", "error", err)
			return
		}
	}
}

// consumeEvents is the single consumer of recognizer events for one
// run. A formatted turn becomes the final transcript; Termination
// finalizes the turn if stop has not already done so.
func (s *Session) consumeEvents(ctx context.Context, r *run) {
	defer r.rec.Close()

	for ev := range r.rec.Events() {
		switch ev.Type {
		case transcribe.EventTurn:
			text := strings.TrimSpace(ev.Transcript)
			if text == "" {
				continue
			}
			r.mu.Lock()
			r.transcripts = append(r.transcripts, text)
			if ev.Formatted {
				r.final = text
			}
			r.mu.Unlock()

			s.logger.Info("live transcription", "transcript", text, "formatted", ev.Formatted)
			// Every turn yields an interim update; a formatted turn adds
			// the final frame on top.
			if err := s.sink.Send(protocol.NewFinal(protocol.TypeUserMessage, text, false)); err != nil {
				s.logger.Warn("failed to deliver transcript", "error", err)
			}
			if ev.Formatted {
				if err := s.sink.Send(protocol.NewFinal(protocol.TypeUserMessage, text, true)); err != nil {
					s.logger.Warn("failed to deliver transcript", "error", err)
				}
			}

		case transcribe.EventTermination:
			s.logger.Info("recognizer terminated turn")
			r.finalize.Do(func() {
				if err := s.finalizeTurn(ctx, r); err != nil {
					s.logger.Error("turn finalization failed", "error", err)
				}
			})

		case transcribe.EventError:
			s.logger.Error("recognizer error", "error", ev.Err)
			if err := s.sink.Send(protocol.New(protocol.TypeError, fmt.Sprintf("Error: %v", ev.Err))); err != nil {
				s.logger.Warn("failed to deliver recognizer error", "error", err)
			}
			s.soundAlert("error")
		}
	}
}

// finalizeTurn settles the final transcript and hands it to the
// responder. Without transcripts the client gets an error and no
// response is generated.
func (s *Session) finalizeTurn(ctx context.Context, r *run) error {
	s.mu.Lock()
	if s.state == StateCapturing {
		s.state = StateFinalizing
	}
	s.mu.Unlock()

	r.mu.Lock()
	transcripts := append([]string(nil), r.transcripts...)
	final := r.final
	r.mu.Unlock()

	if len(transcripts) == 0 {
		s.logger.Warn("no transcripts received during session")
		if err := s.sink.Send(protocol.New(protocol.TypeError, "No transcript received for this session")); err != nil {
			return err
		}
		return s.soundAlert("error")
	}

	if final == "" {
		final = transcripts[len(transcripts)-1]
		s.logger.Info("no formatted transcript, falling back to last", "transcript", final)
		if err := s.sink.Send(protocol.NewFinal(protocol.TypeUserMessage, final, true)); err != nil {
			return err
		}
	}
	if err := s.sink.Send(protocol.New(protocol.TypeTurnEnded, "")); err != nil {
		return err
	}

	_, err := s.responder.Respond(ctx, s.chatID, final, true, s.sink)
	return err
}

// writeRecording saves the run's frames as a WAV file and drops them.
func (s *Session) writeRecording(r *run) {
	if s.recordDir == "" {
		return
	}
	r.mu.Lock()
	frames := r.frames
	r.frames = nil
	r.mu.Unlock()

	cfg := s.source.Config()
	path, err := capture.WriteWAV(s.recordDir, frames, cfg.SampleRate, cfg.Channels, time.Now())
	if err != nil {
		s.logger.Error("failed to save recording", "error", err)
		return
	}
	if path != "" {
		s.logger.Info("saved audio file", "path", path)
	}
}

// soundAlert asks the client to play a notification sound when sounds
// are enabled.
func (s *Session) soundAlert(kind string) error {
	if !s.settings.Snapshot().EnableSound {
		return nil
	}
	return s.sink.Send(protocol.New(protocol.TypeSoundAlert, kind))
}

// credentialNotifier surfaces missing-credential messages as error
// frames.
func (s *Session) credentialNotifier() settings.Notifier {
	return func(msg string) {
		if err := s.sink.Send(protocol.New(protocol.TypeError, msg)); err != nil {
			s.logger.Warn("failed to deliver credential error", "error", err)
		}
	}
}

// Close shuts the session down. Any active capture run is stopped
// without finalizing a turn.
func (s *Session) Close() error {
	s.mu.Lock()
	r := s.cur
	s.cur = nil
	s.state = StateClosed
	s.mu.Unlock()

	if r != nil {
		// Claim finalization first so a late Termination event cannot
		// start a response after the client is gone.
		r.finalize.Do(func() {})
		r.signalStop()
		s.source.Stop()
		select {
		case <-r.doneCh:
		case <-time.After(joinTimeout):
			s.logger.Warn("capture goroutine did not stop in time")
		}
	}
	s.source.Close()
	s.logger.Info("session closed")
	return nil
}

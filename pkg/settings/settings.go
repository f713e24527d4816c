// Package settings holds the process-wide user configuration record and
// the provider credential set. The store is explicitly owned and passed
// to components at construction; update operations return the new
// snapshot rather than mutating shared package state.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// Settings is the single user-configuration record. The JSON field names
// match the web client payloads.
type Settings struct {
	VoiceID              string  `json:"voiceId"`
	PlaybackSpeed        float64 `json:"playbackSpeed"`
	ConversationType     string  `json:"conversationType"`
	MicSensitivity       int     `json:"micSensitivity"`
	AudioQuality         string  `json:"audioQuality"`
	AutoSaveHistory      bool    `json:"autoSaveHistory"`
	IncludeKnowledgeBase bool    `json:"includeKnowledgeBase"`
	EnableSearch         bool    `json:"enableSearch"`
	MaxSearchResults     int     `json:"maxSearchResults"`
	EnableSound          bool    `json:"enableSound"`
	NotificationDuration int     `json:"notificationDuration"`
	Theme                string  `json:"theme"`
	AccentColor          string  `json:"accentColor"`
}

// Defaults returns the hardcoded default record.
func Defaults() Settings {
	return Settings{
		VoiceID:              "en-IN-alia",
		PlaybackSpeed:        1.0,
		ConversationType:     "casual",
		MicSensitivity:       50,
		AudioQuality:         "medium",
		AutoSaveHistory:      true,
		IncludeKnowledgeBase: true,
		EnableSearch:         true,
		MaxSearchResults:     3,
		EnableSound:          true,
		NotificationDuration: 4,
		Theme:                "dark",
		AccentColor:          "orange",
	}
}

// Store owns the live settings record and persists it to a flat JSON
// file on every update.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Settings
	logger  *slog.Logger
}

// NewStore creates a store persisted at path. An existing file is loaded
// so a process restart reproduces the last-known record; a missing or
// unreadable file falls back to defaults.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		current: Defaults(),
		logger:  logger.With("component", "settings"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read settings file, using defaults", "error", err)
		}
		return s
	}
	loaded := Defaults()
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("failed to parse settings file, using defaults", "error", err)
		return s
	}
	s.current = loaded
	return s
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges the given fields into the record and persists the entire
// record, not just the changed fields, so restarts recover the full
// configuration. The in-memory update survives a persistence failure;
// the error is returned so callers can report it.
func (s *Store) Update(fields map[string]any) (Settings, error) {
	s.mu.Lock()
	merged, err := merge(s.current, fields)
	if err != nil {
		s.mu.Unlock()
		return s.current, err
	}
	s.current = merged
	snapshot := s.current
	s.mu.Unlock()

	if err := s.persist(snapshot); err != nil {
		s.logger.Error("failed to persist settings", "error", err)
		return snapshot, err
	}
	s.logger.Info("settings updated")
	return snapshot, nil
}

// Reset restores the hardcoded defaults and persists them.
func (s *Store) Reset() (Settings, error) {
	s.mu.Lock()
	s.current = Defaults()
	snapshot := s.current
	s.mu.Unlock()

	if err := s.persist(snapshot); err != nil {
		s.logger.Error("failed to persist settings on reset", "error", err)
		return snapshot, err
	}
	s.logger.Info("settings reset to defaults")
	return snapshot, nil
}

func (s *Store) persist(snapshot Settings) error {
	if s.path == "" {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// merge applies a partial field map onto a record by round-tripping
// through JSON, so client payloads use the same field names as the file.
func merge(base Settings, fields map[string]any) (Settings, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return base, fmt.Errorf("encode settings: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return base, fmt.Errorf("decode settings: %w", err)
	}
	for k, v := range fields {
		m[k] = v
	}
	raw, err = json.Marshal(m)
	if err != nil {
		return base, fmt.Errorf("encode merged settings: %w", err)
	}
	var merged Settings
	if err := json.Unmarshal(raw, &merged); err != nil {
		return base, fmt.Errorf("invalid settings payload: %w", err)
	}
	return merged, nil
}

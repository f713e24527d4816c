// Package history persists conversations as one JSON array file per
// conversation id under a chats directory.
package history

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Entry is one question/answer turn in a conversation.
type Entry struct {
	Timestamp  string `json:"timestamp"`
	UserQuery  string `json:"user_query"`
	AIResponse string `json:"ai_response"`
}

// AutosaveChecker reports whether history saving is currently enabled.
// The settings store satisfies this through a small adapter so the
// history package does not depend on the settings package.
type AutosaveChecker func() bool

// Store is a file-backed conversation log. Appends from a single process
// are serialized by an internal mutex; concurrent writers from multiple
// processes are not supported.
type Store struct {
	mu      sync.Mutex
	dir     string
	enabled AutosaveChecker
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a history store rooted at dir. enabled gates Append;
// a nil checker means always enabled.
func NewStore(dir string, enabled AutosaveChecker, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chats directory: %w", err)
	}
	return &Store{
		dir:     dir,
		enabled: enabled,
		logger:  logger.With("component", "history"),
		now:     time.Now,
	}, nil
}

func (s *Store) file(chatID string) string {
	return filepath.Join(s.dir, chatID+".json")
}

// Exists reports whether a conversation file is present. This is the
// admission check for live sessions.
func (s *Store) Exists(chatID string) bool {
	if chatID == "" {
		return false
	}
	_, err := os.Stat(s.file(chatID))
	return err == nil
}

// Append adds one timestamped turn to a conversation, rewriting the
// whole file. Returns false without touching the file when autosave is
// disabled.
func (s *Store) Append(chatID, userQuery, aiResponse string) (bool, error) {
	if s.enabled != nil && !s.enabled() {
		s.logger.Info("history saving disabled", "chat_id", chatID)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read(chatID)
	if err != nil {
		return false, err
	}
	entries = append(entries, Entry{
		Timestamp:  s.now().Format(time.RFC3339),
		UserQuery:  userQuery,
		AIResponse: aiResponse,
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(s.file(chatID), data, 0o644); err != nil {
		return false, fmt.Errorf("write history for %s: %w", chatID, err)
	}
	s.logger.Info("history saved", "chat_id", chatID)
	return true, nil
}

// Entries returns the full conversation log; an absent file yields an
// empty slice.
func (s *Store) Entries(chatID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(chatID)
}

func (s *Store) read(chatID string) ([]Entry, error) {
	data, err := os.ReadFile(s.file(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read history for %s: %w", chatID, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse history for %s: %w", chatID, err)
	}
	return entries, nil
}

// List derives conversation ids from the filenames in the store
// directory, numeric ids ascending and non-numeric ids after them.
func (s *Store) List() ([]string, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	var ids []string
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	sort.SliceStable(ids, func(i, j int) bool {
		ni, iok := parseID(ids[i])
		nj, jok := parseID(ids[j])
		switch {
		case iok && jok:
			return ni < nj
		case iok:
			return true
		case jok:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids, nil
}

// Create allocates the next conversation id as max existing numeric id
// plus one (or 1 on an empty store) and writes an empty array file. Ids
// are gap-preserving: removing a conversation never causes id reuse.
// Two concurrent creators from separate processes can race to the same
// id; in-process callers are serialized by the mutex.
func (s *Store) Create() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.List()
	if err != nil {
		return "", err
	}
	maxID := 0
	for _, id := range ids {
		if n, ok := parseID(id); ok && n > maxID {
			maxID = n
		}
	}
	newID := strconv.Itoa(maxID + 1)

	if err := os.WriteFile(s.file(newID), []byte("[]"), 0o644); err != nil {
		return "", fmt.Errorf("create chat %s: %w", newID, err)
	}
	s.logger.Info("created new chat", "chat_id", newID)
	return newID, nil
}

// Clear removes every conversation file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, d.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", d.Name(), err)
		}
	}
	s.logger.Info("chat history cleared")
	return nil
}

func parseID(id string) (int, bool) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

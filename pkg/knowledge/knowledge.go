// Package knowledge stores uploaded documents as extracted plain text,
// persisted to disk and mirrored in memory for prompt assembly.
package knowledge

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
)

var (
	sanitizeRe = regexp.MustCompile(`[^\w\s.-]`)
	wordRe     = regexp.MustCompile(`[^\w\s]`)
)

// Document is one stored knowledge base entry.
type Document struct {
	// Name is the sanitized filename, the unique key.
	Name string

	// Text is the extracted plain text.
	Text string
}

// UploadResult describes the outcome of an upload. Unsupported or
// unextractable files still produce a result with an explanatory
// message, not an error.
type UploadResult struct {
	Message   string
	Preview   string
	WordCount int
}

// Store keeps documents on disk under dir and in an in-memory mapping.
// Iteration order over documents is insertion order; a re-upload with
// the same sanitized name overwrites in place.
type Store struct {
	mu     sync.RWMutex
	dir    string
	names  []string
	texts  map[string]string
	logger *slog.Logger
}

// NewStore creates a knowledge base rooted at dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge directory: %w", err)
	}
	return &Store{
		dir:    dir,
		texts:  make(map[string]string),
		logger: logger.With("component", "knowledge"),
	}, nil
}

// SanitizeFilename strips characters outside word, space, dot and
// hyphen.
func SanitizeFilename(name string) string {
	return sanitizeRe.ReplaceAllString(name, "")
}

// Upload stores a document. Only .txt and .pdf sources are accepted;
// anything else yields a descriptive message with no document stored.
// The returned error covers filesystem failures only.
func (s *Store) Upload(filename string, data []byte) (*UploadResult, error) {
	name := SanitizeFilename(filename)
	rawPath := filepath.Join(s.dir, name)
	if err := os.WriteFile(rawPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write upload %s: %w", name, err)
	}

	var text string
	switch {
	case strings.HasSuffix(name, ".pdf"):
		extracted, err := extractPDF(data)
		if err != nil {
			s.logger.Error("failed to process pdf", "file", name, "error", err)
			return &UploadResult{
				Message: fmt.Sprintf("File %s uploaded, but an error occurred: %v", name, err),
			}, nil
		}
		if strings.TrimSpace(extracted) == "" {
			s.logger.Warn("no text extracted from pdf", "file", name)
			return &UploadResult{
				Message: fmt.Sprintf("File %s uploaded, but no text could be extracted.", name),
			}, nil
		}
		text = extracted
	case strings.HasSuffix(name, ".txt"):
		text = string(data)
	default:
		return &UploadResult{
			Message: fmt.Sprintf("File %s uploaded, but only .pdf and .txt are supported.", name),
		}, nil
	}

	sidePath := filepath.Join(s.dir, name+".txt")
	if err := os.WriteFile(sidePath, []byte(text), 0o644); err != nil {
		return nil, fmt.Errorf("write extracted text for %s: %w", name, err)
	}

	s.mu.Lock()
	if _, exists := s.texts[name]; !exists {
		s.names = append(s.names, name)
	}
	s.texts[name] = text
	s.mu.Unlock()

	words := len(strings.Fields(text))
	s.logger.Info("processed file", "file", name, "words", words)

	preview := text
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return &UploadResult{
		Message:   fmt.Sprintf("File %s uploaded and processed successfully! Extracted %d words.", name, words),
		Preview:   preview,
		WordCount: words,
	}, nil
}

// Documents returns an insertion-order snapshot of all stored documents.
func (s *Store) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.names))
	for _, name := range s.names {
		docs = append(docs, Document{Name: name, Text: s.texts[name]})
	}
	return docs
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Match returns the first stored document whose filename shares at
// least one word with the utterance, comparing lower-cased word sets
// with punctuation stripped. Documents are scanned in insertion order
// and scanning stops at the first hit.
func (s *Store) Match(utterance string) (string, bool) {
	queryWords := wordSet(utterance)
	if len(queryWords) == 0 {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.names {
		for w := range wordSet(name) {
			if _, ok := queryWords[w]; ok {
				return name, true
			}
		}
	}
	return "", false
}

// Clear deletes all stored files and resets the in-memory mapping.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list knowledge base: %w", err)
	}
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, d.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", d.Name(), err)
		}
	}
	s.names = nil
	s.texts = make(map[string]string)
	s.logger.Info("knowledge base cleared")
	return nil
}

// wordSet returns the distinct lower-cased words with punctuation
// stripped.
func wordSet(text string) map[string]struct{} {
	cleaned := wordRe.ReplaceAllString(strings.ToLower(text), "")
	set := make(map[string]struct{})
	for _, w := range strings.Fields(cleaned) {
		set[w] = struct{}{}
	}
	return set
}

// extractPDF concatenates plain text page by page, tolerating pages
// that yield no text.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

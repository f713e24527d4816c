package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStoreUpdateAndSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path, nil)

	snap, err := store.Update(map[string]any{
		"voiceId":        "en-US-ken",
		"micSensitivity": 80,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if snap.VoiceID != "en-US-ken" {
		t.Errorf("Expected voiceId en-US-ken, got %s", snap.VoiceID)
	}
	if snap.MicSensitivity != 80 {
		t.Errorf("Expected micSensitivity 80, got %d", snap.MicSensitivity)
	}
	// Unchanged fields keep their defaults
	if !snap.AutoSaveHistory {
		t.Error("Expected autoSaveHistory to remain true")
	}
	if got := store.Snapshot(); got != snap {
		t.Errorf("Snapshot mismatch: %+v vs %+v", got, snap)
	}
}

func TestStorePersistsEntireRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path, nil)

	if _, err := store.Update(map[string]any{"theme": "light"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Settings file not written: %v", err)
	}
	// The whole record is persisted, not just the changed field.
	for _, want := range []string{"voiceId", "playbackSpeed", "maxSearchResults", "light"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Persisted record missing %q", want)
		}
	}
}

func TestStoreReloadAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path, nil)

	want, err := store.Update(map[string]any{
		"conversationType": "technical",
		"enableSearch":     false,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// A fresh store over the same file reproduces the record.
	reloaded := NewStore(path, nil)
	if got := reloaded.Snapshot(); got != want {
		t.Errorf("Reloaded record mismatch: %+v vs %+v", got, want)
	}
}

func TestStoreReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := NewStore(path, nil)

	if _, err := store.Update(map[string]any{"theme": "light", "micSensitivity": 10}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	snap, err := store.Reset()
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if snap != Defaults() {
		t.Errorf("Expected defaults after reset, got %+v", snap)
	}
}

func TestStoreInvalidFieldType(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"), nil)

	if _, err := store.Update(map[string]any{"micSensitivity": "loud"}); err == nil {
		t.Fatal("Expected error for mistyped field")
	}
	if got := store.Snapshot(); got != Defaults() {
		t.Errorf("Record should be unchanged after invalid update, got %+v", got)
	}
}

func TestCredentialResolutionPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		override bool
		envVal   string
		userVal  string
		want     string
		wantOK   bool
	}{
		{"env wins without override", false, "E", "U", "E", true},
		{"user wins with override", true, "E", "U", "U", true},
		{"user fallback when env empty", false, "", "U", "U", true},
		{"absent when all empty", false, "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := NewCredentials(map[string]string{KeySearch: tt.envVal}, nil)
			if tt.userVal != "" {
				creds.SetKeys(map[string]string{KeySearch: tt.userVal}, tt.override)
			} else {
				creds.SetKeys(map[string]string{}, tt.override)
			}

			got, ok := creds.Resolve(KeySearch, nil)
			if ok != tt.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCredentialAbsentNotifies(t *testing.T) {
	creds := NewCredentials(nil, nil)

	notified := make(chan string, 1)
	_, ok := creds.Resolve(KeyGenerator, func(msg string) {
		notified <- msg
	})
	if ok {
		t.Fatal("Expected absent credential")
	}

	select {
	case msg := <-notified:
		if !strings.Contains(msg, KeyGenerator) {
			t.Errorf("Notification should name the credential: %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Notifier was not invoked")
	}
}

func TestCredentialReset(t *testing.T) {
	creds := NewCredentials(nil, nil)
	creds.SetKeys(map[string]string{KeySynthesizer: "secret"}, true)

	if v, ok := creds.Resolve(KeySynthesizer, nil); !ok || v != "secret" {
		t.Fatalf("Expected user credential, got %q ok=%v", v, ok)
	}

	creds.Reset()
	if _, ok := creds.Resolve(KeySynthesizer, nil); ok {
		t.Error("Expected absent credential after reset")
	}
}

func TestSetKeysIgnoresUnknownNames(t *testing.T) {
	creds := NewCredentials(nil, nil)
	creds.SetKeys(map[string]string{"rogue_key": "x", KeySearch: "tv"}, false)

	if _, ok := creds.Resolve("rogue_key", nil); ok {
		t.Error("Unknown credential name should not be stored")
	}
	if v, ok := creds.Resolve(KeySearch, nil); !ok || v != "tv" {
		t.Errorf("Known credential should be stored, got %q ok=%v", v, ok)
	}
}

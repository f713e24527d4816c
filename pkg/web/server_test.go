package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflowai/novaflow/pkg/history"
	"github.com/novaflowai/novaflow/pkg/knowledge"
	"github.com/novaflowai/novaflow/pkg/protocol"
	"github.com/novaflowai/novaflow/pkg/settings"
)

type stubSession struct{}

func (stubSession) HandleCommand(context.Context, string) error { return nil }
func (stubSession) Close() error                                { return nil }

type fixture struct {
	server *Server
	sets   *settings.Store
	creds  *settings.Credentials
	hist   *history.Store
	kb     *knowledge.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	sets := settings.NewStore(filepath.Join(dir, "settings.json"), nil)
	creds := settings.NewCredentials(map[string]string{}, nil)
	hist, err := history.NewStore(filepath.Join(dir, "chats"), func() bool {
		return sets.Snapshot().AutoSaveHistory
	}, nil)
	require.NoError(t, err)
	kb, err := knowledge.NewStore(filepath.Join(dir, "kb"), nil)
	require.NoError(t, err)

	server, err := NewServer(Config{
		Addr:        ":0",
		Settings:    sets,
		Credentials: creds,
		History:     hist,
		Knowledge:   kb,
		NewSession: func(chatID string, sink protocol.Sink) (Session, error) {
			return stubSession{}, nil
		},
	})
	require.NoError(t, err)
	return &fixture{server: server, sets: sets, creds: creds, hist: hist, kb: kb}
}

func (f *fixture) do(t *testing.T, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func TestNewChatAndList(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/new_chat", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "1", created["chat_id"])

	f.do(t, http.MethodPost, "/new_chat", nil)

	_, body = f.do(t, http.MethodGet, "/chats", nil)
	var ids []string
	require.NoError(t, json.Unmarshal(body, &ids))
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestChatHistoryDefaultsToFirstChat(t *testing.T) {
	f := newFixture(t)
	_, err := f.hist.Create()
	require.NoError(t, err)
	_, err = f.hist.Append("1", "hi", "hello")
	require.NoError(t, err)

	_, body := f.do(t, http.MethodGet, "/chat_history", nil)
	var entries []map[string]string
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "hi", entries[0]["user_query"])
	assert.Equal(t, "hello", entries[0]["ai_response"])
}

func TestChatHistoryAbsentConversation(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/chat_history?chat_id=99", nil)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadTxt(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.App().Test(uploadRequest(t, "notes.txt", []byte("hello knowledge world")), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)

	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "File notes.txt uploaded and processed successfully! Extracted 3 words.", result["message"])
	assert.Equal(t, "hello knowledge world", result["extracted_text"])
	assert.Equal(t, 1, f.kb.Len())
}

func TestUploadUnsupportedType(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.App().Test(uploadRequest(t, "data.csv", []byte("a,b")), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)

	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "File data.csv uploaded, but only .pdf and .txt are supported.", result["message"])
	assert.Equal(t, 0, f.kb.Len())
}

func TestSetKeys(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/set_keys", map[string]string{
		settings.KeyGenerator: "user-key",
		"override_env":        "true",
	})
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "API keys saved successfully.", result["message"])

	key, ok := f.creds.Resolve(settings.KeyGenerator, nil)
	require.True(t, ok)
	assert.Equal(t, "user-key", key)
}

func TestSetSettings(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/set_settings", map[string]any{
		"voiceId":       "en-US-ken",
		"playbackSpeed": 1.5,
	})
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Settings saved successfully.", result["message"])

	snap := f.sets.Snapshot()
	assert.Equal(t, "en-US-ken", snap.VoiceID)
	assert.Equal(t, 1.5, snap.PlaybackSpeed)
}

func TestSetSettingsInvalidField(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/set_settings", map[string]any{
		"playbackSpeed": "fast",
	})
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.NotEmpty(t, result["error"])
	assert.Equal(t, 1.0, f.sets.Snapshot().PlaybackSpeed)
}

func TestResetSettings(t *testing.T) {
	f := newFixture(t)
	_, err := f.sets.Update(map[string]any{"voiceId": "en-US-ken"})
	require.NoError(t, err)
	f.creds.SetKeys(map[string]string{settings.KeyGenerator: "user-key"}, true)

	_, body := f.do(t, http.MethodPost, "/reset_settings", map[string]bool{"reset": true})
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Settings reset successfully.", result["message"])
	assert.Equal(t, "en-IN-alia", f.sets.Snapshot().VoiceID)

	_, ok := f.creds.Resolve(settings.KeyGenerator, nil)
	assert.False(t, ok)
}

func TestResetSettingsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodPost, "/reset_settings", map[string]bool{"reset": false})
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Invalid reset request", result["error"])
}

func TestClearChatHistory(t *testing.T) {
	f := newFixture(t)
	_, err := f.hist.Create()
	require.NoError(t, err)

	_, body := f.do(t, http.MethodPost, "/clear_chat_history", map[string]bool{"clear": true})
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Chat history cleared successfully.", result["message"])

	ids, err := f.hist.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestClearKnowledgeBase(t *testing.T) {
	f := newFixture(t)
	_, err := f.kb.Upload("a.txt", []byte("content"))
	require.NoError(t, err)

	_, body := f.do(t, http.MethodPost, "/clear_knowledge_base", map[string]bool{"clear": true})
	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Knowledge base cleared successfully.", result["message"])
	assert.Equal(t, 0, f.kb.Len())
}

func wsUpgradeRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}

func TestSessionAdmission(t *testing.T) {
	f := newFixture(t)
	_, err := f.hist.Create()
	require.NoError(t, err)

	// Plain GET without upgrade headers.
	resp, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, "/ws?chat_id=1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	// Missing chat_id.
	resp, err = f.server.App().Test(wsUpgradeRequest("/ws"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown conversation.
	resp, err = f.server.App().Test(wsUpgradeRequest("/ws?chat_id=42"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

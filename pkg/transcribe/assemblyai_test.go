package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func recognizerServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func collect(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed after %d events, want %d", len(got), n)
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out after %d events, want %d", len(got), n)
		}
	}
	return got
}

func TestConnectAndEvents(t *testing.T) {
	url := recognizerServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("sample_rate") != "16000" || q.Get("format_turns") != "true" {
			t.Errorf("query = %v", q)
		}

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Begin","id":"abc"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Turn","transcript":"hello th","turn_is_formatted":false}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Turn","transcript":"Hello there.","turn_is_formatted":true}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Termination"}`))
	})

	client := NewClient(WithBaseURL(url))
	if err := client.Connect(context.Background(), "test-key"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	got := collect(t, client.Events(), 4)
	if got[0].Type != EventBegin {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[1].Type != EventTurn || got[1].Transcript != "hello th" || got[1].Formatted {
		t.Errorf("event 1 = %+v", got[1])
	}
	if got[2].Type != EventTurn || got[2].Transcript != "Hello there." || !got[2].Formatted {
		t.Errorf("event 2 = %+v", got[2])
	}
	if got[3].Type != EventTermination {
		t.Errorf("event 3 = %+v", got[3])
	}

	// Channel closes after termination.
	select {
	case _, ok := <-client.Events():
		if ok {
			t.Error("expected closed channel after Termination")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after Termination")
	}
}

func TestSendAudio(t *testing.T) {
	frames := make(chan []byte, 1)
	url := recognizerServer(t, func(conn *websocket.Conn, r *http.Request) {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read: %v", err)
			return
		}
		if mt != websocket.BinaryMessage {
			t.Errorf("message type = %d, want binary", mt)
		}
		frames <- data
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Termination"}`))
	})

	client := NewClient(WithBaseURL(url))
	if err := client.Connect(context.Background(), "k"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := client.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	select {
	case got := <-frames:
		if string(got) != string(pcm) {
			t.Errorf("frame = %v, want %v", got, pcm)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not receive audio frame")
	}
}

func TestTerminate(t *testing.T) {
	url := recognizerServer(t, func(conn *websocket.Conn, r *http.Request) {
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("read terminate: %v", err)
			return
		}
		if msg["type"] != "Terminate" {
			t.Errorf("terminate frame = %v", msg)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Termination"}`))
	})

	client := NewClient(WithBaseURL(url))
	if err := client.Connect(context.Background(), "k"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	if err := client.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	got := collect(t, client.Events(), 1)
	if got[0].Type != EventTermination {
		t.Errorf("event = %+v, want Termination", got[0])
	}
}

func TestEmptyTurnSkipped(t *testing.T) {
	url := recognizerServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Turn","transcript":""}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Turn","transcript":"ok","turn_is_formatted":true}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Termination"}`))
	})

	client := NewClient(WithBaseURL(url))
	if err := client.Connect(context.Background(), "k"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	got := collect(t, client.Events(), 2)
	if got[0].Type != EventTurn || got[0].Transcript != "ok" {
		t.Errorf("event 0 = %+v", got[0])
	}
	if got[1].Type != EventTermination {
		t.Errorf("event 1 = %+v", got[1])
	}
}

func TestConnectNoAPIKey(t *testing.T) {
	client := NewClient()
	err := client.Connect(context.Background(), "")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestSendAudioNotConnected(t *testing.T) {
	client := NewClient()
	if err := client.SendAudio([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestDialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL("ws" + strings.TrimPrefix(server.URL, "http")))
	err := client.Connect(context.Background(), "bad-key")

	var dialErr *DialError
	if !errors.As(err, &dialErr) {
		t.Fatalf("err = %v, want *DialError", err)
	}
	if dialErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", dialErr.StatusCode)
	}
}

package server

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	orchestration "github.com/dkurenkov/veles/core"
	"github.com/dkurenkov/veles/core/llms"
)

type scriptedTranscriber struct {
	transcript string
}

func (t *scriptedTranscriber) Start(context.Context) error { return nil }
func (t *scriptedTranscriber) Feed([]byte) error           { return nil }
func (t *scriptedTranscriber) Stop() error                 { return nil }
func (t *scriptedTranscriber) Text(context.Context) (string, error) {
	return t.transcript, nil
}

type scriptedBackend struct {
	text string
}

func (b *scriptedBackend) Generate(context.Context, string, []llms.UserFact, ...llms.GenerateOption) iter.Seq2[llms.GenerationItem, error] {
	return func(yield func(llms.GenerationItem, error) bool) {
		yield(llms.TextFragment(b.text), nil)
	}
}

type scriptedSynthesizer struct{}

func (scriptedSynthesizer) Synthesize(_ context.Context, sentence string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !yield([]byte("pcm1:"+sentence), nil) {
			return
		}
		yield([]byte("pcm2:"+sentence), nil)
	}
}

type scriptedChatResponder struct {
	prompts []string
}

func (r *scriptedChatResponder) Respond(_ context.Context, prompt string) string {
	r.prompts = append(r.prompts, prompt)
	return "Здравствуй, " + prompt
}

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	server := New(func() []orchestration.SessionOption {
		return []orchestration.SessionOption{
			orchestration.WithTranscriber(&scriptedTranscriber{transcript: "Привет"}),
			orchestration.WithBackend(&scriptedBackend{text: "Здравствуй! Чем помочь?"}),
			orchestration.WithSynthesizer(scriptedSynthesizer{}),
		}
	}, WithChatResponder(&scriptedChatResponder{}))
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func TestSessionOverWebsocketEndToEnd(t *testing.T) {
	_, ts := testServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"start":true}`)); err != nil {
		t.Fatalf("failed to send start: %v", err)
	}
	for range 10 {
		if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 1024)); err != nil {
			t.Fatalf("failed to send frame: %v", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"end":true}`)); err != nil {
		t.Fatalf("failed to send end: %v", err)
	}

	var sequence []string
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed to read message (so far %v): %v", sequence, err)
		}
		if msgType == websocket.BinaryMessage {
			sequence = append(sequence, "audio")
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("failed to decode control message %s: %v", payload, err)
		}
		switch {
		case decoded["user_transcription"] != nil:
			sequence = append(sequence, "transcription:"+decoded["user_transcription"].(string))
		case decoded["assistant_text"] != nil:
			sequence = append(sequence, "text:"+decoded["assistant_text"].(string))
		case decoded["end"] == true:
			sequence = append(sequence, "end")
		}
		if len(sequence) > 0 && sequence[len(sequence)-1] == "end" {
			break
		}
	}

	want := []string{
		"transcription:Привет",
		"text:Здравствуй!", "audio", "audio",
		"text:Чем помочь?", "audio", "audio",
		"end",
	}
	if len(sequence) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(sequence), sequence)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("expected message %d to be %q, got %q (full: %v)", i, want[i], sequence[i], sequence)
		}
	}
}

func TestChatEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		strings.NewReader(`{"user_text":"Привет"}`))
	if err != nil {
		t.Fatalf("failed to post chat request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var reply struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("failed to decode chat response: %v", err)
	}
	if reply.Response != "Здравствуй, Привет" {
		t.Fatalf("expected the responder's reply, got %q", reply.Response)
	}
}

func TestChatEndpointRejectsBadRequests(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/chat")
	if err != nil {
		t.Fatalf("failed to get chat endpoint: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("failed to post empty chat request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing user_text, got %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status struct {
		Status         string `json:"status"`
		ActiveSessions int64  `json:"active_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Status != "ok" {
		t.Fatalf("expected status ok, got %q", status.Status)
	}
	if status.ActiveSessions != 0 {
		t.Fatalf("expected no active sessions, got %d", status.ActiveSessions)
	}
}

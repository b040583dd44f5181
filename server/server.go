// Package server exposes the voice session orchestrator over HTTP: a
// websocket endpoint for duplex sessions and a JSON status endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	orchestration "github.com/dkurenkov/veles/core"
)

// SessionOptionsProvider builds the option set for one connection. It is
// called per accepted websocket so stateful collaborators, the transcriber in
// particular, are never shared between sessions.
type SessionOptionsProvider func() []orchestration.SessionOption

// ChatResponder answers one text-only exchange, used by the /chat endpoint.
type ChatResponder interface {
	Respond(ctx context.Context, prompt string) string
}

type Server struct {
	upgrader       websocket.Upgrader
	sessionOptions SessionOptionsProvider
	chat           ChatResponder

	startedAt      time.Time
	activeSessions atomic.Int64
}

type Option func(*Server)

// WithChatResponder enables the /chat endpoint.
func WithChatResponder(responder ChatResponder) Option {
	return func(s *Server) { s.chat = responder }
}

func New(sessionOptions SessionOptionsProvider, opts ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients connect from anywhere on the local network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessionOptions: sessionOptions,
		startedAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleSession)
	mux.HandleFunc("/status", s.handleStatus)
	if s.chat != nil {
		mux.HandleFunc("/chat", s.handleChat)
	}
	return mux
}

// handleSession owns the connection for its lifetime; the handler goroutine
// is the session's receive loop.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	session := orchestration.NewSession(conn, s.sessionOptions()...)

	ctx, span := tracer.Start(r.Context(), "serve voice session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", session.ID().String()))

	s.activeSessions.Add(1)
	defer s.activeSessions.Add(-1)

	logger.Info("session connected", "session", session.ID(), "remote", conn.RemoteAddr())
	if err := session.Run(ctx); err != nil {
		span.RecordError(err)
	}
	logger.Info("session disconnected", "session", session.ID())
}

// handleChat serves a text-in/text-out turn over plain HTTP, sharing the
// backend and tools with the voice sessions.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		UserText string `json:"user_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || strings.TrimSpace(request.UserText) == "" {
		http.Error(w, "user_text is required", http.StatusBadRequest)
		return
	}

	ctx, span := tracer.Start(r.Context(), "serve text exchange")
	defer span.End()

	reply := s.chat.Respond(ctx, request.UserText)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Response string `json:"response"`
	}{Response: reply})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status         string `json:"status"`
		UptimeSeconds  int64  `json:"uptime_seconds"`
		ActiveSessions int64  `json:"active_sessions"`
	}{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		ActiveSessions: s.activeSessions.Load(),
	})
}

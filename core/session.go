package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dkurenkov/veles/core/commands"
	"github.com/dkurenkov/veles/core/llms"
	"github.com/dkurenkov/veles/core/protocol"
)

type sessionState string

const (
	stateIdle       sessionState = "idle"
	stateRecording  sessionState = "recording"
	stateFinalizing sessionState = "finalizing"
	stateResponding sessionState = "responding"
)

// Session owns one connection's lifecycle: it ingests audio while recording,
// finalizes transcription on end-of-recording and spawns one response
// pipeline per utterance. A monotonic generation counter is the sole arbiter
// of which pipeline's output is still authoritative; a new start supersedes
// the previous generation before anything else happens.
type Session struct {
	id      uuid.UUID
	conn    conn
	emitter *emitter

	backend      llms.Backend
	transcriber  Transcriber
	synthesizer  Synthesizer
	factStore    FactStore
	factObserver llms.FactObserver
	executor     commands.Executor
	tools        []llms.Tool

	mu         sync.Mutex
	state      sessionState
	generation int64
	pipeline   *responsePipeline
	frames     int
}

func NewSession(conn conn, opts ...SessionOption) *Session {
	s := &Session{
		id:      uuid.New(),
		conn:    conn,
		emitter: newEmitter(conn),
		state:   stateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// Run services the connection's receive loop until the peer disconnects or
// ctx is cancelled. It never blocks on a pipeline: responses drain on their
// own goroutine so a new start can supersede them at any moment.
func (s *Session) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("session is required")
	}
	if s.backend == nil || s.transcriber == nil || s.synthesizer == nil {
		return fmt.Errorf("session requires a backend, a transcriber and a synthesizer")
	}

	ctx, span := tracer.Start(ctx, "run session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.id.String()))

	done := withContextCancelHook(ctx, func() { _ = s.conn.Close() })
	defer close(done)
	defer s.teardown()

	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				span.RecordError(err)
			}
			return nil
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleFrame(payload)
		case websocket.TextMessage:
			msg, err := protocol.Decode(payload)
			if err != nil {
				logger.Warn("dropping unparseable control message", "session", s.id, "error", err)
				continue
			}
			switch msg.Kind {
			case protocol.KindStart:
				s.handleStart(ctx)
			case protocol.KindEnd:
				s.handleEnd(ctx)
			default:
				// Client-originated transcription/assistant text makes no
				// sense; tolerated and dropped.
			}
		}
	}
}

// handleStart begins a new utterance. Any in-flight pipeline is superseded
// first: the generation advances, demoting its writes, then it is cancelled.
func (s *Session) handleStart(ctx context.Context) {
	s.mu.Lock()
	superseded := s.pipeline
	s.pipeline = nil
	s.generation++
	generation := s.generation
	s.state = stateRecording
	s.frames = 0
	s.mu.Unlock()

	s.emitter.promote(generation)
	superseded.Cancel()

	if err := s.transcriber.Start(ctx); err != nil {
		recordedErr := fmt.Errorf("failed to start transcription: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		s.setIdleIfCurrent(generation)
	}
}

// handleFrame forwards recorded audio to the transcriber. Frames outside
// RECORDING are protocol-tolerated noise, not errors.
func (s *Session) handleFrame(payload []byte) {
	s.mu.Lock()
	recording := s.state == stateRecording
	if recording {
		s.frames++
	}
	s.mu.Unlock()

	if !recording {
		return
	}
	if err := s.transcriber.Feed(payload); err != nil {
		logger.Warn("failed to feed audio frame", "session", s.id, "error", err)
	}
}

// handleEnd finalizes the utterance and spawns its response pipeline. An
// empty or garbled transcript is a no-op turn: the session silently returns
// to idle and no pipeline runs.
func (s *Session) handleEnd(ctx context.Context) {
	s.mu.Lock()
	if s.state != stateRecording {
		s.mu.Unlock()
		return
	}
	s.state = stateFinalizing
	generation := s.generation
	frames := s.frames
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "finalize utterance")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("session.generation", generation),
		attribute.Int("utterance.frames", frames),
	)

	if err := s.transcriber.Stop(); err != nil {
		span.RecordError(fmt.Errorf("failed to stop transcription: %w", err))
	}
	transcript, err := s.transcriber.Text(ctx)
	if err != nil {
		span.RecordError(fmt.Errorf("failed to finalize transcription: %w", err))
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		s.setIdleIfCurrent(generation)
		return
	}
	span.SetAttributes(attribute.String("utterance.transcript", transcript))

	if err := s.emitter.sendControl(generation, protocol.UserTranscription(transcript)); err != nil {
		span.RecordError(fmt.Errorf("failed to emit transcription: %w", err))
		s.setIdleIfCurrent(generation)
		return
	}

	var facts []llms.UserFact
	if s.factStore != nil {
		facts = s.factStore.Facts()
	}
	pipeline := newResponsePipeline(generation, transcript, facts,
		s.backend, s.synthesizer, s.executor, s.tools, s.emitter)

	s.mu.Lock()
	if s.generation != generation {
		// A new start arrived while we were finalizing; this turn lost.
		s.mu.Unlock()
		return
	}
	s.pipeline = pipeline
	s.state = stateResponding
	s.mu.Unlock()

	go s.observeFacts(ctx, transcript)
	go func() {
		if err := pipeline.Run(ctx); err != nil {
			logger.Warn("response pipeline failed", "session", s.id, "error", err)
		}
		s.mu.Lock()
		if s.pipeline == pipeline {
			s.pipeline = nil
			s.state = stateIdle
		}
		s.mu.Unlock()
	}()
}

// observeFacts runs in the background; its failure never affects the visible
// response.
func (s *Session) observeFacts(ctx context.Context, transcript string) {
	observeFact(ctx, s.factObserver, s.factStore, transcript)
}

func observeFact(ctx context.Context, observer llms.FactObserver, store FactStore, transcript string) {
	if observer == nil || store == nil {
		return
	}

	fact, err := observer.ObserveFact(ctx, transcript, store.Facts())
	if err != nil {
		logger.Warn("fact observation failed", "error", err)
		return
	}
	if fact == "" {
		return
	}
	if store.AppendIfNew(fact) {
		if err := store.Save(); err != nil {
			logger.Warn("failed to persist facts", "error", err)
		}
	}
}

func (s *Session) setIdleIfCurrent(generation int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == generation {
		s.state = stateIdle
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	pipeline := s.pipeline
	s.pipeline = nil
	s.state = stateIdle
	s.mu.Unlock()

	pipeline.Cancel()
}

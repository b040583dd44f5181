package orchestration

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dkurenkov/veles/core/protocol"
)

// errStaleGeneration marks an emission attempt from a superseded pipeline.
// The message is dropped, not sent; callers treat it as a stop signal.
var errStaleGeneration = errors.New("emission suppressed for stale generation")

// conn is the slice of *websocket.Conn the session needs; fakes implement it
// in tests.
type conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// emitter owns the write side of the connection. All outgoing messages are
// tagged with the generation that produced them and checked against the
// current one under the write lock, so a stale pipeline can never interleave
// output with its successor.
type emitter struct {
	mu         sync.Mutex
	conn       conn
	generation int64
}

func newEmitter(conn conn) *emitter {
	return &emitter{conn: conn}
}

// promote makes generation the authoritative one. Older generations' writes
// are suppressed from this point on, even if their pipelines are still
// draining.
func (e *emitter) promote(generation int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation > e.generation {
		e.generation = generation
	}
}

func (e *emitter) sendControl(generation int64, msg protocol.ControlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if generation != e.generation {
		return errStaleGeneration
	}
	if err := e.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write control message: %w", err)
	}
	return nil
}

func (e *emitter) sendAudio(generation int64, chunk []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation != e.generation {
		return errStaleGeneration
	}
	if err := e.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to write audio frame: %w", err)
	}
	return nil
}

package orchestration

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/dkurenkov/veles/core/protocol"
)

func TestEmitterSuppressesStaleGeneration(t *testing.T) {
	conn := newFakeConn()
	e := newEmitter(conn)
	e.promote(1)

	if err := e.sendControl(1, protocol.AssistantText("живое")); err != nil {
		t.Fatalf("expected current generation to emit, got %v", err)
	}

	e.promote(2)

	if err := e.sendControl(1, protocol.AssistantText("устаревшее")); !errors.Is(err, errStaleGeneration) {
		t.Fatalf("expected stale generation error, got %v", err)
	}
	if err := e.sendAudio(1, []byte{1, 2}); !errors.Is(err, errStaleGeneration) {
		t.Fatalf("expected stale generation error, got %v", err)
	}

	written := conn.snapshot()
	if len(written) != 1 {
		t.Fatalf("expected exactly 1 emitted message, got %d", len(written))
	}
}

func TestEmitterPromoteNeverMovesBackwards(t *testing.T) {
	conn := newFakeConn()
	e := newEmitter(conn)
	e.promote(3)
	e.promote(2)

	if err := e.sendControl(2, protocol.End()); !errors.Is(err, errStaleGeneration) {
		t.Fatalf("expected generation 2 to stay demoted, got %v", err)
	}
	if err := e.sendControl(3, protocol.End()); err != nil {
		t.Fatalf("expected generation 3 to emit, got %v", err)
	}
}

func TestEmitterWritesControlAsTextAndAudioAsBinary(t *testing.T) {
	conn := newFakeConn()
	e := newEmitter(conn)

	if err := e.sendControl(0, protocol.UserTranscription("привет")); err != nil {
		t.Fatalf("expected control to emit, got %v", err)
	}
	if err := e.sendAudio(0, []byte{9}); err != nil {
		t.Fatalf("expected audio to emit, got %v", err)
	}

	written := conn.snapshot()
	if written[0].msgType != websocket.TextMessage {
		t.Fatalf("expected first message to be text, got %d", written[0].msgType)
	}
	if string(written[0].data) != `{"user_transcription":"привет"}` {
		t.Fatalf("unexpected control payload: %s", written[0].data)
	}
	if written[1].msgType != websocket.BinaryMessage {
		t.Fatalf("expected second message to be binary, got %d", written[1].msgType)
	}
}

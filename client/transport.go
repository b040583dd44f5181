package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkurenkov/veles/core/protocol"
)

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Transport keeps the session socket alive across server restarts. While
// connected it runs two independent duties: forwarding mic frames whenever
// recording is active, and routing inbound messages (binary to the playback
// queue, JSON to the display sink). Recording edges never block the receive
// path.
type Transport struct {
	url    string
	dialer *websocket.Dialer

	initialBackoff time.Duration
	maxBackoff     time.Duration

	onControl func(protocol.ControlMessage)
	onAudio   func(chunk []byte)
	onState   func(ConnectionState)

	mu        sync.Mutex
	conn      *websocket.Conn
	state     ConnectionState
	backoff   time.Duration
	recording bool

	writeMu sync.Mutex
}

type TransportOption func(*Transport)

func WithBackoff(initial, max time.Duration) TransportOption {
	return func(t *Transport) {
		t.initialBackoff = initial
		t.maxBackoff = max
	}
}

func WithControlHandler(handler func(protocol.ControlMessage)) TransportOption {
	return func(t *Transport) { t.onControl = handler }
}

func WithAudioHandler(handler func(chunk []byte)) TransportOption {
	return func(t *Transport) { t.onAudio = handler }
}

func WithStateHandler(handler func(ConnectionState)) TransportOption {
	return func(t *Transport) { t.onState = handler }
}

func NewTransport(url string, opts ...TransportOption) *Transport {
	t := &Transport{
		url:            url,
		dialer:         websocket.DefaultDialer,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		state:          StateDisconnected,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.backoff = t.initialBackoff
	return t
}

// Run dials and services the connection until ctx ends, reconnecting with
// exponential backoff after every drop.
func (t *Transport) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			conn := t.conn
			t.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
		case <-done:
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t.setState(StateConnecting)
		conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			t.setState(StateDisconnected)
			delay := t.nextBackoff()
			logger.Warn("connection failed, retrying", "url", t.url, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.backoff = t.initialBackoff
		t.mu.Unlock()
		t.setState(StateConnected)

		t.receiveLoop(conn)

		t.mu.Lock()
		t.conn = nil
		t.recording = false
		t.mu.Unlock()
		t.setState(StateDisconnected)
	}
}

func (t *Transport) receiveLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("connection lost", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if t.onAudio != nil {
				t.onAudio(payload)
			}
		case websocket.TextMessage:
			msg, err := protocol.Decode(payload)
			if err != nil {
				logger.Warn("dropping unparseable control message", "error", err)
				continue
			}
			if t.onControl != nil {
				t.onControl(msg)
			}
		}
	}
}

// nextBackoff returns the delay to use for the current failure and doubles
// the stored one, up to the cap. A successful connection resets it.
func (t *Transport) nextBackoff() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	delay := t.backoff
	t.backoff *= 2
	if t.backoff > t.maxBackoff {
		t.backoff = t.maxBackoff
	}
	return delay
}

func (t *Transport) setState(state ConnectionState) {
	t.mu.Lock()
	changed := t.state != state
	t.state = state
	t.mu.Unlock()

	if changed && t.onState != nil {
		t.onState(state)
	}
}

func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) IsRecording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recording
}

// StartRecording opens an utterance server-side. Mic frames are forwarded
// until StopRecording.
func (t *Transport) StartRecording() error {
	t.mu.Lock()
	if t.recording {
		t.mu.Unlock()
		return nil
	}
	t.recording = true
	t.mu.Unlock()

	if err := t.sendControl(protocol.Start()); err != nil {
		t.mu.Lock()
		t.recording = false
		t.mu.Unlock()
		return err
	}
	return nil
}

func (t *Transport) StopRecording() error {
	t.mu.Lock()
	if !t.recording {
		t.mu.Unlock()
		return nil
	}
	t.recording = false
	t.mu.Unlock()

	return t.sendControl(protocol.End())
}

// SendFrame forwards one mic chunk. Frames captured while not recording or
// not connected are dropped silently; the mic callback must never block.
func (t *Transport) SendFrame(chunk []byte) {
	t.mu.Lock()
	conn := t.conn
	recording := t.recording
	t.mu.Unlock()
	if conn == nil || !recording {
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		logger.Warn("failed to send audio frame", "error", err)
	}
}

func (t *Transport) sendControl(msg protocol.ControlMessage) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send control message: %w", err)
	}
	return nil
}

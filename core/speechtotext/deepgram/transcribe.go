// Package deepgram implements utterance transcription over the Deepgram
// listen websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/dkurenkov/veles/core/speechtotext"
	"github.com/gorilla/websocket"

	"github.com/dkurenkov/veles/core/audio"
)

// finalizeTimeout bounds how long Text waits for the tail of the transcript
// after the stream is closed.
const finalizeTimeout = 3 * time.Second

// TranscriptionEngine transcribes one utterance at a time: Start resets the
// accumulation buffer and opens a fresh websocket, Feed streams raw PCM, Stop
// closes the stream and Text collects the finalized transcript.
type TranscriptionEngine struct {
	apiKey  string
	url     string
	options speechtotext.TranscriptionOptions

	connMu sync.Mutex
	conn   *websocket.Conn

	mu        sync.Mutex
	segments  []string
	finalized chan struct{}
}

func NewTranscriptionEngine(apiKey string, opts ...speechtotext.TranscriptionOption) *TranscriptionEngine {
	options := speechtotext.TranscriptionOptions{
		EncodingInfo: audio.GetDefaultEncodingInfo(),
		Model:        "nova-2",
		Language:     "ru",
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &TranscriptionEngine{apiKey: apiKey, url: "wss://api.deepgram.com/v1/listen", options: options}
}

func (e *TranscriptionEngine) Start(ctx context.Context) error {
	if e == nil {
		return fmt.Errorf("transcription engine is required")
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}

	listenURL, err := url.Parse(e.url)
	if err != nil {
		return fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", e.options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(e.options.EncodingInfo.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", e.options.Model)
	queryParams.Set("language", e.options.Language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + e.apiKey}})
	if err != nil {
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	e.conn = conn
	e.mu.Lock()
	e.segments = nil
	e.finalized = make(chan struct{})
	e.mu.Unlock()

	go e.readAndProcessMessages(conn)

	return nil
}

func (e *TranscriptionEngine) Feed(chunk []byte) error {
	e.connMu.Lock()
	defer e.connMu.Unlock()

	if e.conn == nil {
		return fmt.Errorf("transcription stream is not open")
	}
	if err := e.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Stop closes the stream server-side so remaining buffered audio gets
// finalized. The websocket stays open until Deepgram flushes its tail.
func (e *TranscriptionEngine) Stop() error {
	e.connMu.Lock()
	defer e.connMu.Unlock()

	if e.conn == nil {
		return nil
	}
	if err := e.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

// Text waits for the closed stream to finish flushing, then returns the
// accumulated transcript. The wait is bounded; on timeout whatever arrived so
// far is returned.
func (e *TranscriptionEngine) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	finalized := e.finalized
	e.mu.Unlock()

	if finalized != nil {
		select {
		case <-finalized:
		case <-time.After(finalizeTimeout):
			logger.Warn("transcript finalization timed out")
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.TrimSpace(strings.Join(e.segments, " ")), nil
}

func (e *TranscriptionEngine) Close() error {
	e.connMu.Lock()
	defer e.connMu.Unlock()

	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

func (e *TranscriptionEngine) readAndProcessMessages(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		e.connMu.Lock()
		if e.conn == conn {
			e.conn = nil
		}
		e.connMu.Unlock()

		e.mu.Lock()
		if e.finalized != nil {
			close(e.finalized)
			e.finalized = nil
		}
		e.mu.Unlock()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("failed to read deepgram websocket message", "error", err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		e.processMessage(msg)
	}
}

func (e *TranscriptionEngine) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			return
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if len(transcript) == 0 {
			return
		}
		e.mu.Lock()
		e.segments = append(e.segments, transcript)
		e.mu.Unlock()

	case api.TypeMetadataResponse:
		// Metadata arrives after CloseStream once everything is flushed;
		// the server closes the socket right after, ending the read loop.
	}
}

// Package deepgram synthesizes speech over the Deepgram speak websocket, one
// sentence per request.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/dkurenkov/veles/core/audio"
	"github.com/dkurenkov/veles/core/texttospeech"
)

const defaultVoice = "aura-2-thalia-en"

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

func speakMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}

// SynthesisEngine turns sentences into PCM chunk streams. Each Synthesize
// call opens its own websocket so concurrent pipelines never interleave
// audio.
type SynthesisEngine struct {
	apiKey  string
	url     string
	options texttospeech.SynthesisOptions
}

func NewSynthesisEngine(apiKey string, opts ...texttospeech.SynthesisOption) *SynthesisEngine {
	options := texttospeech.SynthesisOptions{
		EncodingInfo: audio.GetDefaultPlaybackEncodingInfo(),
		Voice:        defaultVoice,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &SynthesisEngine{apiKey: apiKey, url: "wss://api.deepgram.com/v1/speak", options: options}
}

// Synthesize streams the sentence's audio in generation order. The sequence
// ends after the server flushes the full sentence; breaking out of it closes
// the connection.
func (e *SynthesisEngine) Synthesize(ctx context.Context, sentence string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		conn, err := e.connect(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("failed to open websocket: %w", err))
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(speakMsg(sentence)); err != nil {
			yield(nil, fmt.Errorf("failed to send text for synthesis: %w", err))
			return
		}
		if err := conn.WriteJSON(flushMsg); err != nil {
			yield(nil, fmt.Errorf("failed to flush synthesis buffer: %w", err))
			return
		}

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return
				}
				yield(nil, fmt.Errorf("failed to read synthesized audio: %w", err))
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				if !yield(msg, nil) {
					return
				}
			case websocket.TextMessage:
				var parsedMsg struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal(msg, &parsedMsg); err != nil {
					logger.Warn("failed to unmarshal deepgram message", "error", err)
					continue
				}
				if parsedMsg.Type == "Flushed" {
					// Sentence fully streamed. Asking the server to close
					// keeps the shutdown handshake clean.
					_ = conn.WriteJSON(closeMsg)
					return
				}
			}
		}
	}
}

func (e *SynthesisEngine) connect(ctx context.Context) (*websocket.Conn, error) {
	speakURL, err := url.Parse(e.url)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	queryParams := speakURL.Query()
	queryParams.Set("encoding", e.options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(e.options.EncodingInfo.SampleRate))
	queryParams.Set("model", e.options.Voice)
	queryParams.Set("container", "none")
	speakURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + e.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

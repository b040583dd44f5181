// Package protocol defines the control messages multiplexed with binary PCM
// frames on a duplex voice connection.
//
// Exactly one kind of payload travels per message: a binary frame carries raw
// PCM bytes and nothing else, a text frame carries a JSON object with exactly
// one control field set. The same `end` object is reused in both directions:
// client to server it closes a recording, server to client it closes a turn.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkurenkov/veles/core/audio"
)

// FrameSize is the nominal size of one PCM frame on the wire. Frames are
// passed through untouched; the size is advisory, not enforced.
const FrameSize = audio.DefaultFrameSize

type Kind string

const (
	KindStart             Kind = "start"
	KindEnd               Kind = "end"
	KindUserTranscription Kind = "user_transcription"
	KindAssistantText     Kind = "assistant_text"
)

// ControlMessage is the tagged variant carried by text frames. Kind selects
// the variant; Text is meaningful only for the transcription and assistant
// text variants.
type ControlMessage struct {
	Kind Kind
	Text string
}

func Start() ControlMessage {
	return ControlMessage{Kind: KindStart}
}

// End doubles as the end-of-turn marker server-side. Direction, not payload,
// distinguishes the two meanings.
func End() ControlMessage {
	return ControlMessage{Kind: KindEnd}
}

func UserTranscription(text string) ControlMessage {
	return ControlMessage{Kind: KindUserTranscription, Text: text}
}

func AssistantText(text string) ControlMessage {
	return ControlMessage{Kind: KindAssistantText, Text: text}
}

type wireMessage struct {
	Start             bool    `json:"start,omitempty"`
	End               bool    `json:"end,omitempty"`
	UserTranscription *string `json:"user_transcription,omitempty"`
	AssistantText     *string `json:"assistant_text,omitempty"`
}

func (m ControlMessage) MarshalJSON() ([]byte, error) {
	var wire wireMessage
	switch m.Kind {
	case KindStart:
		wire.Start = true
	case KindEnd:
		wire.End = true
	case KindUserTranscription:
		text := m.Text
		wire.UserTranscription = &text
	case KindAssistantText:
		text := m.Text
		wire.AssistantText = &text
	default:
		return nil, fmt.Errorf("unknown control message kind: %q", m.Kind)
	}
	return json.Marshal(wire)
}

// Decode parses one text frame. Unknown fields are ignored; an object with no
// recognized control field is rejected so garbled frames surface instead of
// silently becoming no-ops.
func Decode(data []byte) (ControlMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return ControlMessage{}, fmt.Errorf("failed to parse control message: %w", err)
	}

	switch {
	case wire.Start:
		return Start(), nil
	case wire.End:
		return End(), nil
	case wire.UserTranscription != nil:
		return UserTranscription(*wire.UserTranscription), nil
	case wire.AssistantText != nil:
		return AssistantText(*wire.AssistantText), nil
	}

	return ControlMessage{}, fmt.Errorf("control message carries no recognized field: %s", data)
}

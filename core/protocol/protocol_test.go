package protocol

import (
	"encoding/json"
	"testing"
)

func TestControlMessageRoundTripsSingleField(t *testing.T) {
	encoded, err := json.Marshal(UserTranscription("Привет"))
	if err != nil {
		t.Fatalf("expected marshal to succeed, got %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		t.Fatalf("expected valid JSON, got %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected exactly one field on the wire, got %d: %s", len(raw), encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if decoded.Kind != KindUserTranscription || decoded.Text != "Привет" {
		t.Fatalf("expected user transcription %q, got %+v", "Привет", decoded)
	}
}

func TestDecodeStartAndEnd(t *testing.T) {
	msg, err := Decode([]byte(`{"start": true}`))
	if err != nil {
		t.Fatalf("expected start to decode, got %v", err)
	}
	if msg.Kind != KindStart {
		t.Fatalf("expected start kind, got %q", msg.Kind)
	}

	msg, err = Decode([]byte(`{"end": true}`))
	if err != nil {
		t.Fatalf("expected end to decode, got %v", err)
	}
	if msg.Kind != KindEnd {
		t.Fatalf("expected end kind, got %q", msg.Kind)
	}
}

func TestDecodeRejectsUnrecognizedObject(t *testing.T) {
	if _, err := Decode([]byte(`{"volume": 11}`)); err == nil {
		t.Fatalf("expected decode of unrecognized object to fail")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode of invalid JSON to fail")
	}
}

func TestDecodeFalseFlagsAreNotControlMessages(t *testing.T) {
	// {"start": false} carries no instruction; treat it like an empty object.
	if _, err := Decode([]byte(`{"start": false}`)); err == nil {
		t.Fatalf("expected decode of false start flag to fail")
	}
}

func TestAssistantTextPreservesEmptyString(t *testing.T) {
	encoded, err := json.Marshal(AssistantText(""))
	if err != nil {
		t.Fatalf("expected marshal to succeed, got %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if decoded.Kind != KindAssistantText || decoded.Text != "" {
		t.Fatalf("expected empty assistant text, got %+v", decoded)
	}
}

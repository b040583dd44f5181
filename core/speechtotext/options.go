// Package speechtotext holds the shared configuration surface for
// transcription engines.
package speechtotext

import "github.com/dkurenkov/veles/core/audio"

type TranscriptionOptions struct {
	EncodingInfo audio.EncodingInfo
	Model        string
	Language     string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithEncoding(encoding audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.EncodingInfo = encoding }
}

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Model = model }
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Language = language }
}

// Package texttospeech holds the shared configuration surface for speech
// synthesis engines.
package texttospeech

import "github.com/dkurenkov/veles/core/audio"

type SynthesisOptions struct {
	EncodingInfo audio.EncodingInfo
	Voice        string
}

type SynthesisOption func(*SynthesisOptions)

func WithEncoding(encoding audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) { o.EncodingInfo = encoding }
}

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

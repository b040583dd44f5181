// Package segmenter splits an incrementally arriving text stream into
// complete sentences suitable for independent speech synthesis.
package segmenter

import (
	"strings"
	"unicode"
)

const terminators = ".?!…"

// Segmenter accumulates streamed text fragments and emits complete sentences
// in arrival order. It is lossless: concatenating every emitted sentence with
// the final Flush reproduces the fed text exactly, byte for byte.
//
// Not safe for concurrent use; each response stream owns its own instance.
type Segmenter struct {
	remainder strings.Builder
}

func New() *Segmenter {
	return &Segmenter{}
}

// Feed appends a fragment to the remainder and returns any sentences it
// completed. A sentence ends at a terminator rune and must contain at least
// one letter or digit; punctuation-only runs stay buffered so they attach to
// the following sentence instead of being spoken on their own.
func (s *Segmenter) Feed(fragment string) []string {
	if s == nil || fragment == "" {
		return nil
	}
	s.remainder.WriteString(fragment)

	var sentences []string
	text := s.remainder.String()
	start := 0
	for i, r := range text {
		if !strings.ContainsRune(terminators, r) {
			continue
		}
		candidate := text[start : i+len(string(r))]
		if !hasSpeakableContent(candidate) {
			continue
		}
		sentences = append(sentences, candidate)
		start = i + len(string(r))
	}

	if start > 0 {
		s.remainder.Reset()
		s.remainder.WriteString(text[start:])
	}
	return sentences
}

// Flush returns the unterminated remainder and resets the segmenter. The
// remainder may be empty or punctuation-only; callers decide whether it is
// worth speaking.
func (s *Segmenter) Flush() string {
	if s == nil {
		return ""
	}
	remainder := s.remainder.String()
	s.remainder.Reset()
	return remainder
}

func hasSpeakableContent(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

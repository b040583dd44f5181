// Package llms defines the generation backend contract consumed by the
// session orchestrator: a backend turns finalized user text plus remembered
// facts into a lazy, in-order sequence of text fragments and tool calls.
package llms

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrToolInvocation classifies backend failures that are shaped like a broken
// tool call (malformed function call, tool-related 400s). The response
// pipeline uses it to drive the retry ladder: retry once with tools, then
// once without, then give up.
var ErrToolInvocation = errors.New("tool invocation failed")

// UserFact is one remembered statement about the user, dated by the day it
// was learned.
type UserFact struct {
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func NewUserFact(text string) UserFact {
	return UserFact{Text: text, CreatedAt: time.Now().Format(time.DateOnly)}
}

// GenerationItem is the tagged union of things a backend stream can yield.
// It is sealed so pipeline dispatch stays exhaustive: a stream item is either
// a TextFragment or a ToolCallItem, never both, never something else.
type GenerationItem interface {
	generationItem()
}

// TextFragment is a piece of speakable assistant text, in arrival order.
type TextFragment string

func (TextFragment) generationItem() {}

// ToolCallItem is a structured function call requested by the model.
type ToolCallItem ToolCall

func (ToolCallItem) generationItem() {}

// ToolCall names a local action and carries its raw JSON argument payload.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Backend produces assistant output for one finalized utterance.
//
// The returned sequence is lazy: items are produced as generation proceeds
// and iteration stops when the caller breaks. A non-nil error ends the
// sequence; no further items follow it.
type Backend interface {
	Generate(ctx context.Context, prompt string, facts []UserFact, opts ...GenerateOption) iter.Seq2[GenerationItem, error]
}

// FactObserver extracts at most one new fact about the user from an
// utterance. An empty string means nothing worth remembering.
type FactObserver interface {
	ObserveFact(ctx context.Context, prompt string, known []UserFact) (string, error)
}

type GenerateOptions struct {
	// DisableTools suppresses tool definitions on the request entirely. Used
	// by the last rung of the pipeline's retry ladder.
	DisableTools bool
}

type GenerateOption func(*GenerateOptions)

func WithoutTools() GenerateOption {
	return func(o *GenerateOptions) { o.DisableTools = true }
}

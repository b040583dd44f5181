package orchestration

import (
	"context"
	"iter"

	"github.com/dkurenkov/veles/core/commands"
	"github.com/dkurenkov/veles/core/llms"
)

// Transcriber accumulates one utterance at a time. Start resets the buffer,
// Feed streams raw PCM into it, Stop finalizes it and Text returns the
// transcript once finalization settles.
type Transcriber interface {
	Start(ctx context.Context) error
	Feed(chunk []byte) error
	Stop() error
	Text(ctx context.Context) (string, error)
}

// Synthesizer turns one sentence into a lazy ordered sequence of PCM chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, sentence string) iter.Seq2[[]byte, error]
}

// FactStore is the persistent set of user facts, read-shared by pipelines and
// mutated only by the background fact observer.
type FactStore interface {
	Facts() []llms.UserFact
	AppendIfNew(text string) bool
	Save() error
}

type SessionOption func(*Session)

func WithBackend(backend llms.Backend) SessionOption {
	return func(s *Session) { s.backend = backend }
}

func WithTranscriber(transcriber Transcriber) SessionOption {
	return func(s *Session) { s.transcriber = transcriber }
}

func WithSynthesizer(synthesizer Synthesizer) SessionOption {
	return func(s *Session) { s.synthesizer = synthesizer }
}

func WithFactStore(store FactStore) SessionOption {
	return func(s *Session) { s.factStore = store }
}

func WithFactObserver(observer llms.FactObserver) SessionOption {
	return func(s *Session) { s.factObserver = observer }
}

// WithExecutor also derives the structured tool definitions offered to the
// backend, unless WithTools overrides them.
func WithExecutor(executor commands.Executor) SessionOption {
	return func(s *Session) {
		s.executor = executor
		if s.tools == nil {
			s.tools = commands.Tools(executor)
		}
	}
}

func WithTools(tools []llms.Tool) SessionOption {
	return func(s *Session) { s.tools = tools }
}

package orchestration

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dkurenkov/veles/core/llms"
)

type wsMessage struct {
	msgType int
	data    []byte
}

// fakeConn scripts the read side and records the write side of a connection.
type fakeConn struct {
	mu      sync.Mutex
	written []wsMessage

	reads     chan wsMessage
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan wsMessage, 64)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.reads
	if !ok {
		return 0, nil, fmt.Errorf("connection closed")
	}
	return msg.msgType, msg.data, nil
}

func (c *fakeConn) WriteMessage(msgType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, wsMessage{msgType: msgType, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.reads) })
	return nil
}

func (c *fakeConn) push(msgType int, data []byte) {
	c.reads <- wsMessage{msgType: msgType, data: data}
}

func (c *fakeConn) pushControl(payload string) {
	c.push(websocket.TextMessage, []byte(payload))
}

func (c *fakeConn) snapshot() []wsMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wsMessage(nil), c.written...)
}

// fakeTranscriber returns a scripted transcript per utterance.
type fakeTranscriber struct {
	mu          sync.Mutex
	transcripts []string
	utterance   int
	fed         int
	startErr    error
}

func (t *fakeTranscriber) Start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fed = 0
	return t.startErr
}

func (t *fakeTranscriber) Feed([]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fed++
	return nil
}

func (t *fakeTranscriber) Stop() error { return nil }

func (t *fakeTranscriber) Text(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.utterance >= len(t.transcripts) {
		return "", nil
	}
	text := t.transcripts[t.utterance]
	t.utterance++
	return text, nil
}

func (t *fakeTranscriber) framesFed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fed
}

// fakeBackend yields a scripted item sequence per attempt; errs are consumed
// first, one per attempt.
type fakeBackend struct {
	mu       sync.Mutex
	items    []llms.GenerationItem
	itemsFor map[string][]llms.GenerationItem
	errs     []error
	attempts []llms.GenerateOptions
}

func (b *fakeBackend) Generate(_ context.Context, prompt string, _ []llms.UserFact, opts ...llms.GenerateOption) iter.Seq2[llms.GenerationItem, error] {
	options := llms.GenerateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	b.mu.Lock()
	b.attempts = append(b.attempts, options)
	var err error
	if len(b.errs) > 0 {
		err = b.errs[0]
		b.errs = b.errs[1:]
	}
	items := b.items
	if scripted, ok := b.itemsFor[prompt]; ok {
		items = scripted
	}
	b.mu.Unlock()

	return func(yield func(llms.GenerationItem, error) bool) {
		if err != nil {
			yield(nil, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (b *fakeBackend) attemptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.attempts)
}

// fakeSynthesizer yields two chunks derived from the sentence. An optional
// gate blocks the first chunk until released, for barge-in tests.
type fakeSynthesizer struct {
	gate chan struct{}
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, sentence string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.gate != nil {
			select {
			case <-s.gate:
			case <-ctx.Done():
				return
			}
		}
		if !yield([]byte("pcm1:"+sentence), nil) {
			return
		}
		yield([]byte("pcm2:"+sentence), nil)
	}
}

// fakeExecutor records invocations and reports success.
type fakeExecutor struct {
	mu      sync.Mutex
	actions []string
}

func (e *fakeExecutor) record(action string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, action)
	return "Готово"
}

func (e *fakeExecutor) OpenURL(url string) string   { return e.record("open_url:" + url) }
func (e *fakeExecutor) OpenPath(path string) string { return e.record("open_path:" + path) }
func (e *fakeExecutor) RunApp(name string) string   { return e.record("run_app:" + name) }

func (e *fakeExecutor) recorded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.actions...)
}

// fakeFactStore is an in-memory FactStore.
type fakeFactStore struct {
	mu    sync.Mutex
	facts []llms.UserFact
	saves int
}

func (s *fakeFactStore) Facts() []llms.UserFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llms.UserFact(nil), s.facts...)
}

func (s *fakeFactStore) AppendIfNew(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fact := range s.facts {
		if fact.Text == text {
			return false
		}
	}
	s.facts = append(s.facts, llms.NewUserFact(text))
	return true
}

func (s *fakeFactStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

// fakeObserver returns a fixed fact.
type fakeObserver struct {
	fact string
}

func (o *fakeObserver) ObserveFact(context.Context, string, []llms.UserFact) (string, error) {
	return o.fact, nil
}

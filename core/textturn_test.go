package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/dkurenkov/veles/core/commands"
	"github.com/dkurenkov/veles/core/llms"
)

func newTextResponder(backend *fakeBackend, executor *fakeExecutor, store *fakeFactStore, observer llms.FactObserver) *TextResponder {
	// A nil *fakeFactStore must become a nil interface, not a typed nil.
	var factStore FactStore
	if store != nil {
		factStore = store
	}
	return NewTextResponder(backend, executor, commands.Tools(executor), factStore, observer)
}

func TestTextResponderInlinesToolMarkers(t *testing.T) {
	backend := &fakeBackend{items: []llms.GenerationItem{
		llms.TextFragment("Сейчас открою."),
		llms.ToolCallItem(llms.ToolCall{Name: "open_url", Arguments: `{"url":"https://example.com"}`}),
		llms.TextFragment(" Готово."),
	}}
	executor := &fakeExecutor{}
	responder := newTextResponder(backend, executor, nil, nil)

	reply := responder.Respond(context.Background(), "открой пример")

	if reply != "Сейчас открою. [🛠️ open_url] Готово." {
		t.Fatalf("expected marker inlined between the sentences, got %q", reply)
	}
	actions := executor.recorded()
	if len(actions) != 1 || actions[0] != "open_url:https://example.com" {
		t.Fatalf("expected one open_url execution, got %v", actions)
	}
}

func TestTextResponderExecutesTextEmbeddedCommand(t *testing.T) {
	backend := &fakeBackend{items: []llms.GenerationItem{
		llms.TextFragment("CMD_OPEN_URL: https://youtube.com Открываю ютуб."),
	}}
	executor := &fakeExecutor{}
	responder := newTextResponder(backend, executor, nil, nil)

	reply := responder.Respond(context.Background(), "открой ютуб")

	if reply != "[🛠️ open_url] Открываю ютуб." {
		t.Fatalf("expected the marker to replace the command text, got %q", reply)
	}
	actions := executor.recorded()
	if len(actions) != 1 || actions[0] != "open_url:https://youtube.com" {
		t.Fatalf("expected one open_url execution, got %v", actions)
	}
}

func TestTextResponderApologizesWhenAllAttemptsFail(t *testing.T) {
	backend := &fakeBackend{errs: []error{
		llms.ErrToolInvocation, llms.ErrToolInvocation, llms.ErrToolInvocation,
	}}
	responder := newTextResponder(backend, &fakeExecutor{}, nil, nil)

	reply := responder.Respond(context.Background(), "привет")

	if reply != apologySentence {
		t.Fatalf("expected the apology, got %q", reply)
	}
	if got := backend.attemptCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	attempts := backend.attempts
	if attempts[0].DisableTools || attempts[1].DisableTools || !attempts[2].DisableTools {
		t.Fatalf("expected tools disabled only on the last attempt, got %+v", attempts)
	}
}

func TestTextResponderObservesFactsInBackground(t *testing.T) {
	backend := &fakeBackend{items: []llms.GenerationItem{llms.TextFragment("Привет.")}}
	store := &fakeFactStore{}
	responder := newTextResponder(backend, &fakeExecutor{}, store, &fakeObserver{fact: "любит чай"})

	responder.Respond(context.Background(), "я люблю чай")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		facts := store.Facts()
		if len(facts) == 1 && facts[0].Text == "любит чай" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected the fact to be observed in the background")
}

package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/dkurenkov/veles/core/commands"
	"github.com/dkurenkov/veles/core/llms"
)

// TextResponder answers one text-only exchange with the same backend, tools
// and retry ladder as the voice pipeline, minus synthesis. Tool calls are
// executed as they stream in and their markers inlined into the reply.
type TextResponder struct {
	backend      llms.Backend
	executor     commands.Executor
	tools        []llms.Tool
	factStore    FactStore
	factObserver llms.FactObserver
}

func NewTextResponder(backend llms.Backend, executor commands.Executor, tools []llms.Tool, store FactStore, observer llms.FactObserver) *TextResponder {
	return &TextResponder{
		backend:      backend,
		executor:     executor,
		tools:        tools,
		factStore:    store,
		factObserver: observer,
	}
}

// Respond runs one prompt to completion. The reply is never empty on total
// failure: the fixed apology takes its place.
func (r *TextResponder) Respond(ctx context.Context, prompt string) string {
	ctx, span := tracer.Start(ctx, "respond to text exchange")
	defer span.End()

	var facts []llms.UserFact
	if r.factStore != nil {
		facts = r.factStore.Facts()
	}
	// Observation outlives the exchange; the reply never waits for it.
	go observeFact(context.WithoutCancel(ctx), r.factObserver, r.factStore, prompt)

	var reply string
	var generationErr error
	for attempt, disableTools := range []bool{false, false, true} {
		var opts []llms.GenerateOption
		if disableTools {
			opts = append(opts, llms.WithoutTools())
		}

		reply, generationErr = r.collect(ctx, prompt, facts, opts...)
		if generationErr == nil {
			break
		}
		span.RecordError(fmt.Errorf("generation attempt %d failed: %w", attempt+1, generationErr))
		if !errors.Is(generationErr, llms.ErrToolInvocation) {
			break
		}
	}

	if generationErr != nil {
		span.SetStatus(codes.Error, generationErr.Error())
		return apologySentence
	}
	return reply
}

// collect drains one generation attempt into a single reply string.
func (r *TextResponder) collect(ctx context.Context, prompt string, facts []llms.UserFact, opts ...llms.GenerateOption) (string, error) {
	var parts []string
	var pending strings.Builder

	// Buffered text is flushed before every structured call so markers keep
	// their position in the reply.
	flush := func() {
		invocations, cleaned := commands.Extract(pending.String())
		pending.Reset()
		for _, invocation := range invocations {
			status := commands.Execute(r.executor, invocation)
			logger.Info("text command executed", "action", invocation.Name, "status", status)
			parts = append(parts, toolMarker(invocation.Name))
			if commands.IsFailure(status) {
				parts = append(parts, status)
			}
		}
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}

	for item, err := range r.backend.Generate(ctx, prompt, facts, opts...) {
		if err != nil {
			return "", fmt.Errorf("backend generation failed: %w", err)
		}

		switch v := item.(type) {
		case llms.TextFragment:
			pending.WriteString(string(v))
		case llms.ToolCallItem:
			flush()
			call := llms.ToolCall(v)
			parts = append(parts, toolMarker(call.Name))

			tool, ok := llms.FindTool(r.tools, call.Name)
			if !ok {
				logger.Warn("backend requested unknown tool", "tool", call.Name)
				continue
			}
			status, err := tool.Execute(call.Arguments)
			if err != nil {
				logger.Warn("tool call failed", "tool", call.Name, "error", err)
				status = fmt.Sprintf("Не удалось выполнить %s", call.Name)
			}
			logger.Info("tool call executed", "tool", call.Name, "status", status)
			if commands.IsFailure(status) {
				parts = append(parts, status)
			}
		}
	}
	flush()

	return strings.Join(parts, " "), nil
}

package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dkurenkov/veles/core/commands"
	"github.com/dkurenkov/veles/core/llms"
	"github.com/dkurenkov/veles/core/protocol"
	"github.com/dkurenkov/veles/core/segmenter"
)

// apologySentence is spoken when every generation attempt failed.
const apologySentence = "Извини, произошла техническая ошибка. Попробуй еще раз."

// responsePipeline drives one utterance from finalized transcript to spoken
// response: backend generation, sentence segmentation, command extraction,
// synthesis and ordered emission. It is tagged with the generation that
// spawned it; once superseded or cancelled it performs no further observable
// side effects, though in-flight generation may finish quietly.
type responsePipeline struct {
	generation int64
	prompt     string
	facts      []llms.UserFact

	backend     llms.Backend
	synthesizer Synthesizer
	executor    commands.Executor
	tools       []llms.Tool
	emitter     *emitter

	ctxMu  sync.Mutex
	cancel context.CancelFunc

	cancelled atomic.Bool
	emitted   atomic.Bool
}

func newResponsePipeline(generation int64, prompt string, facts []llms.UserFact, backend llms.Backend, synthesizer Synthesizer, executor commands.Executor, tools []llms.Tool, emitter *emitter) *responsePipeline {
	return &responsePipeline{
		generation: generation,
		prompt:     prompt,
		facts:      facts,

		backend:     backend,
		synthesizer: synthesizer,
		executor:    executor,
		tools:       tools,
		emitter:     emitter,
	}
}

// Cancel revokes the pipeline's right to emit. Cooperative: checked before
// every observable side effect, so cancellation never interrupts a write
// midway but guarantees nothing further reaches the client.
func (p *responsePipeline) Cancel() {
	if p == nil || !p.cancelled.CompareAndSwap(false, true) {
		return
	}

	p.ctxMu.Lock()
	cancel := p.cancel
	p.ctxMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *responsePipeline) IsCancelled() bool {
	if p == nil {
		return false
	}
	return p.cancelled.Load()
}

// Run executes the retry ladder: tools, tools again, then no tools. Attempts
// stop once anything observable was emitted; a turn is never restarted in
// front of the user. When every attempt fails a fixed apology is spoken
// instead. The end-of-turn marker is emitted on every non-cancelled path.
func (p *responsePipeline) Run(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("response pipeline is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.ctxMu.Lock()
	p.cancel = cancel
	p.ctxMu.Unlock()
	if p.IsCancelled() {
		return nil
	}

	ctx, span := tracer.Start(ctx, "run response pipeline")
	defer span.End()
	span.SetAttributes(attribute.Int64("pipeline.generation", p.generation))

	var generationErr error
	for attempt, disableTools := range []bool{false, false, true} {
		var opts []llms.GenerateOption
		if disableTools {
			opts = append(opts, llms.WithoutTools())
		}

		generationErr = p.streamResponse(ctx, opts...)
		if generationErr == nil {
			break
		}
		if p.IsCancelled() || errors.Is(generationErr, errStaleGeneration) {
			return nil
		}

		span.RecordError(fmt.Errorf("generation attempt %d failed: %w", attempt+1, generationErr))
		if p.emitted.Load() {
			// The user already heard part of this turn; retrying would
			// replay it.
			break
		}
		if !errors.Is(generationErr, llms.ErrToolInvocation) {
			break
		}
	}

	if generationErr != nil {
		span.SetStatus(codes.Error, generationErr.Error())
		if !p.emitted.Load() {
			if err := p.speakSentence(ctx, apologySentence); err != nil && !errors.Is(err, errStaleGeneration) {
				span.RecordError(fmt.Errorf("failed to deliver apology: %w", err))
			}
		}
	}

	if p.IsCancelled() {
		return generationErr
	}
	if err := p.emitter.sendControl(p.generation, protocol.End()); err != nil && !errors.Is(err, errStaleGeneration) {
		span.RecordError(fmt.Errorf("failed to emit end of turn: %w", err))
	}

	return generationErr
}

// streamResponse runs a single generation attempt through the segmenter and
// out to the client.
func (p *responsePipeline) streamResponse(ctx context.Context, opts ...llms.GenerateOption) error {
	seg := segmenter.New()

	for item, err := range p.backend.Generate(ctx, p.prompt, p.facts, opts...) {
		if err != nil {
			return fmt.Errorf("backend generation failed: %w", err)
		}

		switch v := item.(type) {
		case llms.TextFragment:
			for _, sentence := range seg.Feed(string(v)) {
				if err := p.speakSentence(ctx, sentence); err != nil {
					return err
				}
			}
		case llms.ToolCallItem:
			if err := p.executeStructuredCall(ctx, llms.ToolCall(v)); err != nil {
				return err
			}
		}
	}

	if remainder := seg.Flush(); hasSpeakableContent(remainder) {
		if err := p.speakSentence(ctx, remainder); err != nil {
			return err
		}
	}

	return nil
}

// speakSentence extracts any text-embedded commands, executes them, then
// emits the cleaned text followed by its audio. Text always precedes its
// chunks and no chunk of a later sentence can overtake an earlier one; the
// pipeline is strictly sequential per sentence.
func (p *responsePipeline) speakSentence(ctx context.Context, sentence string) error {
	invocations, cleaned := commands.Extract(sentence)

	for _, invocation := range invocations {
		if err := p.performInvocation(invocation); err != nil {
			return err
		}
	}

	if cleaned == "" {
		return nil
	}
	if p.IsCancelled() {
		return nil
	}

	if err := p.emitter.sendControl(p.generation, protocol.AssistantText(cleaned)); err != nil {
		return err
	}
	p.emitted.Store(true)

	for chunk, err := range p.synthesizer.Synthesize(ctx, cleaned) {
		if err != nil {
			// Losing audio for one sentence is not worth losing the turn;
			// the text already reached the client.
			logger.Warn("synthesis failed mid-sentence", "error", err)
			return nil
		}
		if p.IsCancelled() {
			return nil
		}
		if err := p.emitter.sendAudio(p.generation, chunk); err != nil {
			return err
		}
	}

	return nil
}

// executeStructuredCall handles a backend-issued tool call: a short marker is
// emitted in place of audio, then the tool runs. Execution failures surface
// as an in-turn status line and never abort the rest of the turn.
func (p *responsePipeline) executeStructuredCall(ctx context.Context, call llms.ToolCall) error {
	if p.IsCancelled() {
		return nil
	}

	_, span := tracer.Start(ctx, "execute tool call")
	defer span.End()
	span.SetAttributes(attribute.String("tool_call.name", call.Name))

	if err := p.emitter.sendControl(p.generation, protocol.AssistantText(toolMarker(call.Name))); err != nil {
		return err
	}
	p.emitted.Store(true)

	tool, ok := llms.FindTool(p.tools, call.Name)
	if !ok {
		err := fmt.Errorf("backend requested unknown tool %q", call.Name)
		span.RecordError(err)
		return nil
	}

	status, err := tool.Execute(call.Arguments)
	if err != nil {
		span.RecordError(err)
		status = fmt.Sprintf("Не удалось выполнить %s", call.Name)
	}
	logger.Info("tool call executed", "tool", call.Name, "status", status)
	if commands.IsFailure(status) && !p.IsCancelled() {
		if err := p.emitter.sendControl(p.generation, protocol.AssistantText(status)); err != nil {
			return err
		}
	}

	return nil
}

// performInvocation handles a text-embedded command recovered by the
// extractor; same reporting contract as structured calls.
func (p *responsePipeline) performInvocation(invocation commands.Invocation) error {
	if p.IsCancelled() {
		return nil
	}

	if err := p.emitter.sendControl(p.generation, protocol.AssistantText(toolMarker(invocation.Name))); err != nil {
		return err
	}
	p.emitted.Store(true)

	status := commands.Execute(p.executor, invocation)
	logger.Info("text command executed", "action", invocation.Name, "status", status)
	if commands.IsFailure(status) && !p.IsCancelled() {
		if err := p.emitter.sendControl(p.generation, protocol.AssistantText(status)); err != nil {
			return err
		}
	}

	return nil
}

func toolMarker(name string) string {
	return fmt.Sprintf("[🛠️ %s]", name)
}

func hasSpeakableContent(text string) bool {
	return strings.ContainsFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
}

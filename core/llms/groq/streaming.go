package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dkurenkov/veles/core/llms"
	"github.com/dkurenkov/veles/internal/utils"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	completionsURL = "https://api.groq.com/openai/v1/chat/completions"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"

	defaultModel = "llama-3.3-70b-versatile"
)

var _ llms.Backend = (*Client)(nil)

type Client struct {
	apiKey string
	model  string
	tools  []llms.Tool

	// instructions is prepended to the generated system prompt; the fact
	// list and date context are appended at request time.
	instructions string

	url        string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithTools(tools ...llms.Tool) ClientOption {
	return func(c *Client) { c.tools = append(c.tools, tools...) }
}

func WithInstructions(instructions string) ClientOption {
	return func(c *Client) { c.instructions = instructions }
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey: apiKey,
		model:  defaultModel,
		url:    completionsURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Generate streams one completion. Text deltas are yielded as they arrive;
// tool calls are accumulated from their deltas and yielded once complete, in
// index order, after the content stream ends.
func (c *Client) Generate(ctx context.Context, prompt string, facts []llms.UserFact, opts ...llms.GenerateOption) iter.Seq2[llms.GenerationItem, error] {
	options := llms.GenerateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	return func(yield func(llms.GenerationItem, error) bool) {
		ctx, span := tracer.Start(ctx, "generate response stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", c.model))
		span.SetAttributes(attribute.Bool("request.tools_enabled", !options.DisableTools))

		var tools []Tool
		var toolChoice *string
		if !options.DisableTools && len(c.tools) > 0 {
			if err := copier.Copy(&tools, c.tools); err != nil {
				yield(nil, fmt.Errorf("failed to convert tool definitions: %w", err))
				return
			}
			toolChoice = utils.Ptr("auto")
		}

		reqBody := requestBody{
			Model: c.model,
			Messages: []message{
				{Role: messageRoleSystem, Content: c.systemPrompt(facts, !options.DisableTools)},
				{Role: messageRoleUser, Content: prompt},
			},
			Temperature: 0.1,
			TopP:        0.8,
			MaxTokens:   512,
			Stream:      true,
			Tools:       tools,
			ToolChoice:  toolChoice,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			yield(nil, fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			yield(nil, fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			span.RecordError(err)
			yield(nil, fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			errorBody, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				span.RecordError(readErr)
			}
			err := classifyStatusError(resp, string(errorBody), !options.DisableTools)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		pendingToolCalls := map[int]*toolCall{}
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			if len(chunk) == 0 {
				continue
			}
			if chunk == endMessage {
				break
			}

			var body streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &body); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}
			if len(body.Choices) == 0 {
				continue
			}
			delta := body.Choices[0].Delta

			for _, tcDelta := range delta.ToolCalls {
				pending, ok := pendingToolCalls[tcDelta.Index]
				if !ok || tcDelta.ID != "" {
					copied := tcDelta
					pendingToolCalls[tcDelta.Index] = &copied
					continue
				}
				pending.Function.Arguments += tcDelta.Function.Arguments
			}

			if delta.Content != "" {
				if !yield(llms.TextFragment(delta.Content), nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}

		indexes := make([]int, 0, len(pendingToolCalls))
		for index := range pendingToolCalls {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)

		var toolNames []string
		for _, index := range indexes {
			pending := pendingToolCalls[index]
			toolNames = append(toolNames, pending.Function.Name)
			if !yield(llms.ToolCallItem(llms.ToolCall{
				ID:        pending.ID,
				Name:      pending.Function.Name,
				Arguments: pending.Function.Arguments,
			}), nil) {
				return
			}
		}
		span.SetAttributes(attribute.StringSlice("response.tool_calls", toolNames))
	}
}

// classifyStatusError maps tool-shaped HTTP failures onto ErrToolInvocation
// so the pipeline's retry ladder can distinguish them from plain outages.
func classifyStatusError(resp *http.Response, errorBody string, toolsEnabled bool) error {
	lowered := strings.ToLower(errorBody)
	if toolsEnabled && (resp.StatusCode == http.StatusBadRequest ||
		strings.Contains(lowered, "tool call") ||
		strings.Contains(lowered, "failed to call a function")) {
		return fmt.Errorf("non-OK HTTP status %s: %s: %w", resp.Status, errorBody, llms.ErrToolInvocation)
	}
	return fmt.Errorf("non-OK HTTP status: %s", resp.Status)
}

func (c *Client) systemPrompt(facts []llms.UserFact, toolsEnabled bool) string {
	var b strings.Builder
	if c.instructions != "" {
		b.WriteString(c.instructions)
		b.WriteString("\n")
	} else {
		b.WriteString("Ты - голосовой ассистент. Твои сообщения читаются пользователю вслух: отвечай кратко, не более 1-2 предложений, простым текстом.\n")
	}
	b.WriteString("СЕГОДНЯШНЯЯ ДАТА: ")
	b.WriteString(time.Now().Format(time.DateOnly))
	b.WriteString("\n")

	if len(facts) > 0 {
		b.WriteString("ПАМЯТЬ О ПОЛЬЗОВАТЕЛЕ:\n")
		for _, fact := range facts {
			fmt.Fprintf(&b, "- [%s] %s\n", fact.CreatedAt, fact.Text)
		}
	}

	if toolsEnabled {
		b.WriteString("ЕСЛИ ИНСТРУМЕНТ НЕ СРАБОТАЛ, напиши команду текстом в начале ответа. ")
		b.WriteString("Формат: \"CMD_OPEN_URL: ссылка\" или \"CMD_RUN_APP: название\".\n")
	}

	return b.String()
}

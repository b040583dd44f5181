package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkurenkov/veles/core/llms"
	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
)

var _ llms.FactObserver = (*FactObserver)(nil)

// FactObserver extracts durable user facts from utterances with a separate,
// cheaper structured-output completion so the conversational stream never
// waits on it.
type FactObserver struct {
	apiKey string
	model  string

	url        string
	httpClient *http.Client
}

type FactObserverOption func(*FactObserver)

func WithFactObserverModel(model string) FactObserverOption {
	return func(o *FactObserver) { o.model = model }
}

func NewFactObserver(apiKey string, opts ...FactObserverOption) *FactObserver {
	observer := &FactObserver{
		apiKey:     apiKey,
		model:      "llama-3.1-8b-instant",
		url:        completionsURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(observer)
	}
	return observer
}

type observedFact struct {
	NewFact *string `json:"new_fact" jsonschema_description:"A single new durable fact about the user, or null if the message contains none"`
}

// ObserveFact returns a single new durable fact stated in the prompt, or an
// empty string when the prompt adds nothing over the known facts.
func (o *FactObserver) ObserveFact(ctx context.Context, prompt string, known []llms.UserFact) (string, error) {
	if o == nil {
		return "", nil
	}
	ctx, span := tracer.Start(ctx, "observe user fact")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", o.model))

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&observedFact{})

	var knownList strings.Builder
	for _, fact := range known {
		fmt.Fprintf(&knownList, "- %s\n", fact.Text)
	}

	reqBody := requestBody{
		Model: o.model,
		Messages: []message{
			{
				Role: messageRoleSystem,
				Content: "Ты извлекаешь долговременные факты о пользователе из его сообщений " +
					"(имя, предпочтения, работа, семья). Верни один новый факт или null, " +
					"если сообщение не содержит ничего нового.\nУЖЕ ИЗВЕСТНО:\n" + knownList.String(),
			},
			{Role: messageRoleUser, Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   128,
		Format: &ChatResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   "observed_fact",
				Schema: *schema,
				Strict: true,
			},
		},
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("non-OK HTTP status %s: %s", resp.Status, string(errorBody))
		span.RecordError(err)
		return "", err
	}

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error unmarshalling JSON: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}

	var fact observedFact
	if err := json.Unmarshal([]byte(body.Choices[0].Message.Content), &fact); err != nil {
		return "", fmt.Errorf("error unmarshalling structured content: %w", err)
	}
	if fact.NewFact == nil {
		return "", nil
	}
	return strings.TrimSpace(*fact.NewFact), nil
}

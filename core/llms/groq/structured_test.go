package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkurenkov/veles/core/llms"
)

func factServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req requestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Format == nil || req.Format.Type != "json_schema" {
			t.Error("expected a json_schema response format")
		}
		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
}

func TestObserveFactReturnsNewFact(t *testing.T) {
	server := factServer(t, `{"new_fact":"Пользователя зовут Дима"}`)
	defer server.Close()

	observer := NewFactObserver("test-key")
	observer.url = server.URL

	fact, err := observer.ObserveFact(context.Background(), "меня зовут Дима", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fact != "Пользователя зовут Дима" {
		t.Fatalf("unexpected fact: %q", fact)
	}
}

func TestObserveFactNullMeansNothingNew(t *testing.T) {
	server := factServer(t, `{"new_fact":null}`)
	defer server.Close()

	observer := NewFactObserver("test-key")
	observer.url = server.URL

	fact, err := observer.ObserveFact(context.Background(), "какая погода", []llms.UserFact{{Text: "Любит кофе"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fact != "" {
		t.Fatalf("expected empty fact, got %q", fact)
	}
}

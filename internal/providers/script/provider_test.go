package script

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelgen/internal/config"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Error("missing authorization header")
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"upstream"}`))
			return
		}
		payload := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

func newRequest(t *testing.T, params task.Params) *stage.Request {
	t.Helper()
	return &stage.Request{
		TaskID:  "task-1",
		Kind:    task.KindVideo,
		Params:  params,
		Inputs:  map[string]task.Artifact{},
		WorkDir: t.TempDir(),
	}
}

func TestGenerateFromModel(t *testing.T) {
	content := `{"paragraphs":["Coral reefs shelter a quarter of marine life.","They are dying fast."],"search_terms":["coral reef","ocean floor"]}`
	server := chatServer(t, http.StatusOK, content)
	defer server.Close()

	provider := NewProvider(config.Script{APIKey: "key", BaseURL: server.URL, Model: "test-model"})
	artifact, err := provider.Generate(context.Background(), newRequest(t, task.Params{Topic: "coral reefs"}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	doc, err := LoadDocument(string(artifact))
	if err != nil {
		t.Fatalf("load document: %v", err)
	}
	if len(doc.Paragraphs) != 2 {
		t.Fatalf("paragraphs = %d, want 2", len(doc.Paragraphs))
	}
	if len(doc.SearchTerms) != 2 {
		t.Fatalf("search terms = %v", doc.SearchTerms)
	}
	if doc.Topic != "coral reefs" {
		t.Fatalf("topic = %q", doc.Topic)
	}
}

func TestGenerateFromModelWithCodeFences(t *testing.T) {
	content := "```json\n{\"paragraphs\":[\"One.\"],\"search_terms\":[\"one\"]}\n```"
	server := chatServer(t, http.StatusOK, content)
	defer server.Close()

	provider := NewProvider(config.Script{APIKey: "key", BaseURL: server.URL})
	artifact, err := provider.Generate(context.Background(), newRequest(t, task.Params{Topic: "one"}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	doc, err := LoadDocument(string(artifact))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Paragraphs[0] != "One." {
		t.Fatalf("paragraphs = %v", doc.Paragraphs)
	}
}

func TestGenerateFromPrewrittenScript(t *testing.T) {
	provider := NewProvider(config.Script{})
	params := task.Params{
		Topic:  "volcanoes",
		Script: "Lava is molten rock.\n\nIt reshapes coastlines over centuries.",
	}

	artifact, err := provider.Generate(context.Background(), newRequest(t, params))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	doc, err := LoadDocument(string(artifact))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Paragraphs) != 2 {
		t.Fatalf("paragraphs = %v", doc.Paragraphs)
	}
	if len(doc.SearchTerms) == 0 {
		t.Fatal("expected fallback search terms from topic")
	}
	if doc.SearchTerms[0] != "volcanoes" {
		t.Fatalf("search terms = %v", doc.SearchTerms)
	}
}

func TestGenerateClassifiesServerErrorsTransient(t *testing.T) {
	server := chatServer(t, http.StatusServiceUnavailable, "")
	defer server.Close()

	provider := NewProvider(config.Script{APIKey: "key", BaseURL: server.URL})
	_, err := provider.Generate(context.Background(), newRequest(t, task.Params{Topic: "x"}))
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error for 503, got %v", err)
	}
}

func TestGenerateClassifiesClientErrorsFatal(t *testing.T) {
	server := chatServer(t, http.StatusUnauthorized, "")
	defer server.Close()

	provider := NewProvider(config.Script{APIKey: "bad", BaseURL: server.URL})
	_, err := provider.Generate(context.Background(), newRequest(t, task.Params{Topic: "x"}))
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsTransient(err) {
		t.Fatalf("401 should be fatal, got %v", err)
	}
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal marker, got %v", err)
	}
}

func TestGenerateWithoutKeyOrScriptFails(t *testing.T) {
	provider := NewProvider(config.Script{})
	_, err := provider.Generate(context.Background(), newRequest(t, task.Params{Topic: "x"}))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeModelJSONWithLeadingProse(t *testing.T) {
	var out modelScript
	input := "Here is the script you asked for:\n{\"paragraphs\":[\"A.\"],\"search_terms\":[\"a\"]}"
	if err := DecodeModelJSON(input, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Paragraphs) != 1 {
		t.Fatalf("paragraphs = %v", out.Paragraphs)
	}
}

func TestHealthCheck(t *testing.T) {
	if health := NewProvider(config.Script{}).HealthCheck(context.Background()); health.Ready {
		t.Fatal("provider without key should be unhealthy")
	}
	if health := NewProvider(config.Script{APIKey: "key"}).HealthCheck(context.Background()); !health.Ready {
		t.Fatal("provider with key should be healthy")
	}
}

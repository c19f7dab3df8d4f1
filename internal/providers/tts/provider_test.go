package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"reelgen/internal/config"
	"reelgen/internal/providers/script"
	"reelgen/internal/services"
	"reelgen/internal/stage"
	"reelgen/internal/task"
)

func writeScript(t *testing.T, dir string) task.Artifact {
	t.Helper()
	doc := script.Document{
		Topic:      "rivers",
		Paragraphs: []string{"Rivers carve valleys.", "They feed the sea."},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "script.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return task.Artifact(path)
}

func newRequest(t *testing.T) *stage.Request {
	t.Helper()
	dir := t.TempDir()
	return &stage.Request{
		TaskID:  "task-1",
		Kind:    task.KindVideo,
		Params:  task.Params{Voice: "en-US-1"},
		Inputs:  map[string]task.Artifact{"script": writeScript(t, dir)},
		WorkDir: dir,
	}
}

func TestGenerateWritesAudio(t *testing.T) {
	var gotVoice string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotVoice = req.Voice
		_, _ = w.Write([]byte("ID3-fake-mp3-bytes"))
	}))
	defer server.Close()

	provider := NewProvider(config.TTS{BaseURL: server.URL, DefaultVoice: "en-US-2"})
	artifact, err := provider.Generate(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if gotVoice != "en-US-1" {
		t.Fatalf("voice = %q, want task param voice", gotVoice)
	}
	audio, err := os.ReadFile(string(artifact))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(audio) == 0 {
		t.Fatal("empty audio artifact")
	}
}

func TestGenerateMissingScriptInput(t *testing.T) {
	provider := NewProvider(config.TTS{BaseURL: "http://localhost:1"})
	req := newRequest(t)
	req.Inputs = nil

	_, err := provider.Generate(context.Background(), req)
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestGenerateServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewProvider(config.TTS{BaseURL: server.URL})
	_, err := provider.Generate(context.Background(), newRequest(t))
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error for 502, got %v", err)
	}
}

func TestGenerateBadRequestIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown voice", http.StatusBadRequest)
	}))
	defer server.Close()

	provider := NewProvider(config.TTS{BaseURL: server.URL})
	_, err := provider.Generate(context.Background(), newRequest(t))
	if err == nil || services.IsTransient(err) {
		t.Fatalf("expected fatal error for 400, got %v", err)
	}
}

func TestGenerateEmptyAudioIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	provider := NewProvider(config.TTS{BaseURL: server.URL})
	_, err := provider.Generate(context.Background(), newRequest(t))
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error for empty payload, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	if NewProvider(config.TTS{}).HealthCheck(context.Background()).Ready {
		t.Fatal("unconfigured provider should be unhealthy")
	}
	if !NewProvider(config.TTS{BaseURL: "http://tts.local"}).HealthCheck(context.Background()).Ready {
		t.Fatal("configured provider should be healthy")
	}
}

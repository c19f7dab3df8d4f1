package material

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

func newRequest(t *testing.T, terms []string) *stage.Request {
	t.Helper()
	dir := t.TempDir()
	doc := script.Document{Topic: "oceans", Paragraphs: []string{"Text."}, SearchTerms: terms}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	scriptPath := filepath.Join(dir, "script.json")
	if err := os.WriteFile(scriptPath, raw, 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return &stage.Request{
		TaskID:  "task-1",
		Kind:    task.KindVideo,
		Inputs:  map[string]task.Artifact{"script": task.Artifact(scriptPath)},
		WorkDir: dir,
	}
}

func stockServer(t *testing.T, clips int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/videos/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Error("missing authorization header")
		}
		videos := make([]map[string]any, 0, clips)
		for i := 0; i < clips; i++ {
			videos = append(videos, map[string]any{
				"video_files": []map[string]any{
					{"link": fmt.Sprintf("%s/clips/%d-small.mp4", server.URL, i), "width": 640, "height": 360},
					{"link": fmt.Sprintf("%s/clips/%d.mp4", server.URL, i), "width": 1920, "height": 1080},
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"videos": videos})
	})
	mux.HandleFunc("/clips/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake-mp4-" + r.URL.Path))
	})
	server = httptest.NewServer(mux)
	return server
}

func TestGenerateDownloadsClips(t *testing.T) {
	server := stockServer(t, 3)
	defer server.Close()

	provider := NewProvider(config.Materials{
		APIKey:   "key",
		BaseURL:  server.URL + "/videos/search",
		MaxClips: 2,
	})

	artifact, err := provider.Generate(context.Background(), newRequest(t, []string{"coral reef"}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	entries, err := os.ReadDir(string(artifact))
	if err != nil {
		t.Fatalf("read materials dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("downloaded %d clips, want 2", len(entries))
	}
	if entries[0].Name() != "000.mp4" || entries[1].Name() != "001.mp4" {
		t.Fatalf("unexpected clip names: %v", entries)
	}
}

func TestGeneratePrefersHighestResolution(t *testing.T) {
	server := stockServer(t, 1)
	defer server.Close()

	provider := NewProvider(config.Materials{APIKey: "key", BaseURL: server.URL + "/videos/search", MaxClips: 1})
	artifact, err := provider.Generate(context.Background(), newRequest(t, []string{"reef"}))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(string(artifact), "000.mp4"))
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if string(raw) != "fake-mp4-/clips/0.mp4" {
		t.Fatalf("downloaded %q, want the 1080p link", raw)
	}
}

func TestGenerateNoResultsIsTransient(t *testing.T) {
	server := stockServer(t, 0)
	defer server.Close()

	provider := NewProvider(config.Materials{APIKey: "key", BaseURL: server.URL + "/videos/search"})
	_, err := provider.Generate(context.Background(), newRequest(t, []string{"nothing"}))
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error when no clips download, got %v", err)
	}
}

func TestGenerateWithoutKeyFails(t *testing.T) {
	provider := NewProvider(config.Materials{})
	_, err := provider.Generate(context.Background(), newRequest(t, []string{"x"}))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateFallsBackToTopic(t *testing.T) {
	server := stockServer(t, 1)
	defer server.Close()

	provider := NewProvider(config.Materials{APIKey: "key", BaseURL: server.URL + "/videos/search", MaxClips: 1})
	if _, err := provider.Generate(context.Background(), newRequest(t, nil)); err != nil {
		t.Fatalf("generate with topic fallback: %v", err)
	}
}

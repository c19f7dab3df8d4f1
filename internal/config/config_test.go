package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelgen/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Scheduler.Workers != 2 {
		t.Fatalf("default workers = %d, want 2", cfg.Scheduler.Workers)
	}
	if cfg.Pipeline.RetryAttempts != 3 {
		t.Fatalf("default retry attempts = %d, want 3", cfg.Pipeline.RetryAttempts)
	}
	if !cfg.SupportedResolution("1080x1920") {
		t.Fatal("expected 1080x1920 in default resolutions")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`data_dir = "` + filepath.Join(dir, "data") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		"",
		"[scheduler]",
		"workers = 7",
		"",
		"[tts]",
		`voices = ["en-US-9"]`,
		`default_voice = "en-US-9"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Scheduler.Workers != 7 {
		t.Fatalf("workers = %d, want 7", cfg.Scheduler.Workers)
	}
	if !cfg.SupportedVoice("en-US-9") {
		t.Fatal("expected configured voice to be supported")
	}
	if cfg.SupportedVoice("en-US-1") {
		t.Fatal("default voices should be replaced by override")
	}
}

func TestValidateRejectsBadResolution(t *testing.T) {
	cfg := config.Default()
	cfg.Assembly.Resolutions = []string{"vertical"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for malformed resolution")
	}
}

func TestValidateRejectsUnknownDefaultVoice(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.DefaultVoice = "nope"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown default voice")
	}
}

func TestParseResolution(t *testing.T) {
	w, h, err := config.ParseResolution("1080x1920")
	if err != nil || w != 1080 || h != 1920 {
		t.Fatalf("ParseResolution = %d %d %v", w, h, err)
	}
	if _, _, err := config.ParseResolution("0x100"); err == nil {
		t.Fatal("expected error for zero width")
	}
}

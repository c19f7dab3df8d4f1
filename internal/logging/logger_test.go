package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"reelgen/internal/services"
)

func TestConsoleHandlerRendersComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.With(String(FieldComponent, "scheduler")).Info("worker started", Int("worker", 2))

	line := buf.String()
	if !strings.Contains(line, "INFO scheduler: worker started") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "worker=2") {
		t.Fatalf("missing attribute: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Error("stage failed", String("detail", "rate limit hit"))

	if !strings.Contains(buf.String(), `detail="rate limit hit"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsTaskFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	ctx := services.WithTaskID(context.Background(), "task-123")
	ctx = services.WithStage(ctx, "audio")
	WithContext(ctx, logger).Info("stage started")

	line := buf.String()
	if !strings.Contains(line, "task_id=task-123") || !strings.Contains(line, "stage=audio") {
		t.Fatalf("context fields missing: %q", line)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if lvl := parseLevel("bogus"); lvl != slog.LevelInfo {
		t.Fatalf("parseLevel(bogus) = %v", lvl)
	}
	if lvl := parseLevel("debug"); lvl != slog.LevelDebug {
		t.Fatalf("parseLevel(debug) = %v", lvl)
	}
}

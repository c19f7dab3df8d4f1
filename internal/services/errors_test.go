package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"reelgen/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "tts", "synthesize", "upstream unavailable", base)

	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
}

func TestWrapDefaultsToFatal(t *testing.T) {
	err := services.Wrap(nil, "assemble", "mux", "ffmpeg exited 1", nil)
	if !errors.Is(err, services.ErrFatal) {
		t.Fatalf("expected fatal default, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient marker", services.Wrap(services.ErrTransient, "script", "complete", "429", nil), true},
		{"timeout marker", services.Wrap(services.ErrTimeout, "tts", "synthesize", "deadline", nil), true},
		{"deadline exceeded", fmt.Errorf("attempt: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, false},
		{"fatal marker", services.Wrap(services.ErrFatal, "script", "complete", "bad key", nil), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := services.IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

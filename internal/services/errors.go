package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, rate limits,
	// upstream 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrFatal marks failures that no retry can recover.
	ErrFatal = errors.New("fatal failure")
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups of unknown task ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks operations illegal for the task's current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict marks a compare-and-update whose status expectation no
	// longer holds. Internal to the store and executor.
	ErrConflict = errors.New("status conflict")
	// ErrTimeout marks stage attempts that exceeded their time budget.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrFatal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether a stage error should be retried. Context
// deadline expiry counts as transient per the stage timeout contract;
// explicit cancellation never does.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

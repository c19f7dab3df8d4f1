// Package logging wraps log/slog with the handlers and attribute conventions
// used across the daemon: a single-line console handler, a JSON handler, and
// context-derived task/stage fields.
package logging

// Package pipeline defines the stage graphs for each task kind and the
// executor that drives a task through them: sequential stage groups with
// intra-group concurrency, transient-only retry with exponential backoff,
// per-attempt timeouts, and cooperative cancellation at stage boundaries.
package pipeline

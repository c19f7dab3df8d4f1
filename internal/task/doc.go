// Package task defines the task record model and its SQLite-backed store.
// The store is the single source of truth for task state; all status
// transitions performed while a task is in flight go through
// CompareAndUpdate so that concurrent writers fail loudly instead of
// clobbering each other.
package task

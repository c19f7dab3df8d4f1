// Package services holds the error taxonomy and context plumbing shared by
// stage providers and the pipeline executor. Stage failures are tagged with
// sentinel markers (transient, fatal, validation, ...) so the executor can
// classify them without knowing provider internals.
package services

// Package apperr holds the sentinel errors shared across the service layers.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	// ErrCorruptHistory wraps a failure to replay a document's embedded
	// version patches.
	ErrCorruptHistory = errors.New("corrupt version history")
)

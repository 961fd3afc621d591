// Package core provides the main ToyMem client: chunked ingestion,
// unified similarity search across both memory pools, the conversation
// log and message-to-chunk citations.
package core

import (
	"errors"
	"fmt"

	"github.com/toybox-labs/toymem-go/pkg/store"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates that embedding generation failed
	// after all retry attempts.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrStoreUnavailable indicates that every memory store a search
	// addressed failed, leaving no results to return.
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrNotFound indicates that a requested record was not found. It is
	// the store sentinel re-exported, so errors.Is matches through either
	// package.
	ErrNotFound = store.ErrNotFound
)

// EngineError wraps errors with operation context.
//
// It records which engine operation failed, making error messages more
// informative for debugging.
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "toymem: <Op>: <Err>"
func (e *EngineError) Error() string {
	return fmt.Sprintf("toymem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewEngineError("Search", err)
//	}
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Op:  op,
		Err: err,
	}
}

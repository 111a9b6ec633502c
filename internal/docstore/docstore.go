// Package docstore persists named JSON documents and updates them with
// linearizable read-modify-write semantics.
//
// Every backend guarantees that two concurrent Update calls on the same
// document never observe the same pre-state and both commit. A failed
// Update leaves the stored document unchanged.
package docstore

import (
	"bytes"
	"context"
	"errors"
)

// Mutator receives the current document (nil when absent) and returns its
// replacement. Returning write=false leaves the stored document untouched.
// A Mutator may run more than once when a backend retries an optimistic
// transaction, so it must not have side effects.
type Mutator func(current []byte) (next []byte, write bool, err error)

// Backend stores whole documents by name.
type Backend interface {
	// Load returns the committed document, or nil when none exists.
	Load(ctx context.Context, name string) ([]byte, error)
	// Update applies fn atomically to the named document.
	Update(ctx context.Context, name string, fn Mutator) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Kind names the backend for logs and health output.
	Kind() string
}

// ErrContention is returned when an optimistic backend could not commit
// within its retry budget. The caller may retry.
var ErrContention = errors.New("docstore: too much contention")

// normalize treats SQL defaults and blank files as an absent document.
func normalize(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return body
}

func ensureNotCanceled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

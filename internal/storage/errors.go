// Package storage holds the sentinel errors shared by every store adapter.
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists for the requested key.
	// Terminal for that call; callers surface it, they do not retry it.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable marks an I/O failure of the backing medium. Recoverable:
	// callers retry or defer, they never drop the user's intent over it.
	ErrUnavailable = errors.New("store unavailable")
)

// Unavailable wraps a driver error so that errors.Is(err, ErrUnavailable)
// holds while the original cause stays in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

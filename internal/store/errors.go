package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key, or the bucket itself, does not exist.
// Callers use it as a continuation signal during metadata probing, so only a
// literal not-found store response may map to it.
var ErrNotFound = errors.New("object not found")

// RejectedError is a client-side (4xx) store rejection other than not-found,
// e.g. access denied. It aborts multi-step probing rather than continuing.
type RejectedError struct {
	Op         string
	Key        string
	Code       string
	StatusCode int
	Err        error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("store rejected %s %q: %s (status %d)", e.Op, e.Key, e.Code, e.StatusCode)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// BackendError is a server-side (5xx) or transport failure.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("store backend error on %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsNotFound reports whether err denotes a missing object.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

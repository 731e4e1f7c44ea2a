// Package storage holds what the persistence adapters share.
package storage

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error wraps an underlying persistence failure. Handlers log it and answer
// with a generic 5xx so driver details never reach the client.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns nil if err is nil, err itself if it already is a *Error, and a
// new *Error for op otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsError reports whether err is, or wraps, a storage failure.
func IsError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

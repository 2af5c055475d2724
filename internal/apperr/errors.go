// Package apperr defines the error kinds shared by the index engine and its callers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConnection = errors.New("connection error")
	ErrSchema     = errors.New("schema error")
	ErrWrite      = errors.New("write error")
	ErrQuery      = errors.New("query error")
	ErrInvalid    = errors.New("invalid argument")
)

// Error carries the failing operation and the path it concerned.
// It matches both its Kind and the underlying cause with errors.Is.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns nil when err is nil, otherwise an *Error of the given kind.
func Wrap(kind error, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

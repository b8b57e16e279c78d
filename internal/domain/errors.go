package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is(err, ErrConflict) etc. to classify.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrCapacity           = errors.New("no seats available")
	ErrExternalDependency = errors.New("external dependency failed")
)

type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(msg string) error { return &Error{Kind: ErrValidation, Msg: msg} }

func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }

func Conflict(msg string) error { return &Error{Kind: ErrConflict, Msg: msg} }

func Capacity(msg string) error { return &Error{Kind: ErrCapacity, Msg: msg} }

func External(msg string, err error) error {
	return &Error{Kind: ErrExternalDependency, Msg: msg, Err: err}
}

// Message returns the caller-facing text of err without the wrapped cause.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return err.Error()
}

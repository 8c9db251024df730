package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrStaleWrite   = errors.New("resource was modified concurrently")
)

var (
	ErrCancelWindowElapsed = Errorf(ErrConflict, "order can only be canceled within one minute")
	ErrProductsNotFound    = Errorf(ErrNotFound, "one or more products not found")
)

// PublicMessage strips the sentinel prefix so clients see "order not found"
// rather than "not found: order not found".
func PublicMessage(err error) string {
	var pe *publicError
	if errors.As(err, &pe) {
		return pe.msg
	}
	return err.Error()
}

type publicError struct {
	kind error
	msg  string
}

func (e *publicError) Error() string { return e.msg }
func (e *publicError) Unwrap() error { return e.kind }

// Errorf builds an error of the given kind whose message is safe to show to clients.
func Errorf(kind error, format string, args ...any) error {
	return &publicError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

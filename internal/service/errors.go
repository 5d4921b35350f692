package service

import (
	"errors"

	"hotelhub/internal/domain"
)

// Error kinds. Every error returned by the services matches exactly one of
// these with errors.Is.
var (
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden access")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrStorage          = errors.New("storage failure")
)

// Error pairs an error kind with a message that is safe to show to clients.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PublicMessage returns the client-facing text of err.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func invalidArgument(msg string) error {
	return &Error{Kind: ErrInvalidArgument, Message: msg}
}

func notFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

// storeErr classifies an error coming back from a store call.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrInvalidID) {
		return &Error{Kind: ErrInvalidArgument, Message: "invalid id", Err: err}
	}
	return &Error{Kind: ErrStorage, Message: op + " failed", Err: err}
}

package ai

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures for callers that map them to responses.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindCredential      Kind = "credential"
	KindUpstream        Kind = "upstream"
	KindRateLimited     Kind = "rate_limited"
	KindInvalidResponse Kind = "invalid_response"
	KindPersistence     Kind = "persistence"
)

var (
	ErrInvalidInput      = errors.New("invalid vision request")
	ErrNoCredential      = errors.New("vision api key is not configured")
	ErrInvalidCredential = errors.New("vision api key is invalid")
	ErrRateLimited       = errors.New("vision api rate limit exceeded")
	ErrUpstream          = errors.New("vision api error")
	ErrInvalidResponse   = errors.New("invalid response from vision api")
	ErrPersistence       = errors.New("failed to persist appraisal")
)

// Error is the tagged error returned by every vision client.
// Message is safe to show to users; for upstream failures it is the
// provider's own error message.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, status int, sentinel error, message string) *Error {
	if message == "" && sentinel != nil {
		message = sentinel.Error()
	}
	return &Error{Kind: kind, Status: status, Message: message, Err: sentinel}
}

// InvalidInput builds an input validation error.
func InvalidInput(message string) *Error {
	return newError(KindInvalidInput, 0, ErrInvalidInput, message)
}

// Persistence wraps a storage failure.
func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Message: ErrPersistence.Error(), Err: errors.Join(ErrPersistence, err)}
}

// KindOf reports the kind of err, or "" when err is not a tagged error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the user-facing message of a tagged error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

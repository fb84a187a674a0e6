package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Strob0t/ReleaseForge/internal/domain"
)

// Class is the closed set of failure categories a save can end in.
type Class string

const (
	ClassValidation  Class = "validation"
	ClassConflict    Class = "conflict"
	ClassRateLimit   Class = "rate_limit"
	ClassServerError Class = "server_error"
	ClassNetwork     Class = "network"
	ClassUnknown     Class = "unknown"
)

// ErrNetwork marks a request that never got a response.
var ErrNetwork = errors.New("network error: no response")

// StatusError is a non-2xx answer from a remote store. It unwraps to the
// domain sentinel matching its status code, so callers can use errors.Is.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote store returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote store returned %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return domain.ErrConflict
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	return nil
}

// Failure is the user-facing outcome of a failed operation. Message is safe to
// show; Err keeps the technical cause for logs.
type Failure struct {
	Class     Class
	Message   string
	Retryable bool
	Err       error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

var messages = map[Class]string{
	ClassConflict:    "Someone else changed this plan at the same time. Reload and try again.",
	ClassRateLimit:   "Too many requests right now. Please wait a moment and try again.",
	ClassServerError: "The server could not save your changes. Please try again later.",
	ClassNetwork:     "Could not reach the server. Check your connection and try again.",
	ClassUnknown:     "Something went wrong while saving. Please try again.",
}

// MessageFor returns the pre-written user message for a class. Validation has
// no fixed message.
func MessageFor(c Class) string {
	return messages[c]
}

// Classify maps any error from a store write onto the failure taxonomy. It is
// pure: it neither logs nor retries. A nil error yields nil.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	class := classOf(err)
	f = &Failure{
		Class:     class,
		Message:   messages[class],
		Retryable: class == ClassConflict || class == ClassRateLimit || class == ClassNetwork,
		Err:       err,
	}
	if class == ClassValidation {
		f.Message = validationMessage(err)
	}
	return f
}

func classOf(err error) Class {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return ClassValidation
	case errors.Is(err, domain.ErrConflict):
		return ClassConflict
	case errors.Is(err, domain.ErrRateLimited):
		return ClassRateLimit
	case errors.Is(err, ErrCircuitOpen):
		return ClassServerError
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return ClassNetwork
	}

	var se *StatusError
	if errors.As(err, &se) && se.Status >= 500 {
		return ClassServerError
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ClassNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassNetwork
	}
	return ClassUnknown
}

// validationMessage extracts the human part of a validation error, dropping
// wrapping prefixes added on the way up.
func validationMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	msg := err.Error()
	prefix := domain.ErrValidation.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

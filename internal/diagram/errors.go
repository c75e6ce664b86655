package diagram

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide on retries and on what to
// show the user.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindTransport
	KindRender
	KindTimeout
	KindEnvironment
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindRender:
		return "render"
	case KindTimeout:
		return "timeout"
	case KindEnvironment:
		return "environment"
	default:
		return "unknown"
	}
}

// Retryable reports whether an operation that failed with this kind may be
// attempted again.
func (k Kind) Retryable() bool {
	return k == KindTransport || k == KindTimeout
}

const tryAgainMessage = "the diagram service is temporarily unavailable, please try again"

// Error is the error type returned by every encoder and by the dispatcher.
type Error struct {
	Kind    Kind
	Backend string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	prefix := e.Kind.String() + " error"
	if e.Backend != "" {
		prefix = e.Backend + ": " + prefix
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Public returns the message that may be shown to an end user. Validation and
// render failures carry their diagnostic, everything else is generic.
func (e *Error) Public() string {
	switch e.Kind {
	case KindValidation, KindRender:
		if e.Msg != "" {
			return e.Msg
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.String() + " error"
	default:
		return tryAgainMessage
	}
}

func newError(kind Kind, backend, msg string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Msg: msg, Err: err}
}

// Validation reports bad or missing input.
func Validation(msg string) *Error {
	return newError(KindValidation, "", msg, nil)
}

// Transport reports a failure to reach a backend.
func Transport(backend string, err error) *Error {
	return newError(KindTransport, backend, "", err)
}

// Render reports that the backend was reached but rejected the diagram.
func Render(backend, diagnostic string) *Error {
	return newError(KindRender, backend, diagnostic, nil)
}

// Timeout reports an exceeded time budget.
func Timeout(backend string, err error) *Error {
	return newError(KindTimeout, backend, "", err)
}

// Environment reports a missing local resource such as the browser runtime.
func Environment(backend string, err error) *Error {
	return newError(KindEnvironment, backend, "", err)
}

// KindOf classifies err. Context deadlines count as timeouts even when they
// were not wrapped in an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// PublicMessage returns the user-visible text for any error.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Public()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return tryAgainMessage
	}
	return "internal error"
}

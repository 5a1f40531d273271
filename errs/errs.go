// Package errs provides structured error types and helpers for paygate services.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category within the webhook pipeline.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeAuth indicates a signature or authentication failure on an inbound delivery.
	CodeAuth Code = "auth"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a concurrent mutation conflict.
	CodeConflict Code = "conflict"
	// CodeStore indicates a claim ledger read or write failure.
	CodeStore Code = "store_error"
	// CodeHandler indicates a business handler failure.
	CodeHandler Code = "handler_error"
	// CodeUnavailable indicates the service is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
)

// E captures structured error information produced across the paygate stack.
type E struct {
	Scope   string
	Code    Code
	HTTP    int
	Message string
	EventID string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the named scope and error code.
func New(scope string, code Code, opts ...Option) *E {
	e := &E{
		Scope:   strings.TrimSpace(scope),
		Code:    code,
		HTTP:    0,
		Message: "",
		EventID: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithEventID records the webhook event identifier the error relates to.
func WithEventID(id string) Option {
	trimmed := strings.TrimSpace(id)
	return func(e *E) {
		e.EventID = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	scope := strings.TrimSpace(e.Scope)
	if scope == "" {
		scope = "unknown"
	}
	parts = append(parts, "scope="+scope)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.EventID != "" {
		parts = append(parts, "event="+e.EventID)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// HasCode reports whether err carries the provided error code.
func HasCode(err error, code Code) bool {
	var envelope *E
	if errors.As(err, &envelope) {
		return envelope.Code == code
	}
	return false
}

// HTTPStatus returns the HTTP status recorded on err, or fallback when err is
// not an envelope or carries none.
func HTTPStatus(err error, fallback int) int {
	var envelope *E
	if errors.As(err, &envelope) && envelope.HTTP > 0 {
		return envelope.HTTP
	}
	return fallback
}

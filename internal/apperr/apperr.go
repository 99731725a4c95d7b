// Package apperr defines the typed error kinds shared by the store,
// provider adapter, AI adapter and HTTP layer, so a handler can map any
// collaborator's failure to a status code with a single switch instead
// of inspecting driver-specific error values.
package apperr

import "errors"

// Kind is one of the error categories the HTTP layer maps to status
// codes.
type Kind string

const (
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	Unauthorized        Kind = "unauthorized"
	Validation          Kind = "validation"
	ProviderTransient   Kind = "provider_transient"
	ProviderStaleCursor Kind = "provider_stale_cursor"
	ProviderFatal       Kind = "provider_fatal"
	IntegrityFailure    Kind = "integrity_failure"
	AiFailure           Kind = "ai_failure"
)

// Error wraps an underlying cause with one of the Kinds above. Callers
// compare with errors.Is against the sentinel value matching their
// Kind.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apperr.NotFound) work directly against a Kind
// sentinel, in addition to matching another *Error with the same Kind.
func (e *Error) Is(target error) bool {
	if k, ok := target.(sentinelKind); ok {
		return e.Kind == Kind(k)
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

type sentinelKind Kind

func (s sentinelKind) Error() string { return string(s) }

// Sentinel values usable directly with errors.Is(err, apperr.ErrNotFound).
var (
	ErrNotFound            error = sentinelKind(NotFound)
	ErrConflict            error = sentinelKind(Conflict)
	ErrUnauthorized        error = sentinelKind(Unauthorized)
	ErrValidation          error = sentinelKind(Validation)
	ErrProviderTransient   error = sentinelKind(ProviderTransient)
	ErrProviderStaleCursor error = sentinelKind(ProviderStaleCursor)
	ErrProviderFatal       error = sentinelKind(ProviderFatal)
	ErrIntegrityFailure    error = sentinelKind(IntegrityFailure)
	ErrAiFailure           error = sentinelKind(AiFailure)
)

// New builds an *Error of kind with msg, optionally wrapping cause.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Of reports the Kind of err if it (or something it wraps) is an *Error,
// and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

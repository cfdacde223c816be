// Package apperr defines the error taxonomy used across the ingestion,
// retrieval, and session subsystems: a fixed set of kinds, each with a
// severity, a retry class, and an HTTP surface.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error classes from the error handling design.
type Kind string

const (
	NotFound         Kind = "not_found"
	InvalidRequest   Kind = "invalid_request"
	Validation       Kind = "validation"
	Unauthorized     Kind = "unauthorized"
	Authentication   Kind = "authentication"
	Conflict         Kind = "conflict"
	QuotaExceeded    Kind = "quota_exceeded"
	Database         Kind = "database"
	VectorStore      Kind = "vector_store"
	SearchEngine     Kind = "search_engine"
	LlmService       Kind = "llm_service"
	EmbeddingService Kind = "embedding_service"
	ServiceUnavail   Kind = "service_unavailable"
	Network          Kind = "network"
	Timeout          Kind = "timeout"
	Configuration    Kind = "configuration"
	Serialization    Kind = "serialization"
	Concurrency      Kind = "concurrency"
)

// Severity classifies how urgently an error deserves operator attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityByKind = map[Kind]Severity{
	NotFound:         SeverityLow,
	InvalidRequest:   SeverityLow,
	Validation:       SeverityLow,
	Unauthorized:     SeverityMedium,
	Authentication:   SeverityMedium,
	Conflict:         SeverityMedium,
	QuotaExceeded:    SeverityMedium,
	Database:         SeverityHigh,
	VectorStore:      SeverityHigh,
	SearchEngine:     SeverityHigh,
	LlmService:       SeverityMedium,
	EmbeddingService: SeverityMedium,
	ServiceUnavail:   SeverityMedium,
	Network:          SeverityMedium,
	Timeout:          SeverityMedium,
	Configuration:    SeverityCritical,
	Serialization:    SeverityHigh,
	Concurrency:      SeverityHigh,
}

// httpStatusByKind is the default HTTP surface for a kind; callers rendering
// the query endpoints deliberately bypass this (see 4.D/4.G: backend errors
// on /query become a 200 with an "error: ..." answer instead).
var httpStatusByKind = map[Kind]int{
	NotFound:         404,
	InvalidRequest:   400,
	Validation:       400,
	Unauthorized:     401,
	Authentication:   403,
	Conflict:         409,
	QuotaExceeded:    429,
	Database:         500,
	VectorStore:      500,
	SearchEngine:     500,
	LlmService:       500,
	EmbeddingService: 500,
	ServiceUnavail:   503,
	Network:          500,
	Timeout:          408,
	Configuration:    500,
	Serialization:    500,
	Concurrency:      500,
}

// Error is the structured error value carried through the system. Message
// is a generic, user-visible string; Detail (not serialized to clients) is
// attached to the structured log record keyed by ErrorID.
type Error struct {
	Kind       Kind
	Message    string
	Detail     error
	RetryAfter string // non-empty => callers may retry (EmbeddingService/ServiceUnavailable)
	ErrorID    string
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Detail }

// Severity returns the configured severity for e's kind.
func (e *Error) Severity() Severity { return severityByKind[e.Kind] }

// HTTPStatus returns the default HTTP status for e's kind. Handlers on the
// query/query_stream paths intentionally do not use this — see
// httpStatusByKind and spec §7's propagation policy.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatusByKind[e.Kind]; ok {
		return s
	}
	return 500
}

// Retryable reports whether a caller may retry e, per kind and RetryAfter.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case Network, Timeout:
		return true
	case LlmService, EmbeddingService, ServiceUnavail:
		return e.RetryAfter != ""
	default:
		return false
	}
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Detail: cause}
}

// WithRetryAfter sets RetryAfter on e and returns it, for chaining at the
// call site (e.g. EmbeddingService{retry_after}).
func (e *Error) WithRetryAfter(d string) *Error {
	e.RetryAfter = d
	return e
}

// WithErrorID sets the correlation id used to tie the user-visible generic
// message back to a detailed structured log record.
func (e *Error) WithErrorID(id string) *Error {
	e.ErrorID = id
	return e
}

// As is a thin convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

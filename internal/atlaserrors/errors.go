// Package atlaserrors defines the closed error taxonomy shared by every
// export subsystem. Every subsystem returns an *Error so the coordinator
// can classify failures into summary entries without string matching.
package atlaserrors

import "fmt"

// Kind is the closed set of error categories a pipeline stage can raise.
type Kind string

const (
	Configuration         Kind = "configuration"
	SourceAuth            Kind = "source_auth"
	SourceConnection      Kind = "source_connection"
	SourceNotFound        Kind = "source_not_found"
	SourceInvalidResponse Kind = "source_invalid_response"
	SourceQueryFailed     Kind = "source_query_failed"
	SourceRateLimited     Kind = "source_rate_limited"
	SourceTimeout         Kind = "source_timeout"
	TargetConnection      Kind = "target_connection"
	TargetAuth            Kind = "target_auth"
	TargetNotFound        Kind = "target_not_found"
	TargetInsertFailed    Kind = "target_insert_failed"
	TargetQueryFailed     Kind = "target_query_failed"
	TargetThrottled       Kind = "target_throttled"
	TargetConflict        Kind = "target_conflict"
	Transformation        Kind = "transformation"
	Anonymisation         Kind = "anonymisation"
	State                 Kind = "state"
	Serialization         Kind = "serialization"
	IO                    Kind = "io"
	Validation            Kind = "validation"
	Other                 Kind = "other"
)

// retryable is the fixed policy table from §4.1: transient network and
// throttling conditions are worth retrying, auth/validation/conflict are not.
var retryable = map[Kind]bool{
	SourceConnection:  true,
	SourceRateLimited: true,
	SourceTimeout:     true,
	TargetConnection:  true,
	TargetThrottled:   true,
}

// Error is the concrete error type returned across the export pipeline.
type Error struct {
	Kind    Kind
	Message string
	Context string
	Cause   error
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind that chains an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithContext attaches free-form context (e.g. "template_id=x, subject_id=y").
func (e *Error) WithContext(context string) *Error {
	e.Context = context
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this error's kind is worth retrying with backoff.
func (e *Error) Retryable() bool {
	return retryable[e.Kind]
}

// KindOf extracts the Kind from any error, defaulting to Other for errors
// that did not originate from this package.
func KindOf(err error) Kind {
	var ae *Error
	if ok := asError(err, &ae); ok {
		return ae.Kind
	}
	return Other
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

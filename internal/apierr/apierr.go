// Package apierr defines the stable error taxonomy shared by the Auth
// Gateway, Rate Limiter, Admission Funnel and Selection Dispatcher
// (spec.md §7). Every component returns a *Error wrapping one of the
// Kind constants so the Funnel can map it to an HTTP status and the
// Dispatcher can record it as a task's failure_kind without either side
// needing to know the other's internal error types.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable, cross-interface error kinds from spec.md §7.
type Kind string

const (
	// Authentication
	KindBadCredentials Kind = "BadCredentials"
	KindBadTOTP        Kind = "BadTOTP"
	KindTokenInvalid   Kind = "TokenInvalid"
	KindTokenExpired   Kind = "TokenExpired"
	KindRevoked        Kind = "Revoked"
	KindInactive       Kind = "Inactive"
	KindCodeInvalid    Kind = "CodeInvalid"
	KindUsernameTaken  Kind = "UsernameTaken"

	// Admission
	KindRateLimited    Kind = "RateLimited"
	KindUnauthorized   Kind = "Unauthorized"
	KindCourseNotFound Kind = "CourseNotFound"

	// Task
	KindAlreadyEnrolled    Kind = "AlreadyEnrolled"
	KindNotEnrolled        Kind = "NotEnrolled"
	KindCourseFull         Kind = "CourseFull"
	KindTimeConflict       Kind = "TimeConflict"
	KindTagIneligible      Kind = "TagIneligible"
	KindQueueFull          Kind = "QueueFull"
	KindTransientExhausted Kind = "TransientExhausted"
	KindShuttingDown       Kind = "ShuttingDown"
	KindCancelled          Kind = "Cancelled"

	// Internal
	KindStorageUnavailable Kind = "StorageUnavailable"
	KindIntegrityViolation Kind = "IntegrityViolation"
)

// retryable reports whether a task failing with this kind should be
// re-enqueued by the Dispatcher (spec.md §7: "Only StorageUnavailable and
// lock-acquire timeout are retried").
var retryable = map[Kind]bool{
	KindStorageUnavailable: true,
}

// Retryable reports whether the Dispatcher should re-enqueue a task that
// failed with this kind, subject to the attempt-count bound.
func (k Kind) Retryable() bool {
	return retryable[k]
}

// Error is the typed error every component returns. message is a
// user-safe string; it never contains a stack trace or internal
// identifier (spec.md §7).
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an underlying error for internal logging while
// keeping the Error() string user-safe.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is(err, apierr.New(KindX, "")) match purely on Kind,
// matching the sentinel-error ergonomics the teacher's per-package
// ErrXxx values give callers, generalized to one taxonomy.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// As extracts the Kind of any error in the chain, defaulting to
// KindIntegrityViolation (treated as fatal/logged) for anything that
// isn't one of ours — never surfacing internals to the client.
func As(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindIntegrityViolation
}

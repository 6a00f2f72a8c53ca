package dispatcher

import "errors"

// Sentinel errors matching the apierr taxonomy's Dispatcher-facing
// kinds (spec.md §7).
var (
	ErrQueueFull         = errors.New("queue full")
	ErrShuttingDown      = errors.New("dispatcher is shutting down")
	ErrAlreadyEnrolled   = errors.New("already enrolled")
	ErrNotEnrolled       = errors.New("not enrolled")
	ErrCourseFull        = errors.New("course full")
	ErrTimeConflict      = errors.New("time conflict")
	ErrTagIneligible     = errors.New("tag ineligible")
	ErrCourseNotFound    = errors.New("course not found")
	ErrTransientExhausted = errors.New("transient failure exhausted retries")
)

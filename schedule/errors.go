/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All error types in one place. The taxonomy mirrors how callers must react:
  validation errors reject the operation with a user-facing message, not-found
  hides cross-tenant existence, conflicts are retryable, and per-item batch
  failures are recorded rather than raised.

USAGE:
  if schedule.IsNotFound(err) { ... 404 ... }
  if schedule.IsValidation(err) { ... 400 ... }
  if schedule.IsConflict(err) { ... 409 ... }
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScheduleNotFound covers both a genuinely missing schedule and one
	// owned by another account, so existence never leaks across tenants.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrScheduleClaimed is returned when another worker currently holds the
	// schedule's claim. Retryable.
	ErrScheduleClaimed = errors.New("schedule is being processed by another worker")

	// ErrScheduleNotStarted is returned by runNow before startAt.
	ErrScheduleNotStarted = errors.New("schedule has not started yet")

	// ErrWindowExpired is returned by resume when endAt is already past.
	ErrWindowExpired = errors.New("schedule end date has already passed")

	// ErrNothingToResume is returned by resume when no future occurrence
	// exists to resume into.
	ErrNothingToResume = errors.New("no future occurrence to resume into")

	// ErrInvalidTransition is the base error for illegal status changes.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrIncompleteSchedule is the base error for schedules missing owner ids.
	ErrIncompleteSchedule = errors.New("schedule is missing required owner fields")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError details an illegal status transition.
type TransitionError struct {
	ScheduleID string
	From       Status
	Attempted  string // "pause", "resume", "runNow"
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s schedule %s in status %s", e.Attempted, e.ScheduleID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IncompleteScheduleError names the missing owner field.
type IncompleteScheduleError struct {
	ScheduleID string
	Missing    string // "accountId", "carId", "userId"
}

func (e *IncompleteScheduleError) Error() string {
	return fmt.Sprintf("schedule %s is missing %s, refusing to generate expenses", e.ScheduleID, e.Missing)
}

func (e *IncompleteScheduleError) Unwrap() error { return ErrIncompleteSchedule }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports a missing (or foreign-tenant) schedule.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsValidation reports an error the caller caused and can fix.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrScheduleNotStarted) ||
		errors.Is(err, ErrWindowExpired) ||
		errors.Is(err, ErrNothingToResume) ||
		errors.Is(err, ErrIncompleteSchedule)
}

// IsConflict reports a retryable claim conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrScheduleClaimed)
}

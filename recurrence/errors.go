package recurrence

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyScheduleDays is returned when a schedule has no days encoding.
	ErrEmptyScheduleDays = errors.New("schedule days is empty")

	// ErrMalformedScheduleDays is returned when the days encoding does not
	// match the grammar for the schedule type.
	ErrMalformedScheduleDays = errors.New("malformed schedule days")
)

// MalformedScheduleDaysError carries the offending encoding for diagnostics.
type MalformedScheduleDaysError struct {
	Type         ScheduleType
	ScheduleDays string
	Detail       string
}

func (e *MalformedScheduleDaysError) Error() string {
	return fmt.Sprintf("malformed schedule days %q for type %s: %s", e.ScheduleDays, e.Type, e.Detail)
}

func (e *MalformedScheduleDaysError) Unwrap() error {
	return ErrMalformedScheduleDays
}

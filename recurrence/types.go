/*
Package recurrence provides the pure calendar engine for expense schedules.

PURPOSE:
  This package contains the date mathematics shared by every consumer of a
  recurring schedule: computing the next occurrence after a reference date,
  and expanding a schedule into every occurrence inside a window. It has no
  storage or transport concerns - inputs are values, outputs are dates.

KEY CONCEPTS IN THIS FILE (types.go):
  - ScheduleType: ONE_TIME, WEEKLY, MONTHLY, YEARLY
  - ScheduleDays: the comma-separated encoding whose grammar depends on type
  - Token parsers: strict (for validation at creation time) and tolerant
    (for the calculator, which drops malformed tokens and keeps going)

SCHEDULE DAYS GRAMMAR:
  WEEKLY:   ISO weekday numbers 1-7 (1=Monday), e.g. "1,3,5"
  MONTHLY:  day-of-month 1-31 or the literal "last", e.g. "1,15" or "last"
  YEARLY:   MM-DD tokens, e.g. "07-04" or "01-01,06-15"
  ONE_TIME: a single ISO date, e.g. "2024-06-15"

SEE ALSO:
  - calculator.go: next-occurrence computation
  - expander.go: window expansion
*/
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SCHEDULE TYPE
// =============================================================================

type ScheduleType string

const (
	TypeOneTime ScheduleType = "ONE_TIME"
	TypeWeekly  ScheduleType = "WEEKLY"
	TypeMonthly ScheduleType = "MONTHLY"
	TypeYearly  ScheduleType = "YEARLY"
)

// IsValid reports whether the type is one of the four known shapes.
func (t ScheduleType) IsValid() bool {
	switch t {
	case TypeOneTime, TypeWeekly, TypeMonthly, TypeYearly:
		return true
	}
	return false
}

// MonthDayLast is the monthly token that matches the last day of each month.
const MonthDayLast = "last"

// MonthDay is one parsed MONTHLY token: either a fixed day-of-month
// (clamped to the month length when it overshoots) or the literal "last".
type MonthDay struct {
	Day  int
	Last bool
}

// YearDay is one parsed YEARLY token (month + day, no year).
type YearDay struct {
	Month time.Month
	Day   int
}

// =============================================================================
// TOLERANT PARSERS - used by the calculator; malformed tokens are dropped
// =============================================================================

// ParseWeekdays extracts valid ISO weekday numbers (1-7) from a WEEKLY
// encoding. Out-of-range and non-numeric tokens are silently dropped.
func ParseWeekdays(scheduleDays string) []int {
	var out []int
	for _, tok := range splitTokens(scheduleDays) {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 || n > 7 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ParseMonthDays extracts valid MONTHLY tokens. Out-of-range and
// non-numeric tokens (other than "last") are silently dropped.
func ParseMonthDays(scheduleDays string) []MonthDay {
	var out []MonthDay
	for _, tok := range splitTokens(scheduleDays) {
		if strings.EqualFold(tok, MonthDayLast) {
			out = append(out, MonthDay{Last: true})
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 || n > 31 {
			continue
		}
		out = append(out, MonthDay{Day: n})
	}
	return out
}

// ParseYearDays extracts valid MM-DD tokens. Tokens that cannot name a real
// date in any year (e.g. "13-01", "02-32") are silently dropped; Feb 29 is
// kept because it is valid in leap years.
func ParseYearDays(scheduleDays string) []YearDay {
	var out []YearDay
	for _, tok := range splitTokens(scheduleDays) {
		parts := strings.SplitN(tok, "-", 2)
		if len(parts) != 2 {
			continue
		}
		m, err1 := strconv.Atoi(parts[0])
		d, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		if m < 1 || m > 12 || d < 1 || d > 31 {
			continue
		}
		out = append(out, YearDay{Month: time.Month(m), Day: d})
	}
	return out
}

func splitTokens(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// =============================================================================
// STRICT VALIDATION - used at schedule creation/edit time
// =============================================================================

// ValidateScheduleDays checks that the encoding is well-formed for the type
// and yields at least one usable token. The calculator itself is tolerant;
// this is the gate that keeps garbage out of storage in the first place.
func ValidateScheduleDays(t ScheduleType, scheduleDays string) error {
	if strings.TrimSpace(scheduleDays) == "" {
		return ErrEmptyScheduleDays
	}

	switch t {
	case TypeWeekly:
		toks := splitTokens(scheduleDays)
		if len(ParseWeekdays(scheduleDays)) != len(toks) {
			return &MalformedScheduleDaysError{Type: t, ScheduleDays: scheduleDays,
				Detail: "weekly tokens must be ISO weekday numbers 1-7"}
		}
	case TypeMonthly:
		toks := splitTokens(scheduleDays)
		if len(ParseMonthDays(scheduleDays)) != len(toks) {
			return &MalformedScheduleDaysError{Type: t, ScheduleDays: scheduleDays,
				Detail: fmt.Sprintf("monthly tokens must be 1-31 or %q", MonthDayLast)}
		}
	case TypeYearly:
		toks := splitTokens(scheduleDays)
		if len(ParseYearDays(scheduleDays)) != len(toks) {
			return &MalformedScheduleDaysError{Type: t, ScheduleDays: scheduleDays,
				Detail: "yearly tokens must be MM-DD"}
		}
	case TypeOneTime:
		if _, err := ParseDate(strings.TrimSpace(scheduleDays)); err != nil {
			return &MalformedScheduleDaysError{Type: t, ScheduleDays: scheduleDays,
				Detail: "one-time schedule days must be a single YYYY-MM-DD date"}
		}
	default:
		return &MalformedScheduleDaysError{Type: t, ScheduleDays: scheduleDays,
			Detail: "unknown schedule type"}
	}
	return nil
}

package recurrence

import (
	"time"
)

// =============================================================================
// DATE POINT - Calendar-date abstraction used throughout the engine
// =============================================================================

// DatePoint is a single calendar date, normalized to 12:00 UTC so that
// date-only comparisons are unambiguous regardless of the wall clock or
// timezone an occurrence was computed in.
type DatePoint struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) DatePoint {
	return DatePoint{Time: time.Date(year, month, day, 12, 0, 0, 0, time.UTC)}
}

// DateOf normalizes an arbitrary instant to its calendar date.
func DateOf(t time.Time) DatePoint {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string into a DatePoint.
func ParseDate(s string) (DatePoint, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return DatePoint{}, err
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// Comparison
func (d DatePoint) Before(other DatePoint) bool        { return d.normalize().Before(other.normalize()) }
func (d DatePoint) Equal(other DatePoint) bool         { return d.normalize().Equal(other.normalize()) }
func (d DatePoint) After(other DatePoint) bool         { return d.normalize().After(other.normalize()) }
func (d DatePoint) BeforeOrEqual(other DatePoint) bool { return d.Before(other) || d.Equal(other) }
func (d DatePoint) AfterOrEqual(other DatePoint) bool  { return d.After(other) || d.Equal(other) }

func (d DatePoint) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 12, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d DatePoint) AddDays(n int) DatePoint   { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d DatePoint) AddMonths(n int) DatePoint { return DateOf(d.Time.AddDate(0, n, 0)) }
func (d DatePoint) AddYears(n int) DatePoint  { return DateOf(d.Time.AddDate(n, 0, 0)) }

// Properties
func (d DatePoint) Year() int         { return d.Time.Year() }
func (d DatePoint) Month() time.Month { return d.Time.Month() }
func (d DatePoint) Day() int          { return d.Time.Day() }
func (d DatePoint) IsZero() bool      { return d.Time.IsZero() }

// ISOWeekday returns the ISO-8601 weekday number: 1=Monday ... 7=Sunday.
func (d DatePoint) ISOWeekday() int {
	wd := int(d.Time.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// DaysInMonth returns the length of this date's month.
func (d DatePoint) DaysInMonth() int {
	return DaysInMonth(d.Year(), d.Month())
}

// IsLastDayOfMonth reports whether this date is the final day of its month.
func (d DatePoint) IsLastDayOfMonth() bool {
	return d.Day() == d.DaysInMonth()
}

func (d DatePoint) String() string {
	return d.Time.Format("2006-01-02")
}

// =============================================================================
// DATE UTILITIES
// =============================================================================

func DaysBetween(from, to DatePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}

// IsValidCalendarDate reports whether year/month/day names a real date
// (e.g. Feb 30 is not one; time.Date would silently roll it into March).
func IsValidCalendarDate(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December {
		return false
	}
	return day >= 1 && day <= DaysInMonth(year, month)
}

// MinDate and MaxDate pick the earlier/later of two dates.
func MinDate(a, b DatePoint) DatePoint {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b DatePoint) DatePoint {
	if a.After(b) {
		return a
	}
	return b
}

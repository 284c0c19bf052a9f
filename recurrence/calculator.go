/*
calculator.go - Next-occurrence computation

PURPOSE:
  Computes the next occurrence date of a schedule after a reference date.
  This is a pure function of the schedule's recurrence config; callers own
  the cursor they pass in (typically lastAddedAt or startAt-1).

SEARCH RULE:
  The search begins the day AFTER the reference date, unless the reference
  precedes the schedule's startAt, in which case the search begins at
  startAt itself. This makes "next after what I already materialized"
  and "first ever occurrence" the same call.

HORIZONS:
  Each recurrence shape scans a bounded horizon so a malformed encoding can
  never loop forever. Exhausting a horizon is not an error - the calculator
  logs it and reports no occurrence.

SEE ALSO:
  - types.go: ScheduleDays grammar and token parsers
  - expander.go: iterates this calculator over a window
*/
package recurrence

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Default search bounds. Weekly needs two full cycles to be safe around the
// reference day; monthly needs to span at least two month boundaries; yearly
// needs a few years so a Feb-29 token can find its next leap year.
const (
	DefaultWeeklyHorizonDays  = 14
	DefaultMonthlyHorizonDays = 62
	DefaultYearlyHorizonYears = 8
)

// Calculator computes next occurrences for one schedule configuration.
type Calculator struct {
	WeeklyHorizonDays  int
	MonthlyHorizonDays int
	YearlyHorizonYears int
	Logger             zerolog.Logger
}

// NewCalculator returns a Calculator with default horizons.
func NewCalculator(logger zerolog.Logger) *Calculator {
	return &Calculator{
		WeeklyHorizonDays:  DefaultWeeklyHorizonDays,
		MonthlyHorizonDays: DefaultMonthlyHorizonDays,
		YearlyHorizonYears: DefaultYearlyHorizonYears,
		Logger:             logger,
	}
}

// NextOccurrence returns the earliest occurrence strictly after reference
// (or at startAt when reference precedes it) that satisfies the recurrence
// and falls within the schedule window. The boolean is false when no such
// occurrence exists.
func (c *Calculator) NextOccurrence(
	t ScheduleType,
	scheduleDays string,
	startAt DatePoint,
	endAt *DatePoint,
	reference DatePoint,
) (DatePoint, bool) {
	searchStart := reference.AddDays(1)
	if reference.Before(startAt) {
		searchStart = startAt
	}

	var candidate DatePoint
	var found bool

	switch t {
	case TypeWeekly:
		candidate, found = c.nextWeekly(scheduleDays, searchStart)
	case TypeMonthly:
		candidate, found = c.nextMonthly(scheduleDays, searchStart)
	case TypeYearly:
		candidate, found = c.nextYearly(scheduleDays, searchStart)
	case TypeOneTime:
		candidate, found = c.nextOneTime(scheduleDays, searchStart)
	default:
		c.Logger.Warn().Str("schedule_type", string(t)).Msg("unknown schedule type, no occurrence")
		return DatePoint{}, false
	}

	if !found {
		c.Logger.Debug().
			Str("schedule_type", string(t)).
			Str("schedule_days", scheduleDays).
			Str("search_start", searchStart.String()).
			Msg("no occurrence within search horizon")
		return DatePoint{}, false
	}

	if endAt != nil && candidate.After(*endAt) {
		return DatePoint{}, false
	}
	return candidate, true
}

// nextWeekly scans forward day by day looking for a matching ISO weekday.
func (c *Calculator) nextWeekly(scheduleDays string, searchStart DatePoint) (DatePoint, bool) {
	weekdays := ParseWeekdays(scheduleDays)
	if len(weekdays) == 0 {
		return DatePoint{}, false
	}

	member := make(map[int]bool, len(weekdays))
	for _, wd := range weekdays {
		member[wd] = true
	}

	horizon := c.WeeklyHorizonDays
	if horizon < DefaultWeeklyHorizonDays {
		horizon = DefaultWeeklyHorizonDays
	}
	for i := 0; i < horizon; i++ {
		d := searchStart.AddDays(i)
		if member[d.ISOWeekday()] {
			return d, true
		}
	}
	return DatePoint{}, false
}

// nextMonthly scans forward day by day. A numeric token larger than the
// current month clamps to that month's last day ("31" fires on Feb 28/29);
// the "last" token matches exactly the last day of each month.
func (c *Calculator) nextMonthly(scheduleDays string, searchStart DatePoint) (DatePoint, bool) {
	tokens := ParseMonthDays(scheduleDays)
	if len(tokens) == 0 {
		return DatePoint{}, false
	}

	horizon := c.MonthlyHorizonDays
	if horizon < DefaultMonthlyHorizonDays {
		horizon = DefaultMonthlyHorizonDays
	}
	for i := 0; i < horizon; i++ {
		d := searchStart.AddDays(i)
		monthLen := d.DaysInMonth()
		for _, tok := range tokens {
			if tok.Last {
				if d.Day() == monthLen {
					return d, true
				}
				continue
			}
			day := tok.Day
			if day > monthLen {
				day = monthLen
			}
			if d.Day() == day {
				return d, true
			}
		}
	}
	return DatePoint{}, false
}

// nextYearly builds candidate dates for each forward year, discards the ones
// that don't exist on the calendar (Feb 29 off leap years), and returns the
// earliest at or after the search start.
func (c *Calculator) nextYearly(scheduleDays string, searchStart DatePoint) (DatePoint, bool) {
	tokens := ParseYearDays(scheduleDays)
	if len(tokens) == 0 {
		return DatePoint{}, false
	}

	years := c.YearlyHorizonYears
	if years < 2 {
		years = 2
	}

	var candidates []DatePoint
	for y := searchStart.Year(); y < searchStart.Year()+years; y++ {
		for _, tok := range tokens {
			if !IsValidCalendarDate(y, tok.Month, tok.Day) {
				continue
			}
			candidates = append(candidates, NewDate(y, tok.Month, tok.Day))
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	for _, d := range candidates {
		if d.AfterOrEqual(searchStart) {
			return d, true
		}
	}
	return DatePoint{}, false
}

// nextOneTime: the encoding is itself the single target date.
func (c *Calculator) nextOneTime(scheduleDays string, searchStart DatePoint) (DatePoint, bool) {
	d, err := ParseDate(strings.TrimSpace(scheduleDays))
	if err != nil {
		return DatePoint{}, false
	}
	if d.AfterOrEqual(searchStart) {
		return d, true
	}
	return DatePoint{}, false
}

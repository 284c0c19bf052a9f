/*
expander.go - Window expansion

PURPOSE:
  Produces every occurrence of a schedule inside [rangeStart, rangeEnd] by
  iterating the Calculator. Both backfill (batch runs) and manual "run now"
  go through this single code path so they can never disagree on dates.

BOUNDS:
  A hard iteration cap guards against a configuration that would otherwise
  expand without bound (for example an enormous window against a daily-ish
  weekly set). Hitting the cap truncates the result and logs a warning; it
  is deliberately not an error because the caller can still make progress
  with what was produced.
*/
package recurrence

import (
	"strings"

	"github.com/rs/zerolog"
)

// DefaultMaxExpansionIterations bounds one OccurrencesInRange call.
const DefaultMaxExpansionIterations = 1000

// Expander expands a schedule configuration into concrete occurrence dates.
type Expander struct {
	Calc          *Calculator
	MaxIterations int
	Logger        zerolog.Logger
}

// NewExpander returns an Expander over the given calculator.
func NewExpander(calc *Calculator, logger zerolog.Logger) *Expander {
	return &Expander{
		Calc:          calc,
		MaxIterations: DefaultMaxExpansionIterations,
		Logger:        logger,
	}
}

// OccurrencesInRange returns every occurrence in [rangeStart, rangeEnd],
// ascending, strictly after `after`. A nil after defaults to the day before
// rangeStart so the range start itself is a valid first occurrence.
func (e *Expander) OccurrencesInRange(
	t ScheduleType,
	scheduleDays string,
	rangeStart, rangeEnd DatePoint,
	after *DatePoint,
) []DatePoint {
	if rangeEnd.Before(rangeStart) {
		return nil
	}

	cursor := rangeStart.AddDays(-1)
	if after != nil && after.After(cursor) {
		cursor = *after
	}

	if t == TypeOneTime {
		d, err := ParseDate(strings.TrimSpace(scheduleDays))
		if err != nil {
			return nil
		}
		if d.After(cursor) && d.AfterOrEqual(rangeStart) && d.BeforeOrEqual(rangeEnd) {
			return []DatePoint{d}
		}
		return nil
	}

	limit := e.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxExpansionIterations
	}

	var out []DatePoint
	for i := 0; i < limit; i++ {
		next, ok := e.Calc.NextOccurrence(t, scheduleDays, rangeStart, &rangeEnd, cursor)
		if !ok {
			return out
		}
		out = append(out, next)
		cursor = next
	}

	e.Logger.Warn().
		Str("schedule_type", string(t)).
		Str("schedule_days", scheduleDays).
		Str("range_start", rangeStart.String()).
		Str("range_end", rangeEnd.String()).
		Int("cap", limit).
		Msg("range expansion hit iteration cap, result truncated")
	return out
}

package recurrence_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
)

func newExpander() *recurrence.Expander {
	return recurrence.NewExpander(newCalc(), zerolog.Nop())
}

func TestOccurrencesInRange_Weekly_FullJanuary(t *testing.T) {
	// GIVEN: Mon/Wed/Fri over the first two weeks of January 2024
	// WHEN: expanding the range
	// THEN: exactly the Mon/Wed/Fri dates come back, ascending, range start included

	exp := newExpander()

	got := exp.OccurrencesInRange(recurrence.TypeWeekly, "1,3,5",
		date(2024, time.January, 1), date(2024, time.January, 14), nil)

	want := []recurrence.DatePoint{
		date(2024, time.January, 1),
		date(2024, time.January, 3),
		date(2024, time.January, 5),
		date(2024, time.January, 8),
		date(2024, time.January, 10),
		date(2024, time.January, 12),
	}
	assert.Equal(t, want, got)
}

func TestOccurrencesInRange_AfterDate_StrictlyAfter(t *testing.T) {
	// GIVEN: an afterDate inside the range
	// WHEN: expanding
	// THEN: dates at or before afterDate are excluded

	exp := newExpander()
	after := date(2024, time.January, 5)

	got := exp.OccurrencesInRange(recurrence.TypeWeekly, "1,3,5",
		date(2024, time.January, 1), date(2024, time.January, 10), &after)

	want := []recurrence.DatePoint{
		date(2024, time.January, 8),
		date(2024, time.January, 10),
	}
	assert.Equal(t, want, got)
}

func TestOccurrencesInRange_OneTime(t *testing.T) {
	exp := newExpander()

	// Inside the range: one result.
	got := exp.OccurrencesInRange(recurrence.TypeOneTime, "2024-06-15",
		date(2024, time.June, 1), date(2024, time.June, 30), nil)
	require.Len(t, got, 1)
	assert.Equal(t, date(2024, time.June, 15), got[0])

	// Outside the range: none.
	got = exp.OccurrencesInRange(recurrence.TypeOneTime, "2024-06-15",
		date(2024, time.July, 1), date(2024, time.July, 31), nil)
	assert.Empty(t, got)

	// At or before afterDate: none.
	after := date(2024, time.June, 15)
	got = exp.OccurrencesInRange(recurrence.TypeOneTime, "2024-06-15",
		date(2024, time.June, 1), date(2024, time.June, 30), &after)
	assert.Empty(t, got)
}

func TestOccurrencesInRange_IterationCap_TruncatesNotHangs(t *testing.T) {
	// GIVEN: a configuration that would produce far more occurrences than the cap
	// WHEN: expanding a year of daily-ish weekly matches with a cap of 5
	// THEN: the result is bounded by the cap

	exp := newExpander()
	exp.MaxIterations = 5

	got := exp.OccurrencesInRange(recurrence.TypeWeekly, "1,2,3,4,5,6,7",
		date(2024, time.January, 1), date(2024, time.December, 31), nil)

	assert.Len(t, got, 5)
	assert.Equal(t, date(2024, time.January, 1), got[0])
	assert.Equal(t, date(2024, time.January, 5), got[4])
}

func TestOccurrencesInRange_InvertedRange_Empty(t *testing.T) {
	exp := newExpander()

	got := exp.OccurrencesInRange(recurrence.TypeWeekly, "1",
		date(2024, time.February, 1), date(2024, time.January, 1), nil)
	assert.Empty(t, got)
}

func TestOccurrencesInRange_Monthly_ClampAcrossMonths(t *testing.T) {
	// Day 31 across Jan-Apr 2024: Jan 31, Feb 29 (clamped, leap), Mar 31, Apr 30.
	exp := newExpander()

	got := exp.OccurrencesInRange(recurrence.TypeMonthly, "31",
		date(2024, time.January, 1), date(2024, time.April, 30), nil)

	want := []recurrence.DatePoint{
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
	}
	assert.Equal(t, want, got)
}

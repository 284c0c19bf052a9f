package recurrence_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newCalc() *recurrence.Calculator {
	return recurrence.NewCalculator(zerolog.Nop())
}

func date(y int, m time.Month, d int) recurrence.DatePoint {
	return recurrence.NewDate(y, m, d)
}

// =============================================================================
// WEEKLY
// =============================================================================

func TestNextOccurrence_Weekly_MonWedFri(t *testing.T) {
	// GIVEN: Mon/Wed/Fri schedule starting Mon 2024-01-01
	// WHEN: computing the next occurrence from reference 2024-01-01
	// THEN: the result is Wed 2024-01-03 (search starts the day after)

	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeWeekly, "1,3,5", start, nil, start)
	require.True(t, ok)
	assert.Equal(t, date(2024, time.January, 3), next)
}

func TestNextOccurrence_Weekly_ReferenceBeforeStart_BeginsAtStart(t *testing.T) {
	// GIVEN: a Monday-only schedule starting Mon 2024-01-01
	// WHEN: the reference date is well before startAt
	// THEN: startAt itself is eligible (search begins at startAt, not after it)

	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeWeekly, "1", start, nil, date(2023, time.November, 1))
	require.True(t, ok)
	assert.Equal(t, start, next)
}

func TestNextOccurrence_Weekly_InvalidTokensDropped(t *testing.T) {
	// GIVEN: an encoding mixing garbage with one valid weekday
	// WHEN: computing the next occurrence
	// THEN: only the valid weekday matches

	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeWeekly, "0,9,abc,5", start, nil, start)
	require.True(t, ok)
	assert.Equal(t, 5, next.ISOWeekday())
	assert.Equal(t, date(2024, time.January, 5), next)
}

func TestNextOccurrence_Weekly_AllTokensInvalid_NoOccurrence(t *testing.T) {
	calc := newCalc()
	start := date(2024, time.January, 1)

	_, ok := calc.NextOccurrence(recurrence.TypeWeekly, "0,8,9", start, nil, start)
	assert.False(t, ok)
}

// =============================================================================
// MONTHLY
// =============================================================================

func TestNextOccurrence_Monthly_Day31_ClampsToLeapFebruary(t *testing.T) {
	// GIVEN: schedule day "31"
	// WHEN: the reference is 2024-02-01 (leap year)
	// THEN: the next occurrence is 2024-02-29, not an invalid Feb 31

	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeMonthly, "31", start, nil, date(2024, time.February, 1))
	require.True(t, ok)
	assert.Equal(t, date(2024, time.February, 29), next)
}

func TestNextOccurrence_Monthly_Last_MatchesFebruary28(t *testing.T) {
	// GIVEN: schedule "last"
	// WHEN: the reference is 2023-02-01 (non-leap year)
	// THEN: the next occurrence is 2023-02-28

	calc := newCalc()
	start := date(2023, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeMonthly, "last", start, nil, date(2023, time.February, 1))
	require.True(t, ok)
	assert.Equal(t, date(2023, time.February, 28), next)
}

func TestNextOccurrence_Monthly_MultipleDays_PicksEarliest(t *testing.T) {
	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeMonthly, "15,1", start, nil, date(2024, time.January, 2))
	require.True(t, ok)
	assert.Equal(t, date(2024, time.January, 15), next)
}

func TestNextOccurrence_Monthly_CrossesMonthBoundary(t *testing.T) {
	// Reference past the only day of the month rolls into the next month.
	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeMonthly, "1", start, nil, date(2024, time.January, 20))
	require.True(t, ok)
	assert.Equal(t, date(2024, time.February, 1), next)
}

// =============================================================================
// YEARLY
// =============================================================================

func TestNextOccurrence_Yearly_July4(t *testing.T) {
	// GIVEN: schedule "07-04"
	// WHEN: reference 2024-01-01
	// THEN: 2024-07-04
	// AND WHEN: reference 2024-07-04 itself
	// THEN: 2025-07-04, because the search starts the day after the reference

	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeYearly, "07-04", start, nil, start)
	require.True(t, ok)
	assert.Equal(t, date(2024, time.July, 4), next)

	next, ok = calc.NextOccurrence(recurrence.TypeYearly, "07-04", start, nil, next)
	require.True(t, ok)
	assert.Equal(t, date(2025, time.July, 4), next)
}

func TestNextOccurrence_Yearly_Feb29_OnlyLeapYears(t *testing.T) {
	// GIVEN: schedule "02-29"
	// WHEN: reference is just after Feb 29 of a leap year
	// THEN: the next occurrence is four years later

	calc := newCalc()
	start := date(2024, time.January, 1)

	next, ok := calc.NextOccurrence(recurrence.TypeYearly, "02-29", start, nil, date(2024, time.March, 1))
	require.True(t, ok)
	assert.Equal(t, date(2028, time.February, 29), next)
}

func TestNextOccurrence_Yearly_InvalidTokenDropped(t *testing.T) {
	calc := newCalc()
	start := date(2024, time.January, 1)

	// "02-30" never names a real date; "06-15" does.
	next, ok := calc.NextOccurrence(recurrence.TypeYearly, "02-30,06-15", start, nil, start)
	require.True(t, ok)
	assert.Equal(t, date(2024, time.June, 15), next)
}

// =============================================================================
// ONE_TIME
// =============================================================================

func TestNextOccurrence_OneTime_MatchesOnlyAtOrAfterSearchStart(t *testing.T) {
	calc := newCalc()
	start := date(2024, time.June, 1)

	// Before the target: found.
	next, ok := calc.NextOccurrence(recurrence.TypeOneTime, "2024-06-15", start, nil, date(2024, time.June, 10))
	require.True(t, ok)
	assert.Equal(t, date(2024, time.June, 15), next)

	// On the target date: search starts the day after, nothing left.
	_, ok = calc.NextOccurrence(recurrence.TypeOneTime, "2024-06-15", start, nil, date(2024, time.June, 15))
	assert.False(t, ok)
}

// =============================================================================
// WINDOW END
// =============================================================================

func TestNextOccurrence_EndAt_CutsOffResult(t *testing.T) {
	// GIVEN: a weekly schedule whose window ends before the next match
	// WHEN: computing the next occurrence
	// THEN: no occurrence is reported

	calc := newCalc()
	start := date(2024, time.January, 1)
	end := date(2024, time.January, 2)

	_, ok := calc.NextOccurrence(recurrence.TypeWeekly, "5", start, &end, start)
	assert.False(t, ok)
}

// =============================================================================
// DATE MATH
// =============================================================================

func TestDatePoint_NormalizedToMiddayUTC(t *testing.T) {
	d := recurrence.DateOf(time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, 12, d.Time.Hour())
	assert.Equal(t, time.UTC, d.Time.Location())
	assert.Equal(t, 10, d.Day())
}

func TestDatePoint_ISOWeekday_SundayIsSeven(t *testing.T) {
	assert.Equal(t, 7, date(2024, time.January, 7).ISOWeekday())
	assert.Equal(t, 1, date(2024, time.January, 1).ISOWeekday())
}

func TestDaysInMonth_LeapFebruary(t *testing.T) {
	assert.Equal(t, 29, recurrence.DaysInMonth(2024, time.February))
	assert.Equal(t, 28, recurrence.DaysInMonth(2023, time.February))
}

// =============================================================================
// STRICT VALIDATION
// =============================================================================

func TestValidateScheduleDays(t *testing.T) {
	cases := []struct {
		name    string
		typ     recurrence.ScheduleType
		days    string
		wantErr bool
	}{
		{"weekly ok", recurrence.TypeWeekly, "1,3,5", false},
		{"weekly out of range", recurrence.TypeWeekly, "1,8", true},
		{"monthly ok", recurrence.TypeMonthly, "1,15,last", false},
		{"monthly zero", recurrence.TypeMonthly, "0", true},
		{"yearly ok", recurrence.TypeYearly, "07-04", false},
		{"yearly junk", recurrence.TypeYearly, "July-4", true},
		{"one-time ok", recurrence.TypeOneTime, "2024-06-15", false},
		{"one-time junk", recurrence.TypeOneTime, "someday", true},
		{"empty", recurrence.TypeWeekly, "  ", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := recurrence.ValidateScheduleDays(tc.typ, tc.days)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

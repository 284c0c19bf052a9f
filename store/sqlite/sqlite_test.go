package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
	"github.com/dcerge/carexpenses-api-sub003/schedule"
	"github.com/dcerge/carexpenses-api-sub003/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dp(year int, month time.Month, day int) recurrence.DatePoint {
	return recurrence.NewDate(year, month, day)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func seedSchedule(t *testing.T, s *sqlite.Store, mutate func(*schedule.ExpenseSchedule)) *schedule.ExpenseSchedule {
	t.Helper()
	sched := &schedule.ExpenseSchedule{
		AccountID:    "acc-1",
		CarID:        "car-1",
		UserID:       "user-1",
		Type:         recurrence.TypeWeekly,
		ScheduleDays: "1",
		StartAt:      dp(2024, time.March, 4),
		Status:       schedule.StatusActive,
		Template: schedule.ExpenseTemplate{
			TotalPrice: dec("45.00"),
			WhereDone:  "Garage",
			KindID:     "kind-oil",
		},
		Currency:  "USD",
		CreatedBy: "user-1",
	}
	if mutate != nil {
		mutate(sched)
	}
	require.NoError(t, s.CreateSchedule(context.Background(), sched))
	return sched
}

// =============================================================================
// SCHEDULE ROUND-TRIP
// =============================================================================

func TestScheduleRoundTrip(t *testing.T) {
	// GIVEN a schedule with every nullable field populated
	s := newStore(t)
	ctx := context.Background()
	end := dp(2024, time.December, 31)
	last := dp(2024, time.March, 11)
	next := dp(2024, time.March, 18)
	sched := seedSchedule(t, s, func(sc *schedule.ExpenseSchedule) {
		sc.EndAt = &end
		sc.LastAddedAt = &last
		sc.NextScheduledAt = &next
		sc.Template.CostWork = dec("30.50")
		sc.Template.Comments = "monthly service"
	})

	// WHEN reading it back
	got, err := s.GetSchedule(ctx, sched.ID)

	// THEN every field survives the round trip
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sched.ID, got.ID)
	assert.Equal(t, recurrence.TypeWeekly, got.Type)
	assert.Equal(t, "1", got.ScheduleDays)
	assert.Equal(t, "2024-03-04", got.StartAt.String())
	assert.Equal(t, "2024-12-31", got.EndAt.String())
	assert.Equal(t, "2024-03-11", got.LastAddedAt.String())
	assert.Equal(t, "2024-03-18", got.NextScheduledAt.String())
	assert.Equal(t, schedule.StatusActive, got.Status)
	assert.True(t, got.Template.CostWork.Equal(decimal.RequireFromString("30.50")))
	assert.True(t, got.Template.TotalPrice.Equal(decimal.RequireFromString("45.00")))
	assert.Nil(t, got.Template.Tax)
	assert.Equal(t, "monthly service", got.Template.Comments)
	assert.Equal(t, "USD", got.Currency)
	assert.Nil(t, got.RemovedAt)
}

func TestGetSchedule_MissingReturnsNilNil(t *testing.T) {
	s := newStore(t)

	got, err := s.GetSchedule(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListSchedules_FiltersByAccount(t *testing.T) {
	s := newStore(t)
	seedSchedule(t, s, nil)
	seedSchedule(t, s, nil)
	seedSchedule(t, s, func(sc *schedule.ExpenseSchedule) { sc.AccountID = "acc-2" })

	got, err := s.ListSchedules(context.Background(), "acc-1")

	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

func TestUpdateSchedule_AppliesOnlyGivenFields(t *testing.T) {
	// GIVEN a stored schedule
	s := newStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)

	// WHEN updating the cursors
	last := dp(2024, time.March, 18)
	next := dp(2024, time.March, 25)
	id := "exp-99"
	err := s.UpdateSchedule(ctx, sched.ID, sched.AccountID, schedule.ScheduleUpdate{
		LastAddedAt:          &last,
		NextScheduledAt:      &next,
		LastCreatedExpenseID: &id,
		UpdatedBy:            "system",
	})

	// THEN only those fields changed
	require.NoError(t, err)
	got, err := s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-18", got.LastAddedAt.String())
	assert.Equal(t, "2024-03-25", got.NextScheduledAt.String())
	assert.Equal(t, "exp-99", got.LastCreatedExpenseID)
	assert.Equal(t, "system", got.UpdatedBy)
	assert.Equal(t, schedule.StatusActive, got.Status)
}

func TestUpdateSchedule_ClearNextScheduledAt(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	next := dp(2024, time.March, 25)
	sched := seedSchedule(t, s, func(sc *schedule.ExpenseSchedule) {
		sc.NextScheduledAt = &next
	})

	completed := schedule.StatusCompleted
	err := s.UpdateSchedule(ctx, sched.ID, sched.AccountID, schedule.ScheduleUpdate{
		Status:               &completed,
		ClearNextScheduledAt: true,
	})

	require.NoError(t, err)
	got, err := s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextScheduledAt)
	assert.Equal(t, schedule.StatusCompleted, got.Status)
}

func TestUpdateSchedule_WrongAccountIsNotFound(t *testing.T) {
	s := newStore(t)
	sched := seedSchedule(t, s, nil)

	paused := schedule.StatusPaused
	err := s.UpdateSchedule(context.Background(), sched.ID, "acc-other", schedule.ScheduleUpdate{Status: &paused})

	assert.True(t, errors.Is(err, schedule.ErrScheduleNotFound))
}

// =============================================================================
// DUE SELECTION AND CLAIMS
// =============================================================================

func TestListDueSchedules_SelectsOnlyDueRows(t *testing.T) {
	// GIVEN one due schedule plus paused, future-start, ended, and
	// future-next variants
	s := newStore(t)
	ctx := context.Background()
	due := seedSchedule(t, s, nil)
	seedSchedule(t, s, func(sc *schedule.ExpenseSchedule) { sc.Status = schedule.StatusPaused })
	seedSchedule(t, s, func(sc *schedule.ExpenseSchedule) { sc.StartAt = dp(2024, time.April, 1) })
	seedSchedule(t, s, func(sc *schedule.ExpenseSchedule) {
		end := dp(2024, time.March, 1)
		sc.EndAt = &end
	})
	seedSchedule(t, s, func(sc *schedule.ExpenseSchedule) {
		next := dp(2024, time.March, 25)
		sc.NextScheduledAt = &next
	})

	// WHEN claiming a page as of 2024-03-22
	claim := schedule.NewClaimToken()
	got, err := s.ListDueSchedules(ctx, dp(2024, time.March, 22), "", 10, claim)

	// THEN only the due schedule comes back
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
}

func TestListDueSchedules_SkipsRowsClaimedByAnotherWorker(t *testing.T) {
	// GIVEN two due schedules, one claimed by another live token
	s := newStore(t)
	ctx := context.Background()
	a := seedSchedule(t, s, nil)
	b := seedSchedule(t, s, nil)

	other := schedule.NewClaimToken()
	held, err := s.ClaimSchedule(ctx, a.ID, other)
	require.NoError(t, err)
	require.True(t, held)

	// WHEN another worker claims a page
	mine := schedule.NewClaimToken()
	got, err := s.ListDueSchedules(ctx, dp(2024, time.March, 22), "", 10, mine)

	// THEN the held row is skipped, not waited on
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	// AND releasing makes it claimable again
	require.NoError(t, s.ReleaseClaim(ctx, other, []string{a.ID}))
	got, err = s.ListDueSchedules(ctx, dp(2024, time.March, 22), "", 10, schedule.NewClaimToken())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}

func TestListDueSchedules_PaginatesByIDCursor(t *testing.T) {
	// GIVEN three due schedules
	s := newStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedSchedule(t, s, nil)
	}

	claim := schedule.NewClaimToken()
	asOf := dp(2024, time.March, 22)

	// WHEN paging with limit 2 behind an id cursor
	page1, err := s.ListDueSchedules(ctx, asOf, "", 2, claim)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Less(t, page1[0].ID, page1[1].ID)

	page2, err := s.ListDueSchedules(ctx, asOf, page1[1].ID, 2, claim)
	require.NoError(t, err)
	require.Len(t, page2, 1)

	// THEN the pages never overlap
	assert.Greater(t, page2[0].ID, page1[1].ID)
}

func TestClaimSchedule_ExpiredClaimIsReclaimable(t *testing.T) {
	// GIVEN a store whose claims are born expired
	s := newStore(t)
	s.ClaimTTL = -time.Second
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)

	stale := schedule.NewClaimToken()
	held, err := s.ClaimSchedule(ctx, sched.ID, stale)
	require.NoError(t, err)
	require.True(t, held)

	// WHEN a different worker claims after expiry
	held, err = s.ClaimSchedule(ctx, sched.ID, schedule.NewClaimToken())

	// THEN the stale claim does not block it
	require.NoError(t, err)
	assert.True(t, held)
}

func TestListDueSchedules_ExcludesInactiveCar(t *testing.T) {
	// GIVEN a due schedule on a deactivated vehicle
	s := newStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)
	require.NoError(t, s.SaveCar(ctx, sched.CarID, sched.AccountID, "Old Beater", false))

	// WHEN claiming a page
	got, err := s.ListDueSchedules(ctx, dp(2024, time.March, 22), "", 10, schedule.NewClaimToken())

	// THEN the schedule is excluded until the vehicle is reactivated
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SaveCar(ctx, sched.CarID, sched.AccountID, "Old Beater", true))
	got, err = s.ListDueSchedules(ctx, dp(2024, time.March, 22), "", 10, schedule.NewClaimToken())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// =============================================================================
// GENERATED EXPENSES
// =============================================================================

func TestExpenseRoundTripAndRangeQuery(t *testing.T) {
	// GIVEN three expenses across March
	s := newStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)

	for _, d := range []recurrence.DatePoint{dp(2024, time.March, 4), dp(2024, time.March, 11), dp(2024, time.March, 18)} {
		_, err := s.CreateExpense(ctx, &schedule.GeneratedExpense{
			AccountID: sched.AccountID, CarID: sched.CarID, UserID: sched.UserID,
			ScheduleID: sched.ID, WhenDone: d, Template: sched.Template, Currency: "USD",
		})
		require.NoError(t, err)
	}

	// WHEN querying the middle of the range
	got, err := s.ListGeneratedExpenses(ctx, sched.ID, sched.AccountID, dp(2024, time.March, 5), dp(2024, time.March, 18))

	// THEN only the in-range records come back, date-ordered
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-03-11", got[0].WhenDone.String())
	assert.Equal(t, "2024-03-18", got[1].WhenDone.String())
	assert.True(t, got[0].Template.TotalPrice.Equal(decimal.RequireFromString("45.00")))
}

func TestCreateExpense_RejectsDuplicateDate(t *testing.T) {
	// GIVEN an expense on a date
	s := newStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)
	exp := schedule.GeneratedExpense{
		AccountID: sched.AccountID, CarID: sched.CarID, UserID: sched.UserID,
		ScheduleID: sched.ID, WhenDone: dp(2024, time.March, 4), Template: sched.Template,
	}
	first := exp
	_, err := s.CreateExpense(ctx, &first)
	require.NoError(t, err)

	// WHEN inserting a second record for the same schedule and date
	second := exp
	_, err = s.CreateExpense(ctx, &second)

	// THEN the unique index rejects it
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSoftDeleteExpense_HidesRecordAndFreesDate(t *testing.T) {
	// GIVEN a soft-deleted expense
	s := newStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)
	exp := &schedule.GeneratedExpense{
		AccountID: sched.AccountID, CarID: sched.CarID, UserID: sched.UserID,
		ScheduleID: sched.ID, WhenDone: dp(2024, time.March, 4), Template: sched.Template,
	}
	id, err := s.CreateExpense(ctx, exp)
	require.NoError(t, err)
	require.NoError(t, s.SoftDeleteExpense(ctx, id))

	// THEN it no longer appears in range queries
	got, err := s.ListGeneratedExpenses(ctx, sched.ID, sched.AccountID, dp(2024, time.March, 1), dp(2024, time.March, 31))
	require.NoError(t, err)
	assert.Empty(t, got)

	// AND the date is free for a fresh record (partial unique index)
	fresh := &schedule.GeneratedExpense{
		AccountID: sched.AccountID, CarID: sched.CarID, UserID: sched.UserID,
		ScheduleID: sched.ID, WhenDone: dp(2024, time.March, 4), Template: sched.Template,
	}
	_, err = s.CreateExpense(ctx, fresh)
	assert.NoError(t, err)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN a transaction that creates an expense and then fails
	s := newStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx schedule.Storage) error {
		_, err := tx.CreateExpense(ctx, &schedule.GeneratedExpense{
			AccountID: sched.AccountID, CarID: sched.CarID, UserID: sched.UserID,
			ScheduleID: sched.ID, WhenDone: dp(2024, time.March, 4), Template: sched.Template,
		})
		require.NoError(t, err)

		last := dp(2024, time.March, 4)
		require.NoError(t, tx.UpdateSchedule(ctx, sched.ID, sched.AccountID, schedule.ScheduleUpdate{LastAddedAt: &last}))
		return boom
	})

	// THEN nothing was persisted
	require.ErrorIs(t, err, boom)
	got, err := s.ListGeneratedExpenses(ctx, sched.ID, sched.AccountID, dp(2024, time.March, 1), dp(2024, time.March, 31))
	require.NoError(t, err)
	assert.Empty(t, got)

	stored, err := s.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastAddedAt)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	sched := seedSchedule(t, s, nil)

	err := s.WithTx(ctx, func(tx schedule.Storage) error {
		_, err := tx.CreateExpense(ctx, &schedule.GeneratedExpense{
			AccountID: sched.AccountID, CarID: sched.CarID, UserID: sched.UserID,
			ScheduleID: sched.ID, WhenDone: dp(2024, time.March, 4), Template: sched.Template,
		})
		return err
	})

	require.NoError(t, err)
	got, err := s.ListGeneratedExpenses(ctx, sched.ID, sched.AccountID, dp(2024, time.March, 1), dp(2024, time.March, 31))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

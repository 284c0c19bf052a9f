/*
lifecycle.go - Schedule status state machine and manual operations

PURPOSE:
  Owns the ACTIVE / PAUSED / COMPLETED state machine and the user-triggered
  operations:

    pause    ACTIVE -> PAUSED
    resume   PAUSED -> ACTIVE, advancing lastAddedAt past the paused
             interval so it is never backfilled
    runNow   immediate materialization, either a full sync from the
             schedule start (updates and removals included) or a
             "fresh start" that only creates today's occurrence

  COMPLETED is terminal. Any path that recomputes nextScheduledAt and finds
  none while the window is bounded completes the schedule; a ONE_TIME
  schedule completes as soon as its single occurrence has been handled.

CONCURRENCY:
  runNow claims the schedule through the same store claim primitive the
  batch processor uses, so a manual run can never interleave with a batch
  run on the same schedule; a held claim surfaces as a retryable conflict.

SEE ALSO:
  - reconciler.go: the convergence both runNow branches drive
  - batch.go: the periodic counterpart (create-only)
*/
package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
)

// Lifecycle exposes the user-facing schedule operations.
type Lifecycle struct {
	Store      TxStorage
	Calc       *recurrence.Calculator
	Expander   *recurrence.Expander
	Reconciler *Reconciler
	Effects    *SideEffectCoordinator

	// Now is injectable for tests; defaults to time.Now.
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewLifecycle(store TxStorage, calc *recurrence.Calculator, exp *recurrence.Expander, rec *Reconciler, effects *SideEffectCoordinator, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		Store:      store,
		Calc:       calc,
		Expander:   exp,
		Reconciler: rec,
		Effects:    effects,
		Now:        time.Now,
		Logger:     logger,
	}
}

// RunResult reports what one runNow did.
type RunResult struct {
	Schedule *ExpenseSchedule

	Created int
	Updated int
	Removed int
	Skipped int

	StatsUpdates    int
	IntervalUpdates int
}

func (l *Lifecycle) today() recurrence.DatePoint {
	return recurrence.DateOf(l.Now())
}

// load fetches a schedule and enforces tenant ownership. A missing schedule
// and a foreign-account schedule are indistinguishable to the caller.
func (l *Lifecycle) load(ctx context.Context, scheduleID, accountID string) (*ExpenseSchedule, error) {
	s, err := l.Store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.AccountID != accountID || s.RemovedAt != nil {
		return nil, ErrScheduleNotFound
	}
	return s, nil
}

// =============================================================================
// PAUSE / RESUME
// =============================================================================

// Pause transitions ACTIVE -> PAUSED. The cursors are left untouched; what
// happens to the paused interval is decided at resume time.
func (l *Lifecycle) Pause(ctx context.Context, scheduleID, accountID, actor string) (*ExpenseSchedule, error) {
	s, err := l.load(ctx, scheduleID, accountID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusActive {
		return nil, &TransitionError{ScheduleID: s.ID, From: s.Status, Attempted: "pause"}
	}

	status := StatusPaused
	if err := l.Store.UpdateSchedule(ctx, s.ID, s.AccountID, ScheduleUpdate{Status: &status, UpdatedBy: actor}); err != nil {
		return nil, err
	}
	s.Status = StatusPaused

	l.Logger.Info().Str("schedule_id", s.ID).Msg("schedule paused")
	return s, nil
}

// Resume transitions PAUSED -> ACTIVE. lastAddedAt is advanced to the later
// of its current value and yesterday, which is the mechanism that prevents
// the paused interval from ever being backfilled; nextScheduledAt is then
// recomputed from that cursor. Resuming fails when the window has already
// ended or no future occurrence exists.
func (l *Lifecycle) Resume(ctx context.Context, scheduleID, accountID, actor string) (*ExpenseSchedule, error) {
	s, err := l.load(ctx, scheduleID, accountID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPaused {
		return nil, &TransitionError{ScheduleID: s.ID, From: s.Status, Attempted: "resume"}
	}

	today := l.today()
	if s.EndAt != nil && s.EndAt.Before(today) {
		return nil, ErrWindowExpired
	}

	// Never move the cursor backward; only skip forward over the pause.
	cursor := today.AddDays(-1)
	if s.LastAddedAt != nil && s.LastAddedAt.After(cursor) {
		cursor = *s.LastAddedAt
	}

	next, ok := l.Calc.NextOccurrence(s.Type, s.ScheduleDays, s.StartAt, s.EndAt, cursor)
	if !ok {
		return nil, ErrNothingToResume
	}

	status := StatusActive
	upd := ScheduleUpdate{
		Status:          &status,
		LastAddedAt:     &cursor,
		NextScheduledAt: &next,
		UpdatedBy:       actor,
	}
	if err := l.Store.UpdateSchedule(ctx, s.ID, s.AccountID, upd); err != nil {
		return nil, err
	}
	s.Status = StatusActive
	s.LastAddedAt = &cursor
	s.NextScheduledAt = &next

	l.Logger.Info().
		Str("schedule_id", s.ID).
		Str("cursor", cursor.String()).
		Str("next", next.String()).
		Msg("schedule resumed")
	return s, nil
}

// =============================================================================
// RUN NOW
// =============================================================================

// RunNow materializes a schedule immediately.
//
// skipPausedPeriod=false runs a full reconciliation from the schedule start
// through today, including template re-stamps and soft-deletes of records
// that fell out of the window.
//
// skipPausedPeriod=true creates only today's occurrence and advances the
// cursor past everything older - a fresh start that deliberately discards
// missed history.
//
// Side effects are dispatched synchronously; the caller is waiting.
func (l *Lifecycle) RunNow(ctx context.Context, scheduleID, accountID, actor string, skipPausedPeriod bool) (*RunResult, error) {
	s, err := l.load(ctx, scheduleID, accountID)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusCompleted {
		return nil, &TransitionError{ScheduleID: s.ID, From: s.Status, Attempted: "runNow"}
	}

	today := l.today()
	if s.StartAt.After(today) {
		return nil, ErrScheduleNotStarted
	}

	claim := NewClaimToken()
	claimed, err := l.Store.ClaimSchedule(ctx, s.ID, claim)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrScheduleClaimed
	}
	defer func() {
		if err := l.Store.ReleaseClaim(context.WithoutCancel(ctx), claim, []string{s.ID}); err != nil {
			l.Logger.Warn().Err(err).Str("schedule_id", s.ID).Msg("claim release failed, will expire")
		}
	}()

	set := l.Effects.NewSet()
	currency := l.Effects.ResolveCurrency(ctx, set, s)

	var res ReconcileResult
	err = l.Store.WithTx(ctx, func(tx Storage) error {
		var window Window
		var desired []recurrence.DatePoint
		full := !skipPausedPeriod

		if skipPausedPeriod {
			window = Window{From: today, To: today}
			desired = l.Expander.OccurrencesInRange(s.Type, s.ScheduleDays, today, today, nil)
		} else {
			window = Window{From: s.StartAt, To: s.WindowEnd(today)}
			desired = l.Expander.OccurrencesInRange(s.Type, s.ScheduleDays, window.From, window.To, nil)
		}

		var rerr error
		res, rerr = l.Reconciler.Reconcile(ctx, tx, s, window, desired, full, currency)
		if rerr != nil {
			return rerr
		}

		// Fold cursor candidates into the schedule. A full run owns every
		// desired date in the window whether it created the record now or
		// found it already present.
		newLast := s.LastAddedAt
		if full && len(desired) > 0 {
			last := desired[len(desired)-1]
			newLast = laterDate(newLast, &last)
		}
		newLast = laterDate(newLast, res.MaxCreatedDate)
		if skipPausedPeriod {
			yesterday := today.AddDays(-1)
			newLast = laterDate(newLast, &yesterday)
		}

		upd := ScheduleUpdate{UpdatedBy: actor}
		upd.LastAddedAt = newLast
		if res.LastCreatedExpenseID != "" {
			id := res.LastCreatedExpenseID
			upd.LastCreatedExpenseID = &id
		}

		applyNextOccurrence(l.Calc, s, newLast, &upd, l.Logger)

		if err := tx.UpdateSchedule(ctx, s.ID, s.AccountID, upd); err != nil {
			return err
		}
		applyUpdateLocally(s, upd)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Effects.Collect(set, s, currency)
	disp := l.Effects.Dispatch(ctx, set)

	l.Logger.Info().
		Str("schedule_id", s.ID).
		Bool("skip_paused_period", skipPausedPeriod).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("removed", res.Removed).
		Msg("manual run completed")

	return &RunResult{
		Schedule:        s,
		Created:         res.Created,
		Updated:         res.Updated,
		Removed:         res.Removed,
		Skipped:         res.Skipped,
		StatsUpdates:    disp.StatsUpdates,
		IntervalUpdates: disp.IntervalUpdates,
	}, nil
}

// =============================================================================
// SHARED CURSOR HELPERS (also used by the batch processor)
// =============================================================================

func laterDate(a, b *recurrence.DatePoint) *recurrence.DatePoint {
	if a == nil {
		return b
	}
	if b == nil || a.AfterOrEqual(*b) {
		return a
	}
	return b
}

// applyNextOccurrence recomputes nextScheduledAt from the given cursor and
// folds the complete-on-exhaustion rule into upd:
//   - ONE_TIME with its occurrence handled -> COMPLETED
//   - no further occurrence within a bounded window -> COMPLETED
//   - no occurrence found on an open-ended window -> cursor cleared, stays
//     ACTIVE (logged; typically a malformed encoding)
func applyNextOccurrence(calc *recurrence.Calculator, s *ExpenseSchedule, cursor *recurrence.DatePoint, upd *ScheduleUpdate, logger zerolog.Logger) {
	ref := s.StartAt.AddDays(-1)
	if cursor != nil {
		ref = *cursor
	}

	next, ok := calc.NextOccurrence(s.Type, s.ScheduleDays, s.StartAt, s.EndAt, ref)
	if ok {
		upd.NextScheduledAt = &next
		return
	}

	upd.ClearNextScheduledAt = true
	if s.Type == recurrence.TypeOneTime || s.EndAt != nil {
		completed := StatusCompleted
		upd.Status = &completed
		return
	}
	logger.Warn().
		Str("schedule_id", s.ID).
		Str("schedule_days", s.ScheduleDays).
		Msg("open-ended schedule produced no next occurrence")
}

// applyUpdateLocally mirrors a ScheduleUpdate onto the in-memory schedule so
// callers can return it without a re-read.
func applyUpdateLocally(s *ExpenseSchedule, upd ScheduleUpdate) {
	if upd.Status != nil {
		s.Status = *upd.Status
	}
	if upd.LastAddedAt != nil {
		s.LastAddedAt = upd.LastAddedAt
	}
	if upd.ClearNextScheduledAt {
		s.NextScheduledAt = nil
	} else if upd.NextScheduledAt != nil {
		s.NextScheduledAt = upd.NextScheduledAt
	}
	if upd.LastCreatedExpenseID != nil {
		s.LastCreatedExpenseID = *upd.LastCreatedExpenseID
	}
	if upd.UpdatedBy != "" {
		s.UpdatedBy = upd.UpdatedBy
	}
}

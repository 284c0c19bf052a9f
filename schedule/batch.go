/*
batch.go - Periodic materialization of due schedules

PURPOSE:
  The system-facing entry point. Claims bounded pages of due schedules,
  materializes each in its own transaction, and aggregates side effects
  across the whole run.

CLAIM / MUTATE SPLIT:
  Claiming happens in a short store-side transaction that selects due rows,
  marks them with this run's token and releases immediately - its only
  purpose is exclusivity against concurrent processor instances (skip-locked
  semantics). The actual mutation runs afterwards in one isolated
  transaction per schedule, trading a small claim/mutate window for short
  lock hold times. A per-schedule failure rolls back only that schedule,
  lands in a bounded error list, and never aborts the batch.

ORDERING:
  Pages are claimed in ascending id order behind a cursor, which guarantees
  forward progress and no duplicate claims within a run. maxSchedules caps
  one invocation; the summary's HasMoreToProcess tells the host to re-invoke
  rather than letting a run grow unbounded.

IDEMPOTENCY:
  The reconciler checks existing records by date before creating, so
  running the same batch twice without intervening edits creates nothing
  the second time.
*/
package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
)

// =============================================================================
// CONFIG AND SUMMARY
// =============================================================================

// BatchConfig bounds one processor invocation.
type BatchConfig struct {
	DefaultBatchSize    int // schedules fetched per claim page
	MaxBatchSize        int // upper bound a caller may request
	DefaultMaxSchedules int // hard cap per invocation
	ErrorReportCap      int // per-schedule errors echoed in the summary
}

// DefaultBatchConfig mirrors the host defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		DefaultBatchSize:    50,
		MaxBatchSize:        500,
		DefaultMaxSchedules: 1000,
		ErrorReportCap:      20,
	}
}

// ScheduleError is one failed schedule in a run summary.
type ScheduleError struct {
	ScheduleID string `json:"scheduleId"`
	Message    string `json:"message"`
}

// BatchSummary reports one processor invocation.
type BatchSummary struct {
	SchedulesProcessed int `json:"schedulesProcessed"`
	SchedulesUpdated   int `json:"schedulesUpdated"`
	SchedulesCompleted int `json:"schedulesCompleted"`

	ExpensesCreated int `json:"expensesCreated"`
	ExpensesSkipped int `json:"expensesSkipped"`

	StatsUpdates       int `json:"statsUpdates"`
	IntervalUpdates    int `json:"intervalUpdates"`
	SideEffectFailures int `json:"sideEffectFailures"`

	// Errors is capped at ErrorReportCap; TotalErrors is the real count.
	Errors      []ScheduleError `json:"errors,omitempty"`
	TotalErrors int             `json:"totalErrors"`

	HasMoreToProcess bool `json:"hasMoreToProcess"`
}

// =============================================================================
// BATCH PROCESSOR
// =============================================================================

// BatchProcessor materializes due schedules.
type BatchProcessor struct {
	Store      TxStorage
	Calc       *recurrence.Calculator
	Expander   *recurrence.Expander
	Reconciler *Reconciler
	Effects    *SideEffectCoordinator
	Config     BatchConfig

	// Now is injectable for tests; defaults to time.Now.
	Now    func() time.Time
	Logger zerolog.Logger
}

func NewBatchProcessor(store TxStorage, calc *recurrence.Calculator, exp *recurrence.Expander, rec *Reconciler, effects *SideEffectCoordinator, cfg BatchConfig, logger zerolog.Logger) *BatchProcessor {
	return &BatchProcessor{
		Store:      store,
		Calc:       calc,
		Expander:   exp,
		Reconciler: rec,
		Effects:    effects,
		Config:     cfg,
		Now:        time.Now,
		Logger:     logger,
	}
}

// ProcessScheduledExpenses runs one bounded invocation. batchSize and
// maxSchedules of 0 take the configured defaults. The returned error is
// non-nil only for infrastructure failures that prevent claiming work at
// all; per-schedule problems live in the summary.
func (p *BatchProcessor) ProcessScheduledExpenses(ctx context.Context, batchSize, maxSchedules int) (*BatchSummary, error) {
	if batchSize <= 0 {
		batchSize = p.Config.DefaultBatchSize
	}
	if batchSize > p.Config.MaxBatchSize {
		batchSize = p.Config.MaxBatchSize
	}
	if maxSchedules <= 0 {
		maxSchedules = p.Config.DefaultMaxSchedules
	}

	summary := &BatchSummary{}
	today := recurrence.DateOf(p.Now())
	claim := NewClaimToken()
	set := p.Effects.NewSet()

	cursor := ""
	lastPageFull := false

	for summary.SchedulesProcessed < maxSchedules {
		fetch := batchSize
		if rem := maxSchedules - summary.SchedulesProcessed; rem < fetch {
			fetch = rem
		}

		claimed, err := p.Store.ListDueSchedules(ctx, today, cursor, fetch, claim)
		if err != nil {
			return summary, err
		}
		if len(claimed) == 0 {
			lastPageFull = false
			break
		}

		ids := make([]string, 0, len(claimed))
		for i := range claimed {
			s := &claimed[i]
			ids = append(ids, s.ID)
			cursor = s.ID

			summary.SchedulesProcessed++
			if err := p.processOne(ctx, s, today, set, summary); err != nil {
				summary.TotalErrors++
				if len(summary.Errors) < p.Config.ErrorReportCap {
					summary.Errors = append(summary.Errors, ScheduleError{ScheduleID: s.ID, Message: err.Error()})
				}
				p.Logger.Error().Err(err).Str("schedule_id", s.ID).Msg("schedule processing failed")
			}
		}

		if err := p.Store.ReleaseClaim(ctx, claim, ids); err != nil {
			p.Logger.Warn().Err(err).Msg("claim release failed, claims will expire")
		}

		lastPageFull = len(claimed) == fetch
		if len(claimed) < fetch {
			break
		}
	}

	summary.HasMoreToProcess = lastPageFull && summary.SchedulesProcessed >= maxSchedules

	disp := p.Effects.Dispatch(ctx, set)
	summary.StatsUpdates = disp.StatsUpdates
	summary.IntervalUpdates = disp.IntervalUpdates
	summary.SideEffectFailures = disp.Failures

	p.Logger.Info().
		Int("processed", summary.SchedulesProcessed).
		Int("updated", summary.SchedulesUpdated).
		Int("completed", summary.SchedulesCompleted).
		Int("created", summary.ExpensesCreated).
		Int("skipped", summary.ExpensesSkipped).
		Int("errors", summary.TotalErrors).
		Bool("has_more", summary.HasMoreToProcess).
		Msg("scheduled expense run finished")

	return summary, nil
}

// processOne materializes a single claimed schedule inside its own
// transaction: expand from the cursor through min(endAt, today), reconcile
// create-only, advance the cursors, complete on exhaustion.
func (p *BatchProcessor) processOne(ctx context.Context, s *ExpenseSchedule, today recurrence.DatePoint, set *EffectSet, summary *BatchSummary) error {
	currency := p.Effects.ResolveCurrency(ctx, set, s)

	err := p.Store.WithTx(ctx, func(tx Storage) error {
		windowEnd := s.WindowEnd(today)
		after := s.ExpansionCursor()
		desired := p.Expander.OccurrencesInRange(s.Type, s.ScheduleDays, s.StartAt, windowEnd, &after)

		window := Window{From: s.StartAt, To: windowEnd}
		res, err := p.Reconciler.Reconcile(ctx, tx, s, window, desired, false, currency)
		if err != nil {
			return err
		}

		// Desired dates that already had records are materialized too; the
		// cursor moves over them just like fresh creations.
		newLast := s.LastAddedAt
		if len(desired) > 0 {
			last := desired[len(desired)-1]
			newLast = laterDate(newLast, &last)
		}
		newLast = laterDate(newLast, res.MaxCreatedDate)

		upd := ScheduleUpdate{UpdatedBy: "system", LastAddedAt: newLast}
		if res.LastCreatedExpenseID != "" {
			id := res.LastCreatedExpenseID
			upd.LastCreatedExpenseID = &id
		}
		applyNextOccurrence(p.Calc, s, newLast, &upd, p.Logger)

		if err := tx.UpdateSchedule(ctx, s.ID, s.AccountID, upd); err != nil {
			return err
		}
		applyUpdateLocally(s, upd)

		summary.SchedulesUpdated++
		summary.ExpensesCreated += res.Created
		summary.ExpensesSkipped += res.Skipped
		if s.Status == StatusCompleted {
			summary.SchedulesCompleted++
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Effects.Collect(set, s, currency)
	return nil
}

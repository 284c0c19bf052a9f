/*
store.go - Persistence and collaborator contracts

PURPOSE:
  Defines the interface between the schedule engine and the backing store,
  plus the external collaborators the engine notifies after a run. Any store
  that can satisfy the claim semantics (SQLite, PostgreSQL, in-memory)
  plugs in here.

CLAIM SEMANTICS:
  ListDueSchedules both selects AND claims: rows it returns are marked with
  the caller's claim token inside one short store-side transaction, and rows
  already carrying a live token from another worker are skipped rather than
  waited on (skip-locked). The claim's only purpose is exclusivity between
  concurrent processors; mutation happens later in the caller's own
  per-schedule transaction. Claims expire so a crashed worker never wedges
  a schedule.

TRANSACTIONS:
  WithTx hands the callback a transactional Storage. Helpers receive that
  value explicitly as a parameter - never an instance field - so nested
  code is provably using the caller's transaction.

IMPLEMENTATIONS:
  - store/sqlite:          production SQLite (WAL, claim-token skip-locked)
  - schedule/store:        in-memory, for tests

SEE ALSO:
  - batch.go: claim-then-release-then-mutate usage
  - sideeffects.go: collaborator dispatch
*/
package schedule

import (
	"context"

	"github.com/google/uuid"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
)

// =============================================================================
// CLAIM TOKEN
// =============================================================================

// ClaimToken identifies one processor run for claim exclusivity.
type ClaimToken string

// NewClaimToken returns a fresh random token.
func NewClaimToken() ClaimToken {
	return ClaimToken(uuid.NewString())
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

// ScheduleUpdate is a partial update of a schedule's mutable engine fields.
// Pointer fields are applied only when non-nil; the Clear flags exist
// because "set to null" and "leave alone" are different operations on the
// nullable cursor columns.
type ScheduleUpdate struct {
	Status               *Status
	LastAddedAt          *recurrence.DatePoint
	NextScheduledAt      *recurrence.DatePoint
	ClearNextScheduledAt bool
	LastCreatedExpenseID *string
	UpdatedBy            string
}

// ExpenseUpdate re-stamps a generated expense from the schedule template.
type ExpenseUpdate struct {
	Template *ExpenseTemplate
	Currency *string
}

// =============================================================================
// STORAGE
// =============================================================================

// Storage is the persistence contract for schedules and generated expenses.
// GetSchedule returns (nil, nil) when the id does not exist; callers decide
// how to surface that.
type Storage interface {
	CreateSchedule(ctx context.Context, s *ExpenseSchedule) error
	GetSchedule(ctx context.Context, id string) (*ExpenseSchedule, error)
	ListSchedules(ctx context.Context, accountID string) ([]ExpenseSchedule, error)

	// UpdateSchedule applies upd to the schedule iff it belongs to accountID.
	UpdateSchedule(ctx context.Context, id, accountID string, upd ScheduleUpdate) error

	// ListDueSchedules selects and claims up to limit due schedules with
	// id > afterID, ordered by id ascending. Due means: status ACTIVE, not
	// removed, startAt <= asOf, endAt null or >= asOf, nextScheduledAt null
	// or <= asOf, and the associated vehicle active. Rows claimed by another
	// live token are skipped.
	ListDueSchedules(ctx context.Context, asOf recurrence.DatePoint, afterID string, limit int, claim ClaimToken) ([]ExpenseSchedule, error)

	// ClaimSchedule claims a single schedule (the runNow path). Returns
	// false when another live token already holds it.
	ClaimSchedule(ctx context.Context, id string, claim ClaimToken) (bool, error)

	// ReleaseClaim releases the given ids if still held by claim.
	ReleaseClaim(ctx context.Context, claim ClaimToken, ids []string) error

	// ListGeneratedExpenses returns the non-removed generated expenses of a
	// schedule with whenDone in [from, to].
	ListGeneratedExpenses(ctx context.Context, scheduleID, accountID string, from, to recurrence.DatePoint) ([]GeneratedExpense, error)

	// CreateExpense persists a new generated expense and returns its id.
	CreateExpense(ctx context.Context, e *GeneratedExpense) (string, error)

	UpdateExpense(ctx context.Context, id string, upd ExpenseUpdate) error

	// SoftDeleteExpense marks the record removed; it is never purged.
	SoftDeleteExpense(ctx context.Context, id string) error
}

// TxStorage wraps Storage with transaction support. fn receives a Storage
// bound to the transaction; returning an error rolls it back.
type TxStorage interface {
	Storage

	WithTx(ctx context.Context, fn func(Storage) error) error
}

// =============================================================================
// COLLABORATORS - external systems notified after a run
// =============================================================================

// StatsRecalculator recomputes vehicle aggregates after expenses change.
// Called once per distinct pair per run, never per individual expense.
type StatsRecalculator interface {
	// RecalculateCarStats recomputes aggregate financial statistics for a
	// vehicle in one currency.
	RecalculateCarStats(ctx context.Context, carID, currency string) error

	// RecalculateServiceInterval recomputes maintenance-interval projections
	// for a vehicle and expense kind.
	RecalculateServiceInterval(ctx context.Context, carID, kindID string) error
}

// CurrencyResolver looks up a user's home currency. Used only when a
// schedule carries no explicit currency.
type CurrencyResolver interface {
	ResolveHomeCurrency(ctx context.Context, userID string) (string, error)
}

// NoopStatsRecalculator is for hosts that wire statistics elsewhere.
type NoopStatsRecalculator struct{}

func (NoopStatsRecalculator) RecalculateCarStats(context.Context, string, string) error { return nil }
func (NoopStatsRecalculator) RecalculateServiceInterval(context.Context, string, string) error {
	return nil
}

// StaticCurrencyResolver always answers with one currency.
type StaticCurrencyResolver string

func (c StaticCurrencyResolver) ResolveHomeCurrency(context.Context, string) (string, error) {
	return string(c), nil
}

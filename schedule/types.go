/*
Package schedule implements the recurring expense schedule engine.

PURPOSE:
  Turns ExpenseSchedule definitions into concrete generated expense records:
  reconciliation of desired occurrences against existing records, the
  pause/resume/run-now lifecycle, and the idempotent batch processor that
  materializes due schedules at scale.

KEY CONCEPTS IN THIS FILE (types.go):
  - ExpenseSchedule: the recurrence definition plus financial template
  - GeneratedExpense: a materialized record (external entity, referenced
    by schedule id + date, soft-deleted rather than purged)
  - ExpenseTemplate: the financial fields copied onto every generated record
  - Status state machine: ACTIVE -> PAUSED -> ACTIVE, ACTIVE -> COMPLETED

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money fields, never float64
  2. Explicit cursors: lastAddedAt / nextScheduledAt drive all progress
  3. At most one generated expense per schedule per calendar date

SEE ALSO:
  - store.go: storage and collaborator contracts
  - reconciler.go: desired-vs-existing convergence
  - lifecycle.go: status transitions
  - batch.go: periodic materialization
*/
package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED" // terminal
)

// =============================================================================
// EXPENSE TEMPLATE - financial fields copied onto every generated expense
// =============================================================================

// ExpenseTemplate holds the fields a schedule stamps onto each record it
// creates. Numeric fields are pointers so "not set" survives storage and
// diffs correctly against existing records (nil on both sides is equal).
type ExpenseTemplate struct {
	CostWork   *decimal.Decimal
	CostParts  *decimal.Decimal
	Tax        *decimal.Decimal
	Fees       *decimal.Decimal
	Subtotal   *decimal.Decimal
	TotalPrice *decimal.Decimal
	WhereDone  string
	Comments   string
	KindID     string
}

// =============================================================================
// EXPENSE SCHEDULE
// =============================================================================

// ExpenseSchedule is a recurring (or one-time) expense definition owned by
// an account and bound to one vehicle.
type ExpenseSchedule struct {
	ID        string
	AccountID string
	CarID     string
	UserID    string

	// Recurrence config
	Type         recurrence.ScheduleType
	ScheduleDays string

	// Validity window. EndAt nil means open-ended.
	StartAt recurrence.DatePoint
	EndAt   *recurrence.DatePoint

	// Progress cursors.
	// LastAddedAt: date of the most recently materialized occurrence.
	// NextScheduledAt: next occurrence still to materialize; nil = exhausted.
	LastAddedAt          *recurrence.DatePoint
	NextScheduledAt      *recurrence.DatePoint
	LastCreatedExpenseID string

	Status Status

	Template ExpenseTemplate

	// Currency of the generated expenses. Empty means "resolve the owner's
	// home currency" via the CurrencyResolver collaborator.
	Currency string

	// Audit
	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
	RemovedAt *time.Time
}

// HasOwners reports whether the schedule carries the identity fields every
// generated expense needs. Reconciliation refuses schedules without them.
func (s *ExpenseSchedule) HasOwners() bool {
	return s.AccountID != "" && s.CarID != "" && s.UserID != ""
}

// WindowEnd returns min(EndAt, asOf) - the inclusive upper bound for
// materialization as of a given day.
func (s *ExpenseSchedule) WindowEnd(asOf recurrence.DatePoint) recurrence.DatePoint {
	if s.EndAt != nil && s.EndAt.Before(asOf) {
		return *s.EndAt
	}
	return asOf
}

// ExpansionCursor returns the reference date expansion resumes from:
// LastAddedAt when set, otherwise the day before StartAt so the start date
// itself is eligible.
func (s *ExpenseSchedule) ExpansionCursor() recurrence.DatePoint {
	if s.LastAddedAt != nil {
		return *s.LastAddedAt
	}
	return s.StartAt.AddDays(-1)
}

// =============================================================================
// GENERATED EXPENSE - external entity, referenced not owned
// =============================================================================

// GeneratedExpense is one materialized expense record with a back-reference
// to the schedule that produced it. Exactly one may exist per schedule per
// calendar date (WhenDone).
type GeneratedExpense struct {
	ID         string
	AccountID  string
	CarID      string
	UserID     string
	ScheduleID string

	WhenDone recurrence.DatePoint

	Template ExpenseTemplate
	Currency string

	CreatedAt time.Time
	UpdatedAt time.Time
	RemovedAt *time.Time
}

// IsRemoved reports whether the record has been soft-deleted.
func (e *GeneratedExpense) IsRemoved() bool { return e.RemovedAt != nil }

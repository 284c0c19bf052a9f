/*
reconciler.go - Desired-vs-existing convergence

PURPOSE:
  Given a schedule, a window, and the occurrence dates that SHOULD exist in
  that window, converge the generated expense records to match:
    create  - a desired date with no record
    update  - a record whose copied template fields drifted (full runs only)
    remove  - a record whose date is no longer desired (full runs only)

  Existing records are fetched once and keyed by date; create-only runs
  (the batch path, and "skip paused period") never touch records that are
  already there, which is what makes back-to-back batch runs idempotent.

FIELD DIFFING:
  Update detection evaluates a declarative list of (field, comparison)
  tuples instead of ad hoc branching, so a new template field is one line.
  Numeric comparison is value-based (decimal 45 == 45.00) and nil on both
  sides is equal.

SEE ALSO:
  - batch.go / lifecycle.go: the two callers
  - store.go: the Storage this mutates (always the caller's transaction)
*/
package schedule

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
)

// =============================================================================
// DECLARATIVE TEMPLATE DIFF
// =============================================================================

type comparisonKind int

const (
	compareDecimal comparisonKind = iota
	compareText
)

type templateField struct {
	name string
	kind comparisonKind
	dec  func(ExpenseTemplate) *decimal.Decimal
	text func(ExpenseTemplate) string
}

// templateFields drives update-needed detection. Adding a template field
// means adding exactly one tuple here.
var templateFields = []templateField{
	{name: "costWork", kind: compareDecimal, dec: func(t ExpenseTemplate) *decimal.Decimal { return t.CostWork }},
	{name: "costParts", kind: compareDecimal, dec: func(t ExpenseTemplate) *decimal.Decimal { return t.CostParts }},
	{name: "tax", kind: compareDecimal, dec: func(t ExpenseTemplate) *decimal.Decimal { return t.Tax }},
	{name: "fees", kind: compareDecimal, dec: func(t ExpenseTemplate) *decimal.Decimal { return t.Fees }},
	{name: "subtotal", kind: compareDecimal, dec: func(t ExpenseTemplate) *decimal.Decimal { return t.Subtotal }},
	{name: "totalPrice", kind: compareDecimal, dec: func(t ExpenseTemplate) *decimal.Decimal { return t.TotalPrice }},
	{name: "whereDone", kind: compareText, text: func(t ExpenseTemplate) string { return t.WhereDone }},
	{name: "comments", kind: compareText, text: func(t ExpenseTemplate) string { return t.Comments }},
	{name: "kindId", kind: compareText, text: func(t ExpenseTemplate) string { return t.KindID }},
}

func decimalEqual(a, b *decimal.Decimal) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

// changedTemplateFields returns the names of fields that differ between the
// schedule template (want) and an existing record's copy (have).
func changedTemplateFields(want, have ExpenseTemplate) []string {
	var changed []string
	for _, f := range templateFields {
		switch f.kind {
		case compareDecimal:
			if !decimalEqual(f.dec(want), f.dec(have)) {
				changed = append(changed, f.name)
			}
		case compareText:
			if f.text(want) != f.text(have) {
				changed = append(changed, f.name)
			}
		}
	}
	return changed
}

// =============================================================================
// RECONCILER
// =============================================================================

// Window is the inclusive date range one reconciliation covers.
type Window struct {
	From recurrence.DatePoint
	To   recurrence.DatePoint
}

// ReconcileResult reports what one reconciliation did.
type ReconcileResult struct {
	Created int
	Updated int
	Removed int
	Skipped int // desired dates that already had a record

	// Cursor candidates for the caller to fold into the schedule.
	LastCreatedExpenseID string
	MaxCreatedDate       *recurrence.DatePoint
}

// Reconciler converges generated expenses with a schedule's desired dates.
type Reconciler struct {
	Logger zerolog.Logger
}

func NewReconciler(logger zerolog.Logger) *Reconciler {
	return &Reconciler{Logger: logger}
}

// Reconcile converges the records in window against desired. store is the
// caller's (usually transactional) Storage. full enables update and remove;
// create-only runs just fill gaps. currency is the already-resolved currency
// for newly created records.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	store Storage,
	sched *ExpenseSchedule,
	window Window,
	desired []recurrence.DatePoint,
	full bool,
	currency string,
) (ReconcileResult, error) {
	var res ReconcileResult

	if err := checkOwners(sched); err != nil {
		return res, err
	}

	existing, err := store.ListGeneratedExpenses(ctx, sched.ID, sched.AccountID, window.From, window.To)
	if err != nil {
		return res, err
	}

	byDate := make(map[string]GeneratedExpense, len(existing))
	for _, e := range existing {
		byDate[e.WhenDone.String()] = e
	}
	desiredSet := make(map[string]bool, len(desired))
	for _, d := range desired {
		desiredSet[d.String()] = true
	}

	// Create missing records, ascending so cursor candidates land on the
	// latest date.
	for _, d := range desired {
		if _, ok := byDate[d.String()]; ok {
			res.Skipped++
			continue
		}
		exp := &GeneratedExpense{
			AccountID:  sched.AccountID,
			CarID:      sched.CarID,
			UserID:     sched.UserID,
			ScheduleID: sched.ID,
			WhenDone:   d,
			Template:   sched.Template,
			Currency:   currency,
		}
		id, err := store.CreateExpense(ctx, exp)
		if err != nil {
			return res, err
		}
		res.Created++
		res.LastCreatedExpenseID = id
		if res.MaxCreatedDate == nil || d.After(*res.MaxCreatedDate) {
			dd := d
			res.MaxCreatedDate = &dd
		}
	}

	if !full {
		return res, nil
	}

	// Full reconciliation also re-stamps drifted records and soft-deletes
	// records whose date fell out of the desired set (window shrank).
	for _, e := range existing {
		key := e.WhenDone.String()
		if !desiredSet[key] {
			if err := store.SoftDeleteExpense(ctx, e.ID); err != nil {
				return res, err
			}
			res.Removed++
			continue
		}

		changed := changedTemplateFields(sched.Template, e.Template)
		currencyChanged := currency != "" && e.Currency != currency
		if len(changed) == 0 && !currencyChanged {
			continue
		}

		upd := ExpenseUpdate{Template: &sched.Template}
		if currencyChanged {
			cur := currency
			upd.Currency = &cur
		}
		if err := store.UpdateExpense(ctx, e.ID, upd); err != nil {
			return res, err
		}
		res.Updated++
		r.Logger.Debug().
			Str("schedule_id", sched.ID).
			Str("expense_id", e.ID).
			Strs("changed", changed).
			Msg("re-stamped generated expense from template")
	}

	return res, nil
}

func checkOwners(sched *ExpenseSchedule) error {
	switch {
	case sched.AccountID == "":
		return &IncompleteScheduleError{ScheduleID: sched.ID, Missing: "accountId"}
	case sched.CarID == "":
		return &IncompleteScheduleError{ScheduleID: sched.ID, Missing: "carId"}
	case sched.UserID == "":
		return &IncompleteScheduleError{ScheduleID: sched.ID, Missing: "userId"}
	}
	return nil
}

// Package store provides an in-memory schedule.TxStorage for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
	"github.com/dcerge/carexpenses-api-sub003/schedule"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// DefaultClaimTTL is how long a claim survives a crashed worker.
const DefaultClaimTTL = 5 * time.Minute

type claimEntry struct {
	token schedule.ClaimToken
	at    time.Time
}

// Memory is an in-memory implementation of schedule.TxStorage. All values
// are stored and returned by copy.
type Memory struct {
	mu        sync.RWMutex
	schedules map[string]schedule.ExpenseSchedule
	expenses  map[string]schedule.GeneratedExpense
	claims    map[string]claimEntry

	// Vehicles default to active; tests flip them off explicitly.
	inactiveCars map[string]bool

	ClaimTTL time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		schedules:    make(map[string]schedule.ExpenseSchedule),
		expenses:     make(map[string]schedule.GeneratedExpense),
		claims:       make(map[string]claimEntry),
		inactiveCars: make(map[string]bool),
		ClaimTTL:     DefaultClaimTTL,
	}
}

// SetCarActive flips a vehicle's active flag for due-selection tests.
func (m *Memory) SetCarActive(carID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		delete(m.inactiveCars, carID)
	} else {
		m.inactiveCars[carID] = true
	}
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (m *Memory) CreateSchedule(_ context.Context, s *schedule.ExpenseSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createScheduleLocked(s)
}

func (m *Memory) createScheduleLocked(s *schedule.ExpenseSchedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.schedules[s.ID] = *s
	return nil
}

func (m *Memory) GetSchedule(_ context.Context, id string) (*schedule.ExpenseSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getScheduleLocked(id)
}

func (m *Memory) getScheduleLocked(id string) (*schedule.ExpenseSchedule, error) {
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (m *Memory) ListSchedules(_ context.Context, accountID string) ([]schedule.ExpenseSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schedule.ExpenseSchedule
	for _, s := range m.schedules {
		if s.AccountID == accountID && s.RemovedAt == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateSchedule(_ context.Context, id, accountID string, upd schedule.ScheduleUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateScheduleLocked(id, accountID, upd)
}

func (m *Memory) updateScheduleLocked(id, accountID string, upd schedule.ScheduleUpdate) error {
	s, ok := m.schedules[id]
	if !ok || s.AccountID != accountID {
		return schedule.ErrScheduleNotFound
	}

	if upd.Status != nil {
		s.Status = *upd.Status
	}
	if upd.LastAddedAt != nil {
		s.LastAddedAt = copyDate(upd.LastAddedAt)
	}
	if upd.ClearNextScheduledAt {
		s.NextScheduledAt = nil
	} else if upd.NextScheduledAt != nil {
		s.NextScheduledAt = copyDate(upd.NextScheduledAt)
	}
	if upd.LastCreatedExpenseID != nil {
		s.LastCreatedExpenseID = *upd.LastCreatedExpenseID
	}
	if upd.UpdatedBy != "" {
		s.UpdatedBy = upd.UpdatedBy
	}
	s.UpdatedAt = time.Now()
	m.schedules[id] = s
	return nil
}

// =============================================================================
// DUE SELECTION AND CLAIMING
// =============================================================================

func (m *Memory) ListDueSchedules(_ context.Context, asOf recurrence.DatePoint, afterID string, limit int, claim schedule.ClaimToken) ([]schedule.ExpenseSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listDueLocked(asOf, afterID, limit, claim)
}

func (m *Memory) listDueLocked(asOf recurrence.DatePoint, afterID string, limit int, claim schedule.ClaimToken) ([]schedule.ExpenseSchedule, error) {
	ids := make([]string, 0, len(m.schedules))
	for id := range m.schedules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now()
	var out []schedule.ExpenseSchedule
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if id <= afterID {
			continue
		}
		s := m.schedules[id]
		if !m.isDueLocked(&s, asOf) {
			continue
		}
		// Skip-locked: rows held by another live token are passed over, not
		// waited on.
		if e, held := m.claims[id]; held && e.token != claim && now.Sub(e.at) < m.ClaimTTL {
			continue
		}
		m.claims[id] = claimEntry{token: claim, at: now}
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) isDueLocked(s *schedule.ExpenseSchedule, asOf recurrence.DatePoint) bool {
	if s.Status != schedule.StatusActive || s.RemovedAt != nil {
		return false
	}
	if s.StartAt.After(asOf) {
		return false
	}
	if s.EndAt != nil && s.EndAt.Before(asOf) {
		return false
	}
	if s.NextScheduledAt != nil && s.NextScheduledAt.After(asOf) {
		return false
	}
	if m.inactiveCars[s.CarID] {
		return false
	}
	return true
}

func (m *Memory) ClaimSchedule(_ context.Context, id string, claim schedule.ClaimToken) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if e, held := m.claims[id]; held && e.token != claim && now.Sub(e.at) < m.ClaimTTL {
		return false, nil
	}
	m.claims[id] = claimEntry{token: claim, at: now}
	return true, nil
}

func (m *Memory) ReleaseClaim(_ context.Context, claim schedule.ClaimToken, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if e, held := m.claims[id]; held && e.token == claim {
			delete(m.claims, id)
		}
	}
	return nil
}

// =============================================================================
// GENERATED EXPENSES
// =============================================================================

func (m *Memory) ListGeneratedExpenses(_ context.Context, scheduleID, accountID string, from, to recurrence.DatePoint) ([]schedule.GeneratedExpense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExpensesLocked(scheduleID, accountID, from, to)
}

func (m *Memory) listExpensesLocked(scheduleID, accountID string, from, to recurrence.DatePoint) ([]schedule.GeneratedExpense, error) {
	var out []schedule.GeneratedExpense
	for _, e := range m.expenses {
		if e.ScheduleID != scheduleID || e.AccountID != accountID || e.RemovedAt != nil {
			continue
		}
		if e.WhenDone.Before(from) || e.WhenDone.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WhenDone.Before(out[j].WhenDone) })
	return out, nil
}

func (m *Memory) CreateExpense(_ context.Context, e *schedule.GeneratedExpense) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createExpenseLocked(e)
}

func (m *Memory) createExpenseLocked(e *schedule.GeneratedExpense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	m.expenses[e.ID] = *e
	return e.ID, nil
}

func (m *Memory) UpdateExpense(_ context.Context, id string, upd schedule.ExpenseUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateExpenseLocked(id, upd)
}

func (m *Memory) updateExpenseLocked(id string, upd schedule.ExpenseUpdate) error {
	e, ok := m.expenses[id]
	if !ok {
		return schedule.ErrScheduleNotFound
	}
	if upd.Template != nil {
		e.Template = *upd.Template
	}
	if upd.Currency != nil {
		e.Currency = *upd.Currency
	}
	e.UpdatedAt = time.Now()
	m.expenses[id] = e
	return nil
}

func (m *Memory) SoftDeleteExpense(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDeleteExpenseLocked(id)
}

func (m *Memory) softDeleteExpenseLocked(id string) error {
	e, ok := m.expenses[id]
	if !ok {
		return schedule.ErrScheduleNotFound
	}
	now := time.Now()
	e.RemovedAt = &now
	m.expenses[id] = e
	return nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback
// =============================================================================

// WithTx executes fn against a transactional view. For the memory store
// this is a snapshot taken under the lock, restored when fn errors.
func (m *Memory) WithTx(_ context.Context, fn func(schedule.Storage) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	if err := fn(&txView{parent: m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	schedules map[string]schedule.ExpenseSchedule
	expenses  map[string]schedule.GeneratedExpense
}

func (m *Memory) snapshotLocked() memorySnapshot {
	sc := make(map[string]schedule.ExpenseSchedule, len(m.schedules))
	for k, v := range m.schedules {
		sc[k] = v
	}
	ex := make(map[string]schedule.GeneratedExpense, len(m.expenses))
	for k, v := range m.expenses {
		ex[k] = v
	}
	return memorySnapshot{schedules: sc, expenses: ex}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.schedules = s.schedules
	m.expenses = s.expenses
}

// txView routes Storage calls to the parent's locked internals while WithTx
// holds the lock.
type txView struct {
	parent *Memory
}

func (tv *txView) CreateSchedule(_ context.Context, s *schedule.ExpenseSchedule) error {
	return tv.parent.createScheduleLocked(s)
}

func (tv *txView) GetSchedule(_ context.Context, id string) (*schedule.ExpenseSchedule, error) {
	return tv.parent.getScheduleLocked(id)
}

func (tv *txView) ListSchedules(_ context.Context, accountID string) ([]schedule.ExpenseSchedule, error) {
	var out []schedule.ExpenseSchedule
	for _, s := range tv.parent.schedules {
		if s.AccountID == accountID && s.RemovedAt == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tv *txView) UpdateSchedule(_ context.Context, id, accountID string, upd schedule.ScheduleUpdate) error {
	return tv.parent.updateScheduleLocked(id, accountID, upd)
}

func (tv *txView) ListDueSchedules(_ context.Context, asOf recurrence.DatePoint, afterID string, limit int, claim schedule.ClaimToken) ([]schedule.ExpenseSchedule, error) {
	return tv.parent.listDueLocked(asOf, afterID, limit, claim)
}

func (tv *txView) ClaimSchedule(_ context.Context, id string, claim schedule.ClaimToken) (bool, error) {
	now := time.Now()
	if e, held := tv.parent.claims[id]; held && e.token != claim && now.Sub(e.at) < tv.parent.ClaimTTL {
		return false, nil
	}
	tv.parent.claims[id] = claimEntry{token: claim, at: now}
	return true, nil
}

func (tv *txView) ReleaseClaim(_ context.Context, claim schedule.ClaimToken, ids []string) error {
	for _, id := range ids {
		if e, held := tv.parent.claims[id]; held && e.token == claim {
			delete(tv.parent.claims, id)
		}
	}
	return nil
}

func (tv *txView) ListGeneratedExpenses(_ context.Context, scheduleID, accountID string, from, to recurrence.DatePoint) ([]schedule.GeneratedExpense, error) {
	return tv.parent.listExpensesLocked(scheduleID, accountID, from, to)
}

func (tv *txView) CreateExpense(_ context.Context, e *schedule.GeneratedExpense) (string, error) {
	return tv.parent.createExpenseLocked(e)
}

func (tv *txView) UpdateExpense(_ context.Context, id string, upd schedule.ExpenseUpdate) error {
	return tv.parent.updateExpenseLocked(id, upd)
}

func (tv *txView) SoftDeleteExpense(_ context.Context, id string) error {
	return tv.parent.softDeleteExpenseLocked(id)
}

func copyDate(d *recurrence.DatePoint) *recurrence.DatePoint {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

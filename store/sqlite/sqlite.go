/*
Package sqlite provides the SQLite-backed schedule.TxStorage.

PURPOSE:
  Production persistence for expense schedules and their generated expense
  records. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences (FOR UPDATE SKIP LOCKED replaces the claim-token
  emulation below).

KEY TABLES:
  expense_schedules: Recurrence definitions, progress cursors, claim columns
  expenses:          Generated records, soft-deleted via removed_at
  cars:              Vehicle activity flags consulted by due selection

CLAIM EMULATION:
  SQLite has no SKIP LOCKED, so claims are a (claim_token, claimed_at) pair
  on the schedule row. Claiming is a single UPDATE over an id-ordered
  subselect that only touches rows whose token is null, expired, or already
  ours; concurrent claimers therefore skip each other's rows instead of
  blocking. Tokens expire after ClaimTTL so a crashed worker never wedges a
  schedule.

UNIQUENESS:
  A partial unique index on (schedule_id, when_done) WHERE removed_at IS
  NULL backs the one-record-per-schedule-per-date invariant at the storage
  layer, beneath the reconciler's own check.

WAL MODE:
  Opened with WAL so readers do not block the single writer.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - schedule/store.go: the contract this implements
  - schedule/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/dcerge/carexpenses-api-sub003/recurrence"
	"github.com/dcerge/carexpenses-api-sub003/schedule"
)

// DefaultClaimTTL is how long a claim survives a crashed worker.
const DefaultClaimTTL = 5 * time.Minute

// Store implements schedule.TxStorage on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	ClaimTTL time.Duration
}

// querier is satisfied by both *sql.DB and *sql.Tx so every statement can
// run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer connection; ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, ClaimTTL: DefaultClaimTTL}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS expense_schedules (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		car_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		schedule_type TEXT NOT NULL,
		schedule_days TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT,
		last_added_at TEXT,
		next_scheduled_at TEXT,
		last_created_expense_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		cost_work TEXT,
		cost_parts TEXT,
		tax TEXT,
		fees TEXT,
		subtotal TEXT,
		total_price TEXT,
		where_done TEXT NOT NULL DEFAULT '',
		comments TEXT NOT NULL DEFAULT '',
		kind_id TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		claim_token TEXT,
		claimed_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		removed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_account
		ON expense_schedules(account_id) WHERE removed_at IS NULL;

	-- Due selection (hot path): status + cursor columns, id-ordered pages
	CREATE INDEX IF NOT EXISTS idx_schedules_due
		ON expense_schedules(status, next_scheduled_at, start_at)
		WHERE removed_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_schedules_claim
		ON expense_schedules(claim_token) WHERE claim_token IS NOT NULL;

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		car_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		schedule_id TEXT NOT NULL,
		when_done TEXT NOT NULL,
		cost_work TEXT,
		cost_parts TEXT,
		tax TEXT,
		fees TEXT,
		subtotal TEXT,
		total_price TEXT,
		where_done TEXT NOT NULL DEFAULT '',
		comments TEXT NOT NULL DEFAULT '',
		kind_id TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		removed_at TEXT
	);

	-- CRITICAL: at most one live generated expense per schedule per date
	CREATE UNIQUE INDEX IF NOT EXISTS idx_expenses_schedule_date
		ON expenses(schedule_id, when_done) WHERE removed_at IS NULL;

	CREATE INDEX IF NOT EXISTS idx_expenses_schedule
		ON expenses(schedule_id, when_done);

	CREATE TABLE IF NOT EXISTS cars (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCHEDULES
// =============================================================================

const scheduleColumns = `id, account_id, car_id, user_id, schedule_type, schedule_days,
	start_at, end_at, last_added_at, next_scheduled_at, last_created_expense_id, status,
	cost_work, cost_parts, tax, fees, subtotal, total_price,
	where_done, comments, kind_id, currency,
	created_by, created_at, updated_by, updated_at, removed_at`

func (s *Store) CreateSchedule(ctx context.Context, sched *schedule.ExpenseSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSchedule(ctx, s.db, sched)
}

func (s *Store) createSchedule(ctx context.Context, q querier, sched *schedule.ExpenseSchedule) error {
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}
	sched.UpdatedAt = now

	query := `
		INSERT INTO expense_schedules
		(` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		sched.ID, sched.AccountID, sched.CarID, sched.UserID,
		string(sched.Type), sched.ScheduleDays,
		sched.StartAt.String(), nullDate(sched.EndAt), nullDate(sched.LastAddedAt),
		nullDate(sched.NextScheduledAt), sched.LastCreatedExpenseID, string(sched.Status),
		nullDecimal(sched.Template.CostWork), nullDecimal(sched.Template.CostParts),
		nullDecimal(sched.Template.Tax), nullDecimal(sched.Template.Fees),
		nullDecimal(sched.Template.Subtotal), nullDecimal(sched.Template.TotalPrice),
		sched.Template.WhereDone, sched.Template.Comments, sched.Template.KindID, sched.Currency,
		sched.CreatedBy, sched.CreatedAt.Format(time.RFC3339),
		sched.UpdatedBy, sched.UpdatedAt.Format(time.RFC3339),
		nullTime(sched.RemovedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*schedule.ExpenseSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSchedule(ctx, s.db, id)
}

func (s *Store) getSchedule(ctx context.Context, q querier, id string) (*schedule.ExpenseSchedule, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM expense_schedules WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Store) ListSchedules(ctx context.Context, accountID string) ([]schedule.ExpenseSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSchedules(ctx, s.db, accountID)
}

func (s *Store) listSchedules(ctx context.Context, q querier, accountID string) ([]schedule.ExpenseSchedule, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM expense_schedules
		 WHERE account_id = ? AND removed_at IS NULL
		 ORDER BY id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []schedule.ExpenseSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSchedule(ctx context.Context, id, accountID string, upd schedule.ScheduleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSchedule(ctx, s.db, id, accountID, upd)
}

func (s *Store) updateSchedule(ctx context.Context, q querier, id, accountID string, upd schedule.ScheduleUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.LastAddedAt != nil {
		sets = append(sets, "last_added_at = ?")
		args = append(args, upd.LastAddedAt.String())
	}
	if upd.ClearNextScheduledAt {
		sets = append(sets, "next_scheduled_at = NULL")
	} else if upd.NextScheduledAt != nil {
		sets = append(sets, "next_scheduled_at = ?")
		args = append(args, upd.NextScheduledAt.String())
	}
	if upd.LastCreatedExpenseID != nil {
		sets = append(sets, "last_created_expense_id = ?")
		args = append(args, *upd.LastCreatedExpenseID)
	}
	if upd.UpdatedBy != "" {
		sets = append(sets, "updated_by = ?")
		args = append(args, upd.UpdatedBy)
	}

	args = append(args, id, accountID)
	query := `UPDATE expense_schedules SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND account_id = ? AND removed_at IS NULL`

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schedule.ErrScheduleNotFound
	}
	return nil
}

// =============================================================================
// DUE SELECTION AND CLAIMING
// =============================================================================

// ListDueSchedules claims and returns one id-ordered page of due schedules.
// The claim UPDATE and the SELECT run in one short transaction whose only
// job is exclusivity; mutation happens later in the caller's own transaction.
func (s *Store) ListDueSchedules(ctx context.Context, asOf recurrence.DatePoint, afterID string, limit int, claim schedule.ClaimToken) ([]schedule.ExpenseSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC()
	expiry := now.Add(-s.ClaimTTL).Format(time.RFC3339)
	day := asOf.String()

	// Rows holding another worker's live token fail the claim_token predicate
	// and are skipped, never waited on.
	claimQuery := `
		UPDATE expense_schedules
		SET claim_token = ?, claimed_at = ?
		WHERE id IN (
			SELECT id FROM expense_schedules
			WHERE status = ? AND removed_at IS NULL
			  AND id > ?
			  AND start_at <= ?
			  AND (end_at IS NULL OR end_at >= ?)
			  AND (next_scheduled_at IS NULL OR next_scheduled_at <= ?)
			  AND (claim_token IS NULL OR claim_token = ? OR claimed_at < ?)
			  AND NOT EXISTS (
					SELECT 1 FROM cars c
					WHERE c.id = expense_schedules.car_id AND c.active = 0
			  )
			ORDER BY id ASC
			LIMIT ?
		)
	`
	_, err = sqlTx.ExecContext(ctx, claimQuery,
		string(claim), now.Format(time.RFC3339),
		string(schedule.StatusActive), afterID, day, day, day,
		string(claim), expiry, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due schedules: %w", err)
	}

	rows, err := sqlTx.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM expense_schedules
		 WHERE claim_token = ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		string(claim), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed schedules: %w", err)
	}
	defer rows.Close()

	var out []schedule.ExpenseSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sched)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, sqlTx.Commit()
}

func (s *Store) ClaimSchedule(ctx context.Context, id string, claim schedule.ClaimToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	expiry := now.Add(-s.ClaimTTL).Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		UPDATE expense_schedules
		SET claim_token = ?, claimed_at = ?
		WHERE id = ?
		  AND (claim_token IS NULL OR claim_token = ? OR claimed_at < ?)
	`, string(claim), now.Format(time.RFC3339), id, string(claim), expiry)
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ReleaseClaim(ctx context.Context, claim schedule.ClaimToken, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(claim))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE expense_schedules
		SET claim_token = NULL, claimed_at = NULL
		WHERE claim_token = ? AND id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to release claims: %w", err)
	}
	return nil
}

// =============================================================================
// GENERATED EXPENSES
// =============================================================================

const expenseColumns = `id, account_id, car_id, user_id, schedule_id, when_done,
	cost_work, cost_parts, tax, fees, subtotal, total_price,
	where_done, comments, kind_id, currency,
	created_at, updated_at, removed_at`

func (s *Store) ListGeneratedExpenses(ctx context.Context, scheduleID, accountID string, from, to recurrence.DatePoint) ([]schedule.GeneratedExpense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listExpenses(ctx, s.db, scheduleID, accountID, from, to)
}

func (s *Store) listExpenses(ctx context.Context, q querier, scheduleID, accountID string, from, to recurrence.DatePoint) ([]schedule.GeneratedExpense, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE schedule_id = ? AND account_id = ? AND removed_at IS NULL
		  AND when_done >= ? AND when_done <= ?
		ORDER BY when_done ASC
	`, scheduleID, accountID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var out []schedule.GeneratedExpense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *exp)
	}
	return out, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, e *schedule.GeneratedExpense) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createExpense(ctx, s.db, e)
}

func (s *Store) createExpense(ctx context.Context, q querier, e *schedule.GeneratedExpense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.AccountID, e.CarID, e.UserID, e.ScheduleID, e.WhenDone.String(),
		nullDecimal(e.Template.CostWork), nullDecimal(e.Template.CostParts),
		nullDecimal(e.Template.Tax), nullDecimal(e.Template.Fees),
		nullDecimal(e.Template.Subtotal), nullDecimal(e.Template.TotalPrice),
		e.Template.WhereDone, e.Template.Comments, e.Template.KindID, e.Currency,
		now.Format(time.RFC3339), now.Format(time.RFC3339), nil,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", fmt.Errorf("expense already exists for schedule %s on %s: %w", e.ScheduleID, e.WhenDone, err)
		}
		return "", fmt.Errorf("failed to insert expense: %w", err)
	}
	return e.ID, nil
}

func (s *Store) UpdateExpense(ctx context.Context, id string, upd schedule.ExpenseUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateExpense(ctx, s.db, id, upd)
}

func (s *Store) updateExpense(ctx context.Context, q querier, id string, upd schedule.ExpenseUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	if t := upd.Template; t != nil {
		sets = append(sets,
			"cost_work = ?", "cost_parts = ?", "tax = ?", "fees = ?",
			"subtotal = ?", "total_price = ?",
			"where_done = ?", "comments = ?", "kind_id = ?")
		args = append(args,
			nullDecimal(t.CostWork), nullDecimal(t.CostParts),
			nullDecimal(t.Tax), nullDecimal(t.Fees),
			nullDecimal(t.Subtotal), nullDecimal(t.TotalPrice),
			t.WhereDone, t.Comments, t.KindID)
	}
	if upd.Currency != nil {
		sets = append(sets, "currency = ?")
		args = append(args, *upd.Currency)
	}

	args = append(args, id)
	_, err := q.ExecContext(ctx,
		`UPDATE expenses SET `+strings.Join(sets, ", ")+` WHERE id = ? AND removed_at IS NULL`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return nil
}

func (s *Store) SoftDeleteExpense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteExpense(ctx, s.db, id)
}

func (s *Store) softDeleteExpense(ctx context.Context, q querier, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := q.ExecContext(ctx,
		`UPDATE expenses SET removed_at = ?, updated_at = ? WHERE id = ? AND removed_at IS NULL`,
		now, now, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete expense: %w", err)
	}
	return nil
}

// =============================================================================
// CARS
// =============================================================================

// SaveCar upserts a vehicle record. Unknown vehicles count as active for
// due selection; only an explicit active=0 row excludes a schedule.
func (s *Store) SaveCar(ctx context.Context, id, accountID, name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cars (id, account_id, name, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id,
			name = excluded.name, active = excluded.active
	`, id, accountID, name, activeInt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save car: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (schedule.TxStorage)
// =============================================================================

// WithTx executes fn within a database transaction. fn's Storage routes all
// statements through the transaction; an error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(schedule.Storage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) CreateSchedule(ctx context.Context, sched *schedule.ExpenseSchedule) error {
	return ts.parent.createSchedule(ctx, ts.tx, sched)
}

func (ts *txStore) GetSchedule(ctx context.Context, id string) (*schedule.ExpenseSchedule, error) {
	return ts.parent.getSchedule(ctx, ts.tx, id)
}

func (ts *txStore) ListSchedules(ctx context.Context, accountID string) ([]schedule.ExpenseSchedule, error) {
	return ts.parent.listSchedules(ctx, ts.tx, accountID)
}

func (ts *txStore) UpdateSchedule(ctx context.Context, id, accountID string, upd schedule.ScheduleUpdate) error {
	return ts.parent.updateSchedule(ctx, ts.tx, id, accountID, upd)
}

// Claim operations never run inside a mutation transaction; they own their
// own short transactions on the parent.
func (ts *txStore) ListDueSchedules(context.Context, recurrence.DatePoint, string, int, schedule.ClaimToken) ([]schedule.ExpenseSchedule, error) {
	return nil, fmt.Errorf("ListDueSchedules is not available inside a transaction")
}

func (ts *txStore) ClaimSchedule(context.Context, string, schedule.ClaimToken) (bool, error) {
	return false, fmt.Errorf("ClaimSchedule is not available inside a transaction")
}

func (ts *txStore) ReleaseClaim(context.Context, schedule.ClaimToken, []string) error {
	return fmt.Errorf("ReleaseClaim is not available inside a transaction")
}

func (ts *txStore) ListGeneratedExpenses(ctx context.Context, scheduleID, accountID string, from, to recurrence.DatePoint) ([]schedule.GeneratedExpense, error) {
	return ts.parent.listExpenses(ctx, ts.tx, scheduleID, accountID, from, to)
}

func (ts *txStore) CreateExpense(ctx context.Context, e *schedule.GeneratedExpense) (string, error) {
	return ts.parent.createExpense(ctx, ts.tx, e)
}

func (ts *txStore) UpdateExpense(ctx context.Context, id string, upd schedule.ExpenseUpdate) error {
	return ts.parent.updateExpense(ctx, ts.tx, id, upd)
}

func (ts *txStore) SoftDeleteExpense(ctx context.Context, id string) error {
	return ts.parent.softDeleteExpense(ctx, ts.tx, id)
}

// =============================================================================
// SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*schedule.ExpenseSchedule, error) {
	var (
		sched                                    schedule.ExpenseSchedule
		schedType, status, startAt               string
		endAt, lastAddedAt, nextAt               sql.NullString
		costWork, costParts, tax, fees           sql.NullString
		subtotal, totalPrice                     sql.NullString
		createdAt, updatedAt                     string
		removedAt                                sql.NullString
	)

	err := row.Scan(
		&sched.ID, &sched.AccountID, &sched.CarID, &sched.UserID,
		&schedType, &sched.ScheduleDays,
		&startAt, &endAt, &lastAddedAt, &nextAt, &sched.LastCreatedExpenseID, &status,
		&costWork, &costParts, &tax, &fees, &subtotal, &totalPrice,
		&sched.Template.WhereDone, &sched.Template.Comments, &sched.Template.KindID, &sched.Currency,
		&sched.CreatedBy, &createdAt, &sched.UpdatedBy, &updatedAt, &removedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	sched.Type = recurrence.ScheduleType(schedType)
	sched.Status = schedule.Status(status)
	if sched.StartAt, err = recurrence.ParseDate(startAt); err != nil {
		return nil, fmt.Errorf("corrupt start_at %q: %w", startAt, err)
	}
	sched.EndAt = parseNullDate(endAt)
	sched.LastAddedAt = parseNullDate(lastAddedAt)
	sched.NextScheduledAt = parseNullDate(nextAt)

	sched.Template.CostWork = parseNullDecimal(costWork)
	sched.Template.CostParts = parseNullDecimal(costParts)
	sched.Template.Tax = parseNullDecimal(tax)
	sched.Template.Fees = parseNullDecimal(fees)
	sched.Template.Subtotal = parseNullDecimal(subtotal)
	sched.Template.TotalPrice = parseNullDecimal(totalPrice)

	sched.CreatedAt = parseTimestamp(createdAt)
	sched.UpdatedAt = parseTimestamp(updatedAt)
	sched.RemovedAt = parseNullTime(removedAt)

	return &sched, nil
}

func scanExpense(row rowScanner) (*schedule.GeneratedExpense, error) {
	var (
		e                              schedule.GeneratedExpense
		whenDone                       string
		costWork, costParts, tax, fees sql.NullString
		subtotal, totalPrice           sql.NullString
		createdAt, updatedAt           string
		removedAt                      sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.AccountID, &e.CarID, &e.UserID, &e.ScheduleID, &whenDone,
		&costWork, &costParts, &tax, &fees, &subtotal, &totalPrice,
		&e.Template.WhereDone, &e.Template.Comments, &e.Template.KindID, &e.Currency,
		&createdAt, &updatedAt, &removedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}

	if e.WhenDone, err = recurrence.ParseDate(whenDone); err != nil {
		return nil, fmt.Errorf("corrupt when_done %q: %w", whenDone, err)
	}
	e.Template.CostWork = parseNullDecimal(costWork)
	e.Template.CostParts = parseNullDecimal(costParts)
	e.Template.Tax = parseNullDecimal(tax)
	e.Template.Fees = parseNullDecimal(fees)
	e.Template.Subtotal = parseNullDecimal(subtotal)
	e.Template.TotalPrice = parseNullDecimal(totalPrice)
	e.CreatedAt = parseTimestamp(createdAt)
	e.UpdatedAt = parseTimestamp(updatedAt)
	e.RemovedAt = parseNullTime(removedAt)

	return &e, nil
}

// =============================================================================
// NULLABLE CONVERSIONS
// =============================================================================

func nullDate(d *recurrence.DatePoint) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDate(s sql.NullString) *recurrence.DatePoint {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := recurrence.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

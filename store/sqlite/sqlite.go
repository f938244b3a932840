/*
Package sqlite provides a SQLite-backed implementation of vacation.TxStore.

PURPOSE:
  Implements the full persistence surface of the vacation engine (users,
  balances, accrual ledger, requests, relationships, rollover runs, audit
  log, holiday calendar) using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

UNIQUENESS ENFORCEMENT:
  The invariants the engine relies on live in the schema, not in code:
  - idx_balances_user_year:     one balance row per (user, year)
  - idx_accrual_user_month:     one accrual ledger row per (user, year, month)
  - rollover_runs PRIMARY KEY:  carryover applied at most once per year

  Constraint violations on insert are mapped to the engine's duplicate
  errors (ErrDuplicateBalance, ErrDuplicateAccrual,
  ErrRolloverAlreadyApplied) so callers re-read instead of double-counting.

DECIMAL STORAGE:
  All day amounts are stored as decimal strings, never REAL. 20/12 has no
  exact float representation; round-tripping through TEXT keeps the
  arithmetic exact.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/vacation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := vacation.NewAccrualEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - vacation/store.go: Interface definitions and uniqueness contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// Store implements vacation.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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
	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		employment_date TEXT,
		country_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);

	-- Manager-employee relationships
	CREATE TABLE IF NOT EXISTS manager_employees (
		manager_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (manager_id, employee_id)
	);

	CREATE INDEX IF NOT EXISTS idx_manager_employees_employee
		ON manager_employees(employee_id);

	-- Balances: only the authoritative adjusted total is persisted
	CREATE TABLE IF NOT EXISTS vacation_balances (
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		adjusted TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one balance row per user per year
	CREATE UNIQUE INDEX IF NOT EXISTS idx_balances_user_year
		ON vacation_balances(user_id, year);

	-- Accrual ledger (append-only; rows are never updated)
	CREATE TABLE IF NOT EXISTS vacation_accrual_logs (
		user_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		days_accrued TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: a month is accrued exactly once per user. Concurrent
	-- backfills race to this index; the loser re-reads the winner's row.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accrual_user_month
		ON vacation_accrual_logs(user_id, year, month);

	-- Vacation requests
	CREATE TABLE IF NOT EXISTS vacation_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days INTEGER NOT NULL,
		status TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT,
		approved_by_id TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user
		ON vacation_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON vacation_requests(status);

	-- Overlap checks and year sums (hot path)
	CREATE INDEX IF NOT EXISTS idx_requests_user_dates
		ON vacation_requests(user_id, start_date, end_date);

	-- Rollover runs: the PRIMARY KEY on year is the double-apply guard
	CREATE TABLE IF NOT EXISTS rollover_runs (
		year INTEGER PRIMARY KEY,
		users_processed INTEGER NOT NULL,
		carried_over TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		target_user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		details_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_target
		ON audit_logs(target_user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_actor
		ON audit_logs(actor_id, created_at);

	-- Holiday calendar
	CREATE TABLE IF NOT EXISTS countries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		country_id TEXT NOT NULL,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(country_id, date, name);
	CREATE INDEX IF NOT EXISTS idx_holidays_country_date
		ON holidays(country_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx, so every operation can
// run against the connection or inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (vacation.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store handed
// to fn routes every operation through the transaction; nothing is visible
// to other callers until commit.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore is the transaction-scoped view of the store. It must not touch
// the parent mutex: WithTx already holds it.
type txStore struct {
	q *sql.Tx
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id string) (*vacation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func (ts *txStore) GetUser(ctx context.Context, id string) (*vacation.User, error) {
	return getUser(ctx, ts.q, id)
}

func getUser(ctx context.Context, q querier, id string) (*vacation.User, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, email, role, employment_date, country_id, created_at
		FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]vacation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(ctx, s.db, false)
}

func (ts *txStore) ListUsers(ctx context.Context) ([]vacation.User, error) {
	return listUsers(ctx, ts.q, false)
}

func (s *Store) ListEmployedUsers(ctx context.Context) ([]vacation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(ctx, s.db, true)
}

func (ts *txStore) ListEmployedUsers(ctx context.Context) ([]vacation.User, error) {
	return listUsers(ctx, ts.q, true)
}

func listUsers(ctx context.Context, q querier, employedOnly bool) ([]vacation.User, error) {
	query := `
		SELECT id, name, email, role, employment_date, country_id, created_at
		FROM users`
	if employedOnly {
		query += ` WHERE employment_date IS NOT NULL`
	}
	query += ` ORDER BY name`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []vacation.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*vacation.User, error) {
	var (
		u              vacation.User
		role           string
		employmentDate sql.NullString
		countryID      sql.NullString
		createdAt      string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &employmentDate, &countryID, &createdAt); err != nil {
		return nil, err
	}

	u.Role = vacation.Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if employmentDate.Valid {
		d, err := vacation.ParseDate(employmentDate.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt employment date for %s: %w", u.ID, err)
		}
		u.EmploymentDate = &d
	}
	if countryID.Valid {
		u.CountryID = &countryID.String
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, u vacation.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveUser(ctx, s.db, u)
}

func (ts *txStore) SaveUser(ctx context.Context, u vacation.User) error {
	return saveUser(ctx, ts.q, u)
}

func saveUser(ctx context.Context, q querier, u vacation.User) error {
	var employmentDate *string
	if u.EmploymentDate != nil {
		d := u.EmploymentDate.String()
		employmentDate = &d
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, employment_date, country_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			employment_date = excluded.employment_date,
			country_id = excluded.country_id`,
		u.ID, u.Name, u.Email, string(u.Role), employmentDate, u.CountryID,
		formatTime(u.CreatedAt),
	)
	return err
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, userID string, year int) (*vacation.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalance(ctx, s.db, userID, year)
}

func (ts *txStore) GetBalance(ctx context.Context, userID string, year int) (*vacation.Balance, error) {
	return getBalance(ctx, ts.q, userID, year)
}

func getBalance(ctx context.Context, q querier, userID string, year int) (*vacation.Balance, error) {
	var (
		b                    vacation.Balance
		adjusted             string
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, year, adjusted, created_at, updated_at
		FROM vacation_balances WHERE user_id = ? AND year = ?`,
		userID, year,
	).Scan(&b.UserID, &b.Year, &adjusted, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b.Adjusted, err = decimal.NewFromString(adjusted)
	if err != nil {
		return nil, fmt.Errorf("corrupt adjusted balance for %s/%d: %w", userID, year, err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

func (s *Store) CreateBalance(ctx context.Context, b vacation.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createBalance(ctx, s.db, b)
}

func (ts *txStore) CreateBalance(ctx context.Context, b vacation.Balance) error {
	return createBalance(ctx, ts.q, b)
}

func createBalance(ctx context.Context, q querier, b vacation.Balance) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO vacation_balances (user_id, year, adjusted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.UserID, b.Year, b.Adjusted.String(),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return vacation.ErrDuplicateBalance
		}
		return fmt.Errorf("failed to create balance: %w", err)
	}
	return nil
}

func (s *Store) IncrementAdjusted(ctx context.Context, userID string, year int, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return incrementAdjusted(ctx, s.db, userID, year, delta)
}

func (ts *txStore) IncrementAdjusted(ctx context.Context, userID string, year int, delta decimal.Decimal) error {
	return incrementAdjusted(ctx, ts.q, userID, year, delta)
}

// incrementAdjusted is read-modify-write: the adjusted total is a decimal
// string, so the addition happens in Go, not SQL. Callers hold either the
// store mutex or a transaction, which serializes the sequence.
func incrementAdjusted(ctx context.Context, q querier, userID string, year int, delta decimal.Decimal) error {
	current, err := getBalance(ctx, q, userID, year)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if current == nil {
		_, err := q.ExecContext(ctx, `
			INSERT INTO vacation_balances (user_id, year, adjusted, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			userID, year, delta.String(), now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create balance: %w", err)
		}
		return nil
	}

	_, err = q.ExecContext(ctx, `
		UPDATE vacation_balances SET adjusted = ?, updated_at = ?
		WHERE user_id = ? AND year = ?`,
		current.Adjusted.Add(delta).String(), now, userID, year,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

// =============================================================================
// ACCRUAL LEDGER
// =============================================================================

func (s *Store) GetAccrual(ctx context.Context, userID string, year, month int) (*vacation.AccrualEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccrual(ctx, s.db, userID, year, month)
}

func (ts *txStore) GetAccrual(ctx context.Context, userID string, year, month int) (*vacation.AccrualEntry, error) {
	return getAccrual(ctx, ts.q, userID, year, month)
}

func getAccrual(ctx context.Context, q querier, userID string, year, month int) (*vacation.AccrualEntry, error) {
	var (
		e           vacation.AccrualEntry
		daysAccrued string
		createdAt   string
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, year, month, days_accrued, created_at
		FROM vacation_accrual_logs WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month,
	).Scan(&e.UserID, &e.Year, &e.Month, &daysAccrued, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.DaysAccrued, err = decimal.NewFromString(daysAccrued)
	if err != nil {
		return nil, fmt.Errorf("corrupt accrual for %s %d-%02d: %w", userID, year, month, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

func (s *Store) ListAccruals(ctx context.Context, userID string) ([]vacation.AccrualEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccruals(ctx, s.db, userID)
}

func (ts *txStore) ListAccruals(ctx context.Context, userID string) ([]vacation.AccrualEntry, error) {
	return listAccruals(ctx, ts.q, userID)
}

func listAccruals(ctx context.Context, q querier, userID string) ([]vacation.AccrualEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, year, month, days_accrued, created_at
		FROM vacation_accrual_logs
		WHERE user_id = ?
		ORDER BY year ASC, month ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []vacation.AccrualEntry
	for rows.Next() {
		var (
			e           vacation.AccrualEntry
			daysAccrued string
			createdAt   string
		)
		if err := rows.Scan(&e.UserID, &e.Year, &e.Month, &daysAccrued, &createdAt); err != nil {
			return nil, err
		}
		e.DaysAccrued, err = decimal.NewFromString(daysAccrued)
		if err != nil {
			return nil, fmt.Errorf("corrupt accrual for %s %d-%02d: %w", e.UserID, e.Year, e.Month, err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateAccrual(ctx context.Context, e vacation.AccrualEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createAccrual(ctx, s.db, e)
}

func (ts *txStore) CreateAccrual(ctx context.Context, e vacation.AccrualEntry) error {
	return createAccrual(ctx, ts.q, e)
}

func createAccrual(ctx context.Context, q querier, e vacation.AccrualEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO vacation_accrual_logs (user_id, year, month, days_accrued, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Year, e.Month, e.DaysAccrued.String(), formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return vacation.ErrDuplicateAccrual
		}
		return fmt.Errorf("failed to log accrual: %w", err)
	}
	return nil
}

// =============================================================================
// VACATION REQUESTS
// =============================================================================

const requestColumns = `id, user_id, start_date, end_date, days, status, comment,
	rejection_reason, approved_by_id, approved_at, created_at, updated_at`

func (s *Store) GetRequest(ctx context.Context, id string) (*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func (ts *txStore) GetRequest(ctx context.Context, id string) (*vacation.Request, error) {
	return getRequest(ctx, ts.q, id)
}

func getRequest(ctx context.Context, q querier, id string) (*vacation.Request, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM vacation_requests WHERE id = ?`, id)

	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListRequests(ctx context.Context) ([]vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRequests(ctx, s.db,
		`SELECT `+requestColumns+` FROM vacation_requests ORDER BY created_at DESC`)
}

func (ts *txStore) ListRequests(ctx context.Context) ([]vacation.Request, error) {
	return queryRequests(ctx, ts.q,
		`SELECT `+requestColumns+` FROM vacation_requests ORDER BY created_at DESC`)
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID string) ([]vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRequests(ctx, s.db,
		`SELECT `+requestColumns+` FROM vacation_requests WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
}

func (ts *txStore) ListRequestsByUser(ctx context.Context, userID string) ([]vacation.Request, error) {
	return queryRequests(ctx, ts.q,
		`SELECT `+requestColumns+` FROM vacation_requests WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
}

func (s *Store) ListRequestsInYear(ctx context.Context, userID string, year int, statuses []vacation.RequestStatus) ([]vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequestsInYear(ctx, s.db, userID, year, statuses)
}

func (ts *txStore) ListRequestsInYear(ctx context.Context, userID string, year int, statuses []vacation.RequestStatus) ([]vacation.Request, error) {
	return listRequestsInYear(ctx, ts.q, userID, year, statuses)
}

// listRequestsInYear relies on ISO date strings comparing lexicographically,
// so BETWEEN-style bounds work directly on the TEXT columns.
func listRequestsInYear(ctx context.Context, q querier, userID string, year int, statuses []vacation.RequestStatus) ([]vacation.Request, error) {
	placeholders, args := statusArgs(statuses)
	args = append([]any{userID}, args...)
	args = append(args,
		vacation.StartOfYear(year).String(),
		vacation.EndOfYear(year).String(),
	)

	return queryRequests(ctx, q, `
		SELECT `+requestColumns+`
		FROM vacation_requests
		WHERE user_id = ? AND status IN (`+placeholders+`)
		  AND start_date >= ? AND end_date <= ?
		ORDER BY start_date ASC`, args...)
}

func (s *Store) FindOverlapping(ctx context.Context, userID string, start, end vacation.Date, statuses []vacation.RequestStatus) (*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findOverlapping(ctx, s.db, userID, start, end, statuses)
}

func (ts *txStore) FindOverlapping(ctx context.Context, userID string, start, end vacation.Date, statuses []vacation.RequestStatus) (*vacation.Request, error) {
	return findOverlapping(ctx, ts.q, userID, start, end, statuses)
}

func findOverlapping(ctx context.Context, q querier, userID string, start, end vacation.Date, statuses []vacation.RequestStatus) (*vacation.Request, error) {
	placeholders, args := statusArgs(statuses)
	args = append([]any{userID}, args...)
	args = append(args, end.String(), start.String())

	// Inclusive interval intersection: existing.start <= new.end AND
	// new.start <= existing.end.
	row := q.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM vacation_requests
		WHERE user_id = ? AND status IN (`+placeholders+`)
		  AND start_date <= ? AND end_date >= ?
		LIMIT 1`, args...)

	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) CreateRequest(ctx context.Context, r vacation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createRequest(ctx, s.db, r)
}

func (ts *txStore) CreateRequest(ctx context.Context, r vacation.Request) error {
	return createRequest(ctx, ts.q, r)
}

func createRequest(ctx context.Context, q querier, r vacation.Request) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO vacation_requests
		(id, user_id, start_date, end_date, days, status, comment,
		 rejection_reason, approved_by_id, approved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.StartDate.String(), r.EndDate.String(), r.Days,
		string(r.Status), r.Comment, r.RejectionReason, r.ApprovedByID,
		formatTimePtr(r.ApprovedAt), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (s *Store) UpdateRequest(ctx context.Context, r vacation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateRequest(ctx, s.db, r)
}

func (ts *txStore) UpdateRequest(ctx context.Context, r vacation.Request) error {
	return updateRequest(ctx, ts.q, r)
}

func updateRequest(ctx context.Context, q querier, r vacation.Request) error {
	result, err := q.ExecContext(ctx, `
		UPDATE vacation_requests SET
			status = ?,
			rejection_reason = ?,
			approved_by_id = ?,
			approved_at = ?,
			updated_at = ?
		WHERE id = ?`,
		string(r.Status), r.RejectionReason, r.ApprovedByID,
		formatTimePtr(r.ApprovedAt), formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return vacation.ErrRequestNotFound
	}
	return nil
}

func queryRequests(ctx context.Context, q querier, query string, args ...any) ([]vacation.Request, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []vacation.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func scanRequest(row rowScanner) (*vacation.Request, error) {
	var (
		r                    vacation.Request
		startDate, endDate   string
		status               string
		rejectionReason      sql.NullString
		approvedByID         sql.NullString
		approvedAt           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.UserID, &startDate, &endDate, &r.Days, &status,
		&r.Comment, &rejectionReason, &approvedByID, &approvedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.StartDate, err = vacation.ParseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("corrupt start date on request %s: %w", r.ID, err)
	}
	r.EndDate, err = vacation.ParseDate(endDate)
	if err != nil {
		return nil, fmt.Errorf("corrupt end date on request %s: %w", r.ID, err)
	}
	r.Status = vacation.RequestStatus(status)
	if rejectionReason.Valid {
		r.RejectionReason = &rejectionReason.String
	}
	if approvedByID.Valid {
		r.ApprovedByID = &approvedByID.String
	}
	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, approvedAt.String)
		r.ApprovedAt = &t
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// =============================================================================
// MANAGER RELATIONSHIPS
// =============================================================================

func (s *Store) HasRelationship(ctx context.Context, managerID, employeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasRelationship(ctx, s.db, managerID, employeeID)
}

func (ts *txStore) HasRelationship(ctx context.Context, managerID, employeeID string) (bool, error) {
	return hasRelationship(ctx, ts.q, managerID, employeeID)
}

func hasRelationship(ctx context.Context, q querier, managerID, employeeID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM manager_employees WHERE manager_id = ? AND employee_id = ?`,
		managerID, employeeID,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) SaveRelationship(ctx context.Context, rel vacation.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRelationship(ctx, s.db, rel)
}

func (ts *txStore) SaveRelationship(ctx context.Context, rel vacation.Relationship) error {
	return saveRelationship(ctx, ts.q, rel)
}

func saveRelationship(ctx context.Context, q querier, rel vacation.Relationship) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO manager_employees (manager_id, employee_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(manager_id, employee_id) DO NOTHING`,
		rel.ManagerID, rel.EmployeeID, formatTime(rel.CreatedAt),
	)
	return err
}

func (s *Store) DeleteRelationship(ctx context.Context, managerID, employeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRelationship(ctx, s.db, managerID, employeeID)
}

func (ts *txStore) DeleteRelationship(ctx context.Context, managerID, employeeID string) error {
	return deleteRelationship(ctx, ts.q, managerID, employeeID)
}

func deleteRelationship(ctx context.Context, q querier, managerID, employeeID string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM manager_employees WHERE manager_id = ? AND employee_id = ?`,
		managerID, employeeID,
	)
	return err
}

func (s *Store) ListTeam(ctx context.Context, managerID string) ([]vacation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTeam(ctx, s.db, managerID)
}

func (ts *txStore) ListTeam(ctx context.Context, managerID string) ([]vacation.User, error) {
	return listTeam(ctx, ts.q, managerID)
}

func listTeam(ctx context.Context, q querier, managerID string) ([]vacation.User, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.role, u.employment_date, u.country_id, u.created_at
		FROM users u
		JOIN manager_employees me ON me.employee_id = u.id
		WHERE me.manager_id = ?
		ORDER BY u.name`, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var team []vacation.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		team = append(team, *user)
	}
	return team, rows.Err()
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

func (s *Store) GetRolloverRun(ctx context.Context, year int) (*vacation.RolloverRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRolloverRun(ctx, s.db, year)
}

func (ts *txStore) GetRolloverRun(ctx context.Context, year int) (*vacation.RolloverRun, error) {
	return getRolloverRun(ctx, ts.q, year)
}

func getRolloverRun(ctx context.Context, q querier, year int) (*vacation.RolloverRun, error) {
	var (
		run                    vacation.RolloverRun
		carriedOver            string
		startedAt, completedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT year, users_processed, carried_over, started_at, completed_at
		FROM rollover_runs WHERE year = ?`, year,
	).Scan(&run.Year, &run.UsersProcessed, &carriedOver, &startedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.CarriedOver, err = decimal.NewFromString(carriedOver)
	if err != nil {
		return nil, fmt.Errorf("corrupt rollover run for %d: %w", year, err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
	return &run, nil
}

func (s *Store) SaveRolloverRun(ctx context.Context, run vacation.RolloverRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRolloverRun(ctx, s.db, run)
}

func (ts *txStore) SaveRolloverRun(ctx context.Context, run vacation.RolloverRun) error {
	return saveRolloverRun(ctx, ts.q, run)
}

func saveRolloverRun(ctx context.Context, q querier, run vacation.RolloverRun) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO rollover_runs (year, users_processed, carried_over, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.Year, run.UsersProcessed, run.CarriedOver.String(),
		formatTime(run.StartedAt), formatTime(run.CompletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return vacation.ErrRolloverAlreadyApplied
		}
		return fmt.Errorf("failed to save rollover run: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry vacation.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, entry)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry vacation.AuditEntry) error {
	return appendAudit(ctx, ts.q, entry)
}

func appendAudit(ctx context.Context, q querier, entry vacation.AuditEntry) error {
	detailsJSON, _ := json.Marshal(entry.Details)

	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, target_user_id, action, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorID, entry.TargetUserID, string(entry.Action),
		string(detailsJSON), formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter vacation.AuditFilter) ([]vacation.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryAudit(ctx, s.db, filter)
}

func (ts *txStore) QueryAudit(ctx context.Context, filter vacation.AuditFilter) ([]vacation.AuditEntry, error) {
	return queryAudit(ctx, ts.q, filter)
}

func queryAudit(ctx context.Context, q querier, filter vacation.AuditFilter) ([]vacation.AuditEntry, error) {
	query := `
		SELECT id, actor_id, target_user_id, action, details_json, created_at
		FROM audit_logs WHERE 1=1`
	var args []any

	if filter.ActorID != "" {
		query += ` AND actor_id = ?`
		args = append(args, filter.ActorID)
	}
	if filter.TargetUserID != "" {
		query += ` AND target_user_id = ?`
		args = append(args, filter.TargetUserID)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(filter.Action))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []vacation.AuditEntry
	for rows.Next() {
		var (
			entry       vacation.AuditEntry
			action      string
			detailsJSON sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.TargetUserID,
			&action, &detailsJSON, &createdAt); err != nil {
			return nil, err
		}
		entry.Action = vacation.AuditAction(action)
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if detailsJSON.Valid && detailsJSON.String != "" {
			json.Unmarshal([]byte(detailsJSON.String), &entry.Details)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func (s *Store) GetCountry(ctx context.Context, id string) (*vacation.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCountry(ctx, s.db, id)
}

func (ts *txStore) GetCountry(ctx context.Context, id string) (*vacation.Country, error) {
	return getCountry(ctx, ts.q, id)
}

func getCountry(ctx context.Context, q querier, id string) (*vacation.Country, error) {
	var (
		c         vacation.Country
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, code, created_at FROM countries WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Code, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (s *Store) ListCountries(ctx context.Context) ([]vacation.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listCountries(ctx, s.db)
}

func (ts *txStore) ListCountries(ctx context.Context) ([]vacation.Country, error) {
	return listCountries(ctx, ts.q)
}

func listCountries(ctx context.Context, q querier) ([]vacation.Country, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, code, created_at FROM countries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []vacation.Country
	for rows.Next() {
		var (
			c         vacation.Country
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

func (s *Store) SaveCountry(ctx context.Context, c vacation.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCountry(ctx, s.db, c)
}

func (ts *txStore) SaveCountry(ctx context.Context, c vacation.Country) error {
	return saveCountry(ctx, ts.q, c)
}

func saveCountry(ctx context.Context, q querier, c vacation.Country) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO countries (id, name, code, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code`,
		c.ID, c.Name, c.Code, formatTime(c.CreatedAt),
	)
	return err
}

func (s *Store) ListHolidays(ctx context.Context, countryID string, year int) ([]vacation.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHolidays(ctx, s.db, countryID, year)
}

func (ts *txStore) ListHolidays(ctx context.Context, countryID string, year int) ([]vacation.Holiday, error) {
	return listHolidays(ctx, ts.q, countryID, year)
}

func listHolidays(ctx context.Context, q querier, countryID string, year int) ([]vacation.Holiday, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, country_id, date, name, created_at
		FROM holidays
		WHERE country_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		countryID,
		vacation.StartOfYear(year).String(),
		vacation.EndOfYear(year).String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []vacation.Holiday
	for rows.Next() {
		var (
			h         vacation.Holiday
			date      string
			createdAt string
		)
		if err := rows.Scan(&h.ID, &h.CountryID, &date, &h.Name, &createdAt); err != nil {
			return nil, err
		}
		h.Date, err = vacation.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("corrupt holiday date on %s: %w", h.ID, err)
		}
		h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

func (s *Store) SaveHoliday(ctx context.Context, h vacation.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHoliday(ctx, s.db, h)
}

func (ts *txStore) SaveHoliday(ctx context.Context, h vacation.Holiday) error {
	return saveHoliday(ctx, ts.q, h)
}

func saveHoliday(ctx context.Context, q querier, h vacation.Holiday) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO holidays (id, country_id, date, name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(country_id, date, name) DO NOTHING`,
		h.ID, h.CountryID, h.Date.String(), h.Name, formatTime(h.CreatedAt),
	)
	return err
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteHoliday(ctx, s.db, id)
}

func (ts *txStore) DeleteHoliday(ctx context.Context, id string) error {
	return deleteHoliday(ctx, ts.q, id)
}

func deleteHoliday(ctx context.Context, q querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM holidays WHERE id = ?`, id)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"vacation_requests", "vacation_accrual_logs", "vacation_balances",
		"rollover_runs", "audit_logs", "manager_employees", "holidays",
		"countries", "users",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func statusArgs(statuses []vacation.RequestStatus) (string, []any) {
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}
	return strings.Join(placeholders, ", "), args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

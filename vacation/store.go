/*
store.go - Persistence interfaces for the vacation engine

PURPOSE:
  Defines the interface between the domain logic and the database. Different
  implementations can use SQLite or in-memory storage; the engine never sees
  SQL.

KEY INTERFACES:
  Store:   Everything the engine needs (users, balances, accrual ledger,
           requests, relationships, rollover runs, audit log, holidays)
  TxStore: Store plus WithTx for atomic multi-write operations

UNIQUENESS CONTRACTS (enforced at the storage layer, not in application code):
  - vacation_balances:     UNIQUE (user_id, year)
  - vacation_accrual_logs: UNIQUE (user_id, year, month)
  - rollover_runs:         UNIQUE (year)

  Implementations map constraint violations on insert to ErrDuplicateBalance,
  ErrDuplicateAccrual and ErrRolloverAlreadyApplied so callers can re-read
  instead of double-counting.

NOT-FOUND CONVENTION:
  Single-row getters return (nil, nil) when the row does not exist. Domain
  code decides whether that is an error.

SEE ALSO:
  - store/sqlite: production implementation
  - store/memory: in-memory implementation for tests
*/
package vacation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Persistence operations used by the engine
// =============================================================================

type Store interface {
	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// ListEmployedUsers returns users with a non-null employment date,
	// the population accrual and rollover iterate over.
	ListEmployedUsers(ctx context.Context) ([]User, error)
	SaveUser(ctx context.Context, u User) error

	// Balances (authoritative `adjusted` only)
	GetBalance(ctx context.Context, userID string, year int) (*Balance, error)
	CreateBalance(ctx context.Context, b Balance) error
	// IncrementAdjusted adds delta to the year's adjusted total, creating
	// the row if absent.
	IncrementAdjusted(ctx context.Context, userID string, year int, delta decimal.Decimal) error

	// Accrual ledger (append-only; rows are never updated)
	GetAccrual(ctx context.Context, userID string, year, month int) (*AccrualEntry, error)
	ListAccruals(ctx context.Context, userID string) ([]AccrualEntry, error)
	CreateAccrual(ctx context.Context, e AccrualEntry) error

	// Requests
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context) ([]Request, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]Request, error)
	// ListRequestsInYear returns the user's requests in the given statuses
	// whose [start, end] range falls entirely within the calendar year.
	ListRequestsInYear(ctx context.Context, userID string, year int, statuses []RequestStatus) ([]Request, error)
	// FindOverlapping returns one request for the user in the given statuses
	// whose range intersects [start, end], or nil if none.
	FindOverlapping(ctx context.Context, userID string, start, end Date, statuses []RequestStatus) (*Request, error)
	CreateRequest(ctx context.Context, r Request) error
	UpdateRequest(ctx context.Context, r Request) error

	// Manager relationships
	HasRelationship(ctx context.Context, managerID, employeeID string) (bool, error)
	SaveRelationship(ctx context.Context, rel Relationship) error
	DeleteRelationship(ctx context.Context, managerID, employeeID string) error
	ListTeam(ctx context.Context, managerID string) ([]User, error)

	// Rollover runs (double-apply guard)
	GetRolloverRun(ctx context.Context, year int) (*RolloverRun, error)
	SaveRolloverRun(ctx context.Context, run RolloverRun) error

	// Audit log (append-only)
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)

	// Holiday calendar
	GetCountry(ctx context.Context, id string) (*Country, error)
	ListCountries(ctx context.Context) ([]Country, error)
	SaveCountry(ctx context.Context, c Country) error
	ListHolidays(ctx context.Context, countryID string, year int) ([]Holiday, error)
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic multi-write operations
// =============================================================================

// TxStore wraps Store with transaction support. Balance-check-then-write
// sequences (request creation, approval, adjustments, rollover) run inside
// WithTx so no partial state survives a failed step.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// withTx runs fn transactionally when the store supports it, and directly
// otherwise (the in-memory store used in some tests is already serialized).
func withTx(ctx context.Context, s Store, fn func(Store) error) error {
	if ts, ok := s.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(s)
}

// =============================================================================
// AUDIT LOG - Who did what, when
// =============================================================================

type AuditAction string

const (
	AuditRequestCreated        AuditAction = "REQUEST_CREATED"
	AuditRequestApproved       AuditAction = "REQUEST_APPROVED"
	AuditRequestRejected       AuditAction = "REQUEST_REJECTED"
	AuditRequestCancelled      AuditAction = "REQUEST_CANCELLED"
	AuditCancellationRequested AuditAction = "CANCELLATION_REQUESTED"
	AuditBalanceAdjustment     AuditAction = "BALANCE_ADJUSTMENT"
	AuditYearRollover          AuditAction = "YEAR_ROLLOVER"
)

// AuditEntry records a single audited action. Details carries
// action-specific data (amounts, reasons, old/new status).
type AuditEntry struct {
	ID           string
	ActorID      string
	TargetUserID string
	Action       AuditAction
	Details      map[string]any
	CreatedAt    time.Time
}

type AuditFilter struct {
	ActorID      string
	TargetUserID string
	Action       AuditAction
	Limit        int
}

/*
Package vacation provides the core vacation-management engine.

PURPOSE:
  This package contains the domain types and algorithms for employee
  vacation tracking: monthly balance accrual, manual adjustments, year-end
  carryover, and the request approval lifecycle. The HTTP layer, scheduler,
  and stores are thin collaborators around this package.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: An employee/manager/admin with an employment date (accrual start)
  - Balance: Per-user, per-year record of manual adjustments and carryover
  - AccrualEntry: One immutable ledger row per accrued employment month
  - Request: A vacation request moving through the status state machine

DESIGN PRINCIPLES:
  1. Computed-on-read: available days are always recomputed from the accrual
     ledger, the adjusted balance, and live requests. There is no cached
     "accrued"/"used" field that can go stale.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors.
  3. Idempotency: The accrual ledger is keyed (user, year, month) with a
     storage-level uniqueness constraint - a month is accrued exactly once.

SEE ALSO:
  - accrual.go: Accrual engine (ledger backfill, rollover, available days)
  - request.go: Request lifecycle state machine
  - store.go: Persistence interfaces
*/
package vacation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY CONSTANTS
// =============================================================================

const (
	// DefaultYearlyAllowance is the annual vacation entitlement in days.
	DefaultYearlyAllowance = 20

	// CarryoverLimit caps how many unused days roll into the next year.
	CarryoverLimit = 5
)

// MonthlyAccrualRate is the number of days credited per elapsed employment
// month (20 days per year, accrued monthly).
var MonthlyAccrualRate = decimal.NewFromInt(DefaultYearlyAllowance).Div(decimal.NewFromInt(12))

// =============================================================================
// USERS AND ROLES
// =============================================================================

type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

// User is an employee record. EmploymentDate is the accrual start; a user
// without one accrues nothing. CountryID links to the holiday calendar.
type User struct {
	ID             string
	Name           string
	Email          string
	Role           Role
	EmploymentDate *Date
	CountryID      *string
	CreatedAt      time.Time
}

// Employed reports whether the user has an employment date set.
func (u *User) Employed() bool { return u != nil && u.EmploymentDate != nil }

// =============================================================================
// BALANCE - per (user, year), authoritative adjustments only
// =============================================================================

// Balance holds the persisted, authoritative portion of a user's yearly
// balance: the running total of manual adjustments and carryover. Accrued
// and used days are never persisted here - they are recomputed on read.
type Balance struct {
	UserID    string
	Year      int
	Adjusted  decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ACCRUAL LEDGER - one immutable row per accrued month
// =============================================================================

// AccrualEntry records that a month's accrual has been granted. At most one
// row exists per (UserID, Year, Month); once written it is never updated,
// even if the nominal rate changes later.
type AccrualEntry struct {
	UserID      string
	Year        int
	Month       int // 1-12
	DaysAccrued decimal.Decimal
	CreatedAt   time.Time
}

// =============================================================================
// ROLLOVER RUNS - guard against double-applied carryover
// =============================================================================

// RolloverRun marks that year-end carryover has been applied for a target
// year. The (Year) uniqueness prevents re-running a rollover from adding
// the carryover twice.
type RolloverRun struct {
	Year           int
	UsersProcessed int
	CarriedOver    decimal.Decimal
	StartedAt      time.Time
	CompletedAt    time.Time
}

// =============================================================================
// VACATION REQUESTS
// =============================================================================

type RequestStatus string

const (
	StatusPending               RequestStatus = "PENDING"
	StatusApproved              RequestStatus = "APPROVED"
	StatusRejected              RequestStatus = "REJECTED"
	StatusCancelled             RequestStatus = "CANCELLED"
	StatusCancellationRequested RequestStatus = "CANCELLATION_REQUESTED"
)

// Terminal reports whether no further transitions are possible.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// CountsAsUsed reports whether requests in this status consume balance.
// A cancellation request still counts as used until a manager confirms it.
func (s RequestStatus) CountsAsUsed() bool {
	return s == StatusApproved || s == StatusCancellationRequested
}

// blocksOverlap reports whether a request in this status blocks a new
// request over the same dates.
func (s RequestStatus) blocksOverlap() bool {
	return s == StatusPending || s == StatusApproved || s == StatusCancellationRequested
}

// Request is a vacation request. Start and end dates are inclusive calendar
// days; Days is computed once at creation. Requests are never deleted, only
// status-transitioned.
type Request struct {
	ID              string
	UserID          string
	StartDate       Date
	EndDate         Date
	Days            int
	Status          RequestStatus
	Comment         string
	RejectionReason *string
	ApprovedByID    *string
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// =============================================================================
// MANAGER RELATIONSHIPS
// =============================================================================

// Relationship links a manager to an employee they have authority over.
type Relationship struct {
	ManagerID  string
	EmployeeID string
	CreatedAt  time.Time
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Country groups public holidays for users assigned to it.
type Country struct {
	ID        string
	Name      string
	Code      string // ISO 3166-1 alpha-2
	CreatedAt time.Time
}

// Holiday is a public holiday in a country's calendar.
type Holiday struct {
	ID        string
	CountryID string
	Date      Date
	Name      string
	CreatedAt time.Time
}

/*
errors.go - Centralized error types for the vacation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Collaborators (HTTP layer, scheduler) map these to their own surfaces.

ERROR CATEGORIES:
  1. Validation errors - malformed or semantically invalid input
  2. Authorization errors - actor lacks authority over the target
  3. Conflict errors - overlapping requests, duplicate unique keys
  4. Balance errors - insufficient available days (with the shortfall)

USAGE:
  Guard violations are detected before any persistence write and returned
  as typed failures; none are silently dropped or retried.

    var ib *vacation.InsufficientBalanceError
    if errors.As(err, &ib) {
        fmt.Println(ib.Shortfall())
    }
*/
package vacation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("vacation request not found")

	// ErrForbidden is returned when the actor lacks authority over the
	// target request or user.
	ErrForbidden = errors.New("forbidden")

	// ErrInsufficientBalance is returned when a request exceeds available days.
	ErrInsufficientBalance = errors.New("insufficient vacation balance")

	// ErrOverlappingRequest is returned when a new request intersects an
	// existing pending/approved one.
	ErrOverlappingRequest = errors.New("overlapping vacation request")

	// ErrDuplicateAccrual is returned when an accrual ledger row already
	// exists for (user, year, month). Callers treat this as "someone else
	// already created it" and re-read rather than failing.
	ErrDuplicateAccrual = errors.New("accrual already logged for month")

	// ErrDuplicateBalance is returned when a balance row already exists
	// for (user, year). Same re-read semantics as ErrDuplicateAccrual.
	ErrDuplicateBalance = errors.New("balance already exists for year")

	// ErrRolloverAlreadyApplied is returned when year-end carryover has
	// already been processed for the target year.
	ErrRolloverAlreadyApplied = errors.New("rollover already applied for year")

	// ErrInvalidTransition is returned for a status change the state
	// machine does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed or semantically invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient vacation days: available %s, required %s, shortfall %s",
		e.Available.StringFixed(1), e.Required.StringFixed(1), e.Shortfall().StringFixed(1))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// OverlapError names the conflicting request blocking a new one.
type OverlapError struct {
	UserID            string
	Start, End        Date
	ConflictingID     string
	ConflictingStatus RequestStatus
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("a %s vacation request already overlaps %s..%s",
		strings.ToLower(string(e.ConflictingStatus)), e.Start, e.End)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingRequest }

// TransitionError reports a status change the state machine forbids.
type TransitionError struct {
	From, To RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition request from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverlappingRequest) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRolloverAlreadyApplied)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrRequestNotFound)
}

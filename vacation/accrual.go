/*
accrual.go - Vacation balance accrual engine

PURPOSE:
  Produces the authoritative "available vacation days" figure for a user and
  maintains the append-only accrual ledger.

ACCRUAL MODEL:
  Employees earn 20/12 days per elapsed employment month. Each accrued month
  is recorded as one AccrualEntry keyed (user, year, month). Once logged, a
  month's value is fixed forever - replays read the stored value, so a later
  rate change never rewrites history.

TWO PATHS, ONE INVARIANT:
  - CalculateAccruedDays lazily backfills missing months on read.
  - ProcessMonthlyAccrual proactively writes the current month for everyone.
  Both converge to: exactly one ledger row per employed user per elapsed
  month. The (user, year, month) uniqueness constraint resolves races - a
  loser of a concurrent insert re-reads the winner's row instead of
  double-counting.

AVAILABLE DAYS:
  available = accrued(now) + balance.adjusted(currentYear) - used

  where `used` sums the days of APPROVED and CANCELLATION_REQUESTED requests
  falling within the current calendar year. A cancellation request still
  counts as used until a manager confirms the cancellation. The result may
  be negative if a user was over-adjusted.

YEAR ROLLOVER:
  Unused previous-year balance, clamped to [0, CarryoverLimit], is added to
  the new year's adjusted total. A RolloverRun row keyed by year guards
  against double-applying carryover; re-invocation for a completed year
  returns ErrRolloverAlreadyApplied.

SEE ALSO:
  - request.go: consumes AvailableDays for balance gates
  - store.go: uniqueness contracts the engine relies on
*/
package vacation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccrualEngine computes accrued and available vacation days, maintains the
// accrual ledger, and applies year-end carryover.
type AccrualEngine struct {
	Store Store

	// Now is the clock used for "current moment" defaults. Overridable in
	// tests; defaults to time.Now.
	Now func() time.Time
}

func NewAccrualEngine(store Store) *AccrualEngine {
	return &AccrualEngine{Store: store, Now: time.Now}
}

func (e *AccrualEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// withStore returns an engine bound to a different store. Used to run
// engine logic inside a caller's transaction.
func (e *AccrualEngine) withStore(s Store) *AccrualEngine {
	return &AccrualEngine{Store: s, Now: e.Now}
}

// =============================================================================
// ACCRUED DAYS - query with lazy ledger backfill
// =============================================================================

// CalculateAccruedDays returns the total days accrued by the user from their
// employment month through the month containing target, inclusive. Months
// not yet in the ledger are written as a side effect (lazy backfill), so
// this is simultaneously a query and an idempotent write.
//
// A user with no employment date accrues zero and causes no writes. A target
// before the employment date yields an empty month range and zero.
func (e *AccrualEngine) CalculateAccruedDays(ctx context.Context, userID string, target time.Time) (decimal.Decimal, error) {
	user, err := e.Store.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load user: %w", err)
	}
	if !user.Employed() {
		return decimal.Zero, nil
	}

	logged, err := e.Store.ListAccruals(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load accrual ledger: %w", err)
	}
	byMonth := make(map[[2]int]AccrualEntry, len(logged))
	for _, entry := range logged {
		byMonth[[2]int{entry.Year, entry.Month}] = entry
	}

	startYear, startMonth := user.EmploymentDate.Year(), int(user.EmploymentDate.Month())
	targetYear, targetMonth := target.Year(), int(target.Month())

	total := decimal.Zero
	for year := startYear; year <= targetYear; year++ {
		monthStart, monthEnd := 1, 12
		if year == startYear {
			monthStart = startMonth
		}
		if year == targetYear {
			monthEnd = targetMonth
		}

		for month := monthStart; month <= monthEnd; month++ {
			if entry, ok := byMonth[[2]int{year, month}]; ok {
				total = total.Add(entry.DaysAccrued)
				continue
			}

			accrued, err := e.accrueMonth(ctx, userID, year, month)
			if err != nil {
				return decimal.Zero, err
			}
			total = total.Add(accrued)
		}
	}

	return total, nil
}

// accrueMonth writes the ledger row for one month, resolving insert races
// by re-reading the winner's row. Returns the amount actually on the ledger.
func (e *AccrualEngine) accrueMonth(ctx context.Context, userID string, year, month int) (decimal.Decimal, error) {
	entry := AccrualEntry{
		UserID:      userID,
		Year:        year,
		Month:       month,
		DaysAccrued: MonthlyAccrualRate,
		CreatedAt:   e.now().UTC(),
	}

	err := e.Store.CreateAccrual(ctx, entry)
	if err == nil {
		return entry.DaysAccrued, nil
	}
	if !errors.Is(err, ErrDuplicateAccrual) {
		return decimal.Zero, fmt.Errorf("log accrual %d-%02d: %w", year, month, err)
	}

	// Lost the race: another caller logged this month first. Its stored
	// value is authoritative.
	existing, err := e.Store.GetAccrual(ctx, userID, year, month)
	if err != nil {
		return decimal.Zero, fmt.Errorf("re-read accrual %d-%02d: %w", year, month, err)
	}
	if existing == nil {
		return decimal.Zero, fmt.Errorf("accrual %d-%02d reported duplicate but not found", year, month)
	}
	return existing.DaysAccrued, nil
}

// =============================================================================
// AVAILABLE DAYS - accrued + adjusted - used
// =============================================================================

// AvailableDays returns the user's spendable balance right now:
// accrued-to-date plus the current year's adjustments, minus days consumed
// by this year's approved (and cancellation-pending) requests. May be
// negative.
func (e *AccrualEngine) AvailableDays(ctx context.Context, userID string) (decimal.Decimal, error) {
	year := e.now().Year()

	balance, err := e.getOrCreateBalance(ctx, userID, year)
	if err != nil {
		return decimal.Zero, err
	}

	accrued, err := e.CalculateAccruedDays(ctx, userID, e.now())
	if err != nil {
		return decimal.Zero, err
	}

	used, err := e.UsedDays(ctx, userID, year)
	if err != nil {
		return decimal.Zero, err
	}

	return accrued.Add(balance.Adjusted).Sub(used), nil
}

// UsedDays sums the days of the user's APPROVED and CANCELLATION_REQUESTED
// requests falling within the calendar year.
func (e *AccrualEngine) UsedDays(ctx context.Context, userID string, year int) (decimal.Decimal, error) {
	requests, err := e.Store.ListRequestsInYear(ctx, userID, year,
		[]RequestStatus{StatusApproved, StatusCancellationRequested})
	if err != nil {
		return decimal.Zero, fmt.Errorf("load used requests: %w", err)
	}

	used := decimal.Zero
	for _, r := range requests {
		used = used.Add(decimal.NewFromInt(int64(r.Days)))
	}
	return used, nil
}

// getOrCreateBalance lazily creates the year's balance row, treating a
// duplicate-key failure as "someone else created it, re-read".
func (e *AccrualEngine) getOrCreateBalance(ctx context.Context, userID string, year int) (*Balance, error) {
	balance, err := e.Store.GetBalance(ctx, userID, year)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if balance != nil {
		return balance, nil
	}

	fresh := Balance{
		UserID:    userID,
		Year:      year,
		Adjusted:  decimal.Zero,
		CreatedAt: e.now().UTC(),
		UpdatedAt: e.now().UTC(),
	}
	err = e.Store.CreateBalance(ctx, fresh)
	if err == nil {
		return &fresh, nil
	}
	if !errors.Is(err, ErrDuplicateBalance) {
		return nil, fmt.Errorf("create balance: %w", err)
	}

	balance, err = e.Store.GetBalance(ctx, userID, year)
	if err != nil {
		return nil, fmt.Errorf("re-read balance: %w", err)
	}
	if balance == nil {
		return nil, fmt.Errorf("balance %s/%d reported duplicate but not found", userID, year)
	}
	return balance, nil
}

// =============================================================================
// MANUAL ADJUSTMENTS
// =============================================================================

// AdjustBalance applies a signed delta to the user's current-year adjusted
// total and writes the audit entry in the same transaction.
func (e *AccrualEngine) AdjustBalance(ctx context.Context, actorID, userID string, delta decimal.Decimal, reason string) error {
	if reason == "" {
		return &ValidationError{Field: "reason", Message: "adjustment reason is required"}
	}
	user, err := e.Store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	year := e.now().Year()
	return withTx(ctx, e.Store, func(st Store) error {
		if err := st.IncrementAdjusted(ctx, userID, year, delta); err != nil {
			return fmt.Errorf("apply adjustment: %w", err)
		}
		return st.AppendAudit(ctx, AuditEntry{
			ID:           uuid.NewString(),
			ActorID:      actorID,
			TargetUserID: userID,
			Action:       AuditBalanceAdjustment,
			Details: map[string]any{
				"amount": delta.String(),
				"reason": reason,
				"year":   year,
			},
			CreatedAt: e.now().UTC(),
		})
	})
}

// =============================================================================
// YEAR ROLLOVER - carryover of unused days, applied at most once per year
// =============================================================================

// ProcessYearRollover carries unused previous-year days into targetYear's
// adjusted totals, clamped to [0, CarryoverLimit] per user. targetYear 0
// means the current year.
//
// The rollover runs atomically: the per-user increments and the RolloverRun
// marker commit together, so a crash cannot leave carryover applied without
// the marker. Re-running for a completed year returns
// ErrRolloverAlreadyApplied and changes nothing.
func (e *AccrualEngine) ProcessYearRollover(ctx context.Context, targetYear int) error {
	if targetYear == 0 {
		targetYear = e.now().Year()
	}
	previousYear := targetYear - 1

	done, err := e.Store.GetRolloverRun(ctx, targetYear)
	if err != nil {
		return fmt.Errorf("check rollover run: %w", err)
	}
	if done != nil {
		return ErrRolloverAlreadyApplied
	}

	return withTx(ctx, e.Store, func(st Store) error {
		engine := e.withStore(st)

		users, err := st.ListEmployedUsers(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		started := e.now().UTC()
		processed := 0
		totalCarried := decimal.Zero

		for _, user := range users {
			previous, err := st.GetBalance(ctx, user.ID, previousYear)
			if err != nil {
				return fmt.Errorf("load balance for %s: %w", user.ID, err)
			}
			if previous == nil {
				// No balance activity last year, nothing to carry.
				continue
			}

			endOfPrevious := EndOfYear(previousYear).Time
			accrued, err := engine.CalculateAccruedDays(ctx, user.ID, endOfPrevious)
			if err != nil {
				return fmt.Errorf("accrued for %s: %w", user.ID, err)
			}
			used, err := engine.UsedDays(ctx, user.ID, previousYear)
			if err != nil {
				return fmt.Errorf("used for %s: %w", user.ID, err)
			}

			unused := accrued.Add(previous.Adjusted).Sub(used)
			carryover := clampCarryover(unused)
			if !carryover.IsPositive() {
				continue
			}

			if err := st.IncrementAdjusted(ctx, user.ID, targetYear, carryover); err != nil {
				return fmt.Errorf("apply carryover for %s: %w", user.ID, err)
			}
			processed++
			totalCarried = totalCarried.Add(carryover)
		}

		return st.SaveRolloverRun(ctx, RolloverRun{
			Year:           targetYear,
			UsersProcessed: processed,
			CarriedOver:    totalCarried,
			StartedAt:      started,
			CompletedAt:    e.now().UTC(),
		})
	})
}

func clampCarryover(unused decimal.Decimal) decimal.Decimal {
	limit := decimal.NewFromInt(CarryoverLimit)
	if unused.IsNegative() {
		return decimal.Zero
	}
	if unused.GreaterThan(limit) {
		return limit
	}
	return unused
}

// =============================================================================
// MONTHLY ACCRUAL - proactive path, driven by the scheduler
// =============================================================================

// ProcessMonthlyAccrual ensures every employed user has an accrual ledger
// row for the current month, creating rows with the standard rate where
// absent. In January it first applies the year rollover (a rollover already
// applied is not an error here). Safe to run any number of times per month.
func (e *AccrualEngine) ProcessMonthlyAccrual(ctx context.Context) error {
	now := e.now()
	year, month := now.Year(), int(now.Month())

	if month == 1 {
		if err := e.ProcessYearRollover(ctx, year); err != nil && !errors.Is(err, ErrRolloverAlreadyApplied) {
			return fmt.Errorf("year rollover: %w", err)
		}
	}

	users, err := e.Store.ListEmployedUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, user := range users {
		empYear, empMonth := user.EmploymentDate.Year(), int(user.EmploymentDate.Month())
		if empYear > year || (empYear == year && empMonth > month) {
			// Not employed yet this month.
			continue
		}

		existing, err := e.Store.GetAccrual(ctx, user.ID, year, month)
		if err != nil {
			return fmt.Errorf("check accrual for %s: %w", user.ID, err)
		}
		if existing != nil {
			continue
		}

		if _, err := e.accrueMonth(ctx, user.ID, year, month); err != nil {
			return err
		}
	}

	return nil
}

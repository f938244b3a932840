package vacation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestEngine(clock func() time.Time) (*vacation.AccrualEngine, *memory.Memory) {
	store := memory.New()
	engine := vacation.NewAccrualEngine(store)
	engine.Now = clock
	return engine, store
}

func clockAt(year int, month time.Month, day int) func() time.Time {
	return func() time.Time {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	}
}

func seedUser(t *testing.T, store vacation.Store, id string, role vacation.Role, employedSince vacation.Date) vacation.User {
	t.Helper()
	user := vacation.User{
		ID:             id,
		Name:           "User " + id,
		Email:          id + "@example.com",
		Role:           role,
		EmploymentDate: &employedSince,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveUser(context.Background(), user))
	return user
}

func seedRequest(t *testing.T, store vacation.Store, id, userID string, start, end vacation.Date, status vacation.RequestStatus) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.CreateRequest(context.Background(), vacation.Request{
		ID:        id,
		UserID:    userID,
		StartDate: start,
		EndDate:   end,
		Days:      vacation.CalculateVacationDays(start, end),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

// assertDays compares a decimal day amount against an expected value with a
// small tolerance, since the monthly rate 20/12 is a repeating decimal.
func assertDays(t *testing.T, want float64, got decimal.Decimal) {
	t.Helper()
	diff := got.Sub(decimal.NewFromFloat(want)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.001)),
		"expected about %v days, got %s", want, got)
}

// =============================================================================
// ACCRUED DAYS
// =============================================================================

func TestCalculateAccruedDays_MonthlyRate(t *testing.T) {
	// GIVEN: Employed since January 1st
	// WHEN: Accrued through mid-March
	// THEN: Three months at 20/12 each, so 5 days, and 3 ledger rows

	engine, store := newTestEngine(clockAt(2025, time.March, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))
	ctx := context.Background()

	accrued, err := engine.CalculateAccruedDays(ctx, "emp-1", engine.Now())
	require.NoError(t, err)
	assertDays(t, 5.0, accrued)

	entries, err := store.ListAccruals(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCalculateAccruedDays_SingleMonth(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.January, 20))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))

	accrued, err := engine.CalculateAccruedDays(context.Background(), "emp-1", engine.Now())
	require.NoError(t, err)
	assertDays(t, 1.6667, accrued)
}

func TestCalculateAccruedDays_Idempotent(t *testing.T) {
	// GIVEN: An accrual calculation that already backfilled the ledger
	// WHEN: Calculating again
	// THEN: Same value, same ledger rows - no double-counting

	engine, store := newTestEngine(clockAt(2025, time.March, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))
	ctx := context.Background()

	first, err := engine.CalculateAccruedDays(ctx, "emp-1", engine.Now())
	require.NoError(t, err)
	second, err := engine.CalculateAccruedDays(ctx, "emp-1", engine.Now())
	require.NoError(t, err)

	assert.True(t, first.Equal(second), "repeat calculation changed the result: %s vs %s", first, second)

	entries, err := store.ListAccruals(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCalculateAccruedDays_NoEmploymentDate(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.June, 1))
	ctx := context.Background()

	user := vacation.User{ID: "contractor", Name: "No Accrual", Email: "c@example.com", Role: vacation.RoleEmployee}
	require.NoError(t, store.SaveUser(ctx, user))

	accrued, err := engine.CalculateAccruedDays(ctx, "contractor", engine.Now())
	require.NoError(t, err)
	assert.True(t, accrued.IsZero())

	entries, err := store.ListAccruals(ctx, "contractor")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCalculateAccruedDays_LedgerValueIsImmutable(t *testing.T) {
	// GIVEN: February was logged with a non-standard amount (say, under an
	//        older rate)
	// WHEN: Recalculating
	// THEN: The stored February value is used, not today's rate

	engine, store := newTestEngine(clockAt(2025, time.March, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))
	ctx := context.Background()

	require.NoError(t, store.CreateAccrual(ctx, vacation.AccrualEntry{
		UserID:      "emp-1",
		Year:        2025,
		Month:       2,
		DaysAccrued: decimal.NewFromFloat(2.5),
		CreatedAt:   time.Now().UTC(),
	}))

	accrued, err := engine.CalculateAccruedDays(ctx, "emp-1", engine.Now())
	require.NoError(t, err)
	// January and March at 20/12, February fixed at 2.5
	assertDays(t, 1.6667+2.5+1.6667, accrued)
}

// =============================================================================
// AVAILABLE DAYS
// =============================================================================

func TestAvailableDays_AccruedPlusAdjustedMinusUsed(t *testing.T) {
	// GIVEN: Six months accrued (10 days), +2 adjusted, 3 days approved
	// THEN: available = 10 + 2 - 3 = 9

	engine, store := newTestEngine(clockAt(2025, time.June, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))
	seedUser(t, store, "admin", vacation.RoleAdmin, vacation.NewDate(2025, time.January, 1))
	ctx := context.Background()

	require.NoError(t, engine.AdjustBalance(ctx, "admin", "emp-1", decimal.NewFromInt(2), "signing bonus"))
	seedRequest(t, store, "req-1", "emp-1",
		vacation.NewDate(2025, time.February, 3), vacation.NewDate(2025, time.February, 5),
		vacation.StatusApproved)

	available, err := engine.AvailableDays(ctx, "emp-1")
	require.NoError(t, err)
	assertDays(t, 9.0, available)
}

func TestUsedDays_CountsApprovedAndCancellationRequested(t *testing.T) {
	// A cancellation request still consumes balance until confirmed;
	// pending and rejected requests never do.

	engine, store := newTestEngine(clockAt(2025, time.June, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))
	ctx := context.Background()

	seedRequest(t, store, "req-approved", "emp-1",
		vacation.NewDate(2025, time.February, 3), vacation.NewDate(2025, time.February, 5),
		vacation.StatusApproved)
	seedRequest(t, store, "req-cancelling", "emp-1",
		vacation.NewDate(2025, time.March, 10), vacation.NewDate(2025, time.March, 11),
		vacation.StatusCancellationRequested)
	seedRequest(t, store, "req-pending", "emp-1",
		vacation.NewDate(2025, time.April, 1), vacation.NewDate(2025, time.April, 4),
		vacation.StatusPending)
	seedRequest(t, store, "req-rejected", "emp-1",
		vacation.NewDate(2025, time.May, 1), vacation.NewDate(2025, time.May, 2),
		vacation.StatusRejected)

	used, err := engine.UsedDays(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assertDays(t, 5.0, used) // 3 approved + 2 cancellation-requested
}

func TestUsedDays_IgnoresRequestsOutsideYear(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.June, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2024, time.January, 1))
	ctx := context.Background()

	// Fully in the previous year
	seedRequest(t, store, "req-2024", "emp-1",
		vacation.NewDate(2024, time.July, 1), vacation.NewDate(2024, time.July, 3),
		vacation.StatusApproved)
	// Straddles the year boundary: not fully within either year
	seedRequest(t, store, "req-straddle", "emp-1",
		vacation.NewDate(2024, time.December, 30), vacation.NewDate(2025, time.January, 2),
		vacation.StatusApproved)

	used, err := engine.UsedDays(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.True(t, used.IsZero(), "got %s", used)
}

// =============================================================================
// MANUAL ADJUSTMENTS
// =============================================================================

func TestAdjustBalance_RequiresReason(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.June, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))

	err := engine.AdjustBalance(context.Background(), "admin", "emp-1", decimal.NewFromInt(1), "")
	var ve *vacation.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestAdjustBalance_UnknownUser(t *testing.T) {
	engine, _ := newTestEngine(clockAt(2025, time.June, 15))

	err := engine.AdjustBalance(context.Background(), "admin", "ghost", decimal.NewFromInt(1), "welcome")
	assert.ErrorIs(t, err, vacation.ErrUserNotFound)
}

func TestAdjustBalance_WritesAuditEntry(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.June, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))
	ctx := context.Background()

	require.NoError(t, engine.AdjustBalance(ctx, "admin", "emp-1", decimal.NewFromInt(-2), "overbooked"))

	entries, err := store.QueryAudit(ctx, vacation.AuditFilter{Action: vacation.AuditBalanceAdjustment})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].ActorID)
	assert.Equal(t, "emp-1", entries[0].TargetUserID)
	assert.Equal(t, "overbooked", entries[0].Details["reason"])
}

// =============================================================================
// YEAR ROLLOVER
// =============================================================================

func TestProcessYearRollover_ClampsToCarryoverLimit(t *testing.T) {
	// GIVEN: 20 days accrued in 2024, none used
	// WHEN: Rolling into 2025
	// THEN: Carryover is clamped to 5

	engine, store := newTestEngine(clockAt(2025, time.January, 10))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2024, time.January, 1))
	ctx := context.Background()

	require.NoError(t, store.CreateBalance(ctx, vacation.Balance{
		UserID: "emp-1", Year: 2024, Adjusted: decimal.Zero,
	}))

	require.NoError(t, engine.ProcessYearRollover(ctx, 2025))

	balance, err := store.GetBalance(ctx, "emp-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assertDays(t, 5.0, balance.Adjusted)

	run, err := store.GetRolloverRun(ctx, 2025)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 1, run.UsersProcessed)
}

func TestProcessYearRollover_CarriesActualUnusedWhenUnderLimit(t *testing.T) {
	// GIVEN: 20 accrued, 16 used in 2024
	// THEN: 4 days carry over (under the limit, no clamping)

	engine, store := newTestEngine(clockAt(2025, time.January, 10))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2024, time.January, 1))
	ctx := context.Background()

	require.NoError(t, store.CreateBalance(ctx, vacation.Balance{
		UserID: "emp-1", Year: 2024, Adjusted: decimal.Zero,
	}))
	seedRequest(t, store, "req-2024", "emp-1",
		vacation.NewDate(2024, time.July, 1), vacation.NewDate(2024, time.July, 16),
		vacation.StatusApproved)

	require.NoError(t, engine.ProcessYearRollover(ctx, 2025))

	balance, err := store.GetBalance(ctx, "emp-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assertDays(t, 4.0, balance.Adjusted)
}

func TestProcessYearRollover_NegativeUnusedCarriesNothing(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.January, 10))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2024, time.January, 1))
	ctx := context.Background()

	// Over-adjusted into the negative
	require.NoError(t, store.CreateBalance(ctx, vacation.Balance{
		UserID: "emp-1", Year: 2024, Adjusted: decimal.NewFromInt(-25),
	}))

	require.NoError(t, engine.ProcessYearRollover(ctx, 2025))

	balance, err := store.GetBalance(ctx, "emp-1", 2025)
	require.NoError(t, err)
	assert.Nil(t, balance)

	run, err := store.GetRolloverRun(ctx, 2025)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 0, run.UsersProcessed)
}

func TestProcessYearRollover_SecondRunRejected(t *testing.T) {
	// Re-running a completed rollover must not add carryover twice.

	engine, store := newTestEngine(clockAt(2025, time.January, 10))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2024, time.January, 1))
	ctx := context.Background()

	require.NoError(t, store.CreateBalance(ctx, vacation.Balance{
		UserID: "emp-1", Year: 2024, Adjusted: decimal.Zero,
	}))

	require.NoError(t, engine.ProcessYearRollover(ctx, 2025))
	err := engine.ProcessYearRollover(ctx, 2025)
	assert.ErrorIs(t, err, vacation.ErrRolloverAlreadyApplied)

	balance, err := store.GetBalance(ctx, "emp-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assertDays(t, 5.0, balance.Adjusted)
}

func TestProcessYearRollover_SkipsUsersWithoutPreviousBalance(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.January, 10))
	seedUser(t, store, "emp-new", vacation.RoleEmployee, vacation.NewDate(2024, time.June, 1))
	ctx := context.Background()

	// No 2024 balance row was ever created for this user
	require.NoError(t, engine.ProcessYearRollover(ctx, 2025))

	balance, err := store.GetBalance(ctx, "emp-new", 2025)
	require.NoError(t, err)
	assert.Nil(t, balance)
}

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

func TestProcessMonthlyAccrual_WritesCurrentMonth(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.June, 2))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.March, 10))
	seedUser(t, store, "emp-future", vacation.RoleEmployee, vacation.NewDate(2025, time.July, 1))
	ctx := context.Background()

	require.NoError(t, engine.ProcessMonthlyAccrual(ctx))

	june, err := store.GetAccrual(ctx, "emp-1", 2025, 6)
	require.NoError(t, err)
	require.NotNil(t, june)
	assertDays(t, 1.6667, june.DaysAccrued)

	// Not employed yet in June, nothing accrued
	notYet, err := store.GetAccrual(ctx, "emp-future", 2025, 6)
	require.NoError(t, err)
	assert.Nil(t, notYet)
}

func TestProcessMonthlyAccrual_RepeatRunIsNoop(t *testing.T) {
	engine, store := newTestEngine(clockAt(2025, time.June, 2))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.June, 1))
	ctx := context.Background()

	require.NoError(t, engine.ProcessMonthlyAccrual(ctx))
	require.NoError(t, engine.ProcessMonthlyAccrual(ctx))

	entries, err := store.ListAccruals(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessMonthlyAccrual_ConvergesWithLazyBackfill(t *testing.T) {
	// The lazy read path and the proactive scheduler path must agree on
	// one row per month.

	engine, store := newTestEngine(clockAt(2025, time.June, 15))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.April, 1))
	ctx := context.Background()

	_, err := engine.CalculateAccruedDays(ctx, "emp-1", engine.Now())
	require.NoError(t, err)
	require.NoError(t, engine.ProcessMonthlyAccrual(ctx))

	entries, err := store.ListAccruals(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3) // April, May, June
}

func TestProcessMonthlyAccrual_JanuaryAppliesRollover(t *testing.T) {
	engine, store := newTestEngine(clockAt(2026, time.January, 5))
	seedUser(t, store, "emp-1", vacation.RoleEmployee, vacation.NewDate(2025, time.January, 1))
	ctx := context.Background()

	require.NoError(t, store.CreateBalance(ctx, vacation.Balance{
		UserID: "emp-1", Year: 2025, Adjusted: decimal.Zero,
	}))

	require.NoError(t, engine.ProcessMonthlyAccrual(ctx))

	run, err := store.GetRolloverRun(ctx, 2026)
	require.NoError(t, err)
	require.NotNil(t, run)

	// An already-applied rollover is tolerated on the next run
	require.NoError(t, engine.ProcessMonthlyAccrual(ctx))
}

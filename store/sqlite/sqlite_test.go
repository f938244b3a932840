package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/store/sqlite"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// Timestamps round-trip through RFC3339 at second resolution.
func stamp(hour, min, sec int) time.Time {
	return time.Date(2025, time.June, 15, hour, min, sec, 0, time.UTC)
}

func saveTestUser(t *testing.T, store *sqlite.Store, id string, role vacation.Role, employed *vacation.Date) {
	t.Helper()
	require.NoError(t, store.SaveUser(context.Background(), vacation.User{
		ID:             id,
		Name:           "User " + id,
		Email:          id + "@example.com",
		Role:           role,
		EmploymentDate: employed,
		CreatedAt:      stamp(9, 0, 0),
	}))
}

func datePtr(year int, month time.Month, day int) *vacation.Date {
	d := vacation.NewDate(year, month, day)
	return &d
}

// =============================================================================
// USERS
// =============================================================================

func TestUserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	countryID := "country-1"
	original := vacation.User{
		ID:             "u-1",
		Name:           "Ada",
		Email:          "ada@example.com",
		Role:           vacation.RoleManager,
		EmploymentDate: datePtr(2024, time.March, 1),
		CountryID:      &countryID,
		CreatedAt:      stamp(9, 0, 0),
	}
	require.NoError(t, store.SaveUser(ctx, original))

	got, err := store.GetUser(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, original.Name, got.Name)
	assert.Equal(t, original.Email, got.Email)
	assert.Equal(t, vacation.RoleManager, got.Role)
	require.NotNil(t, got.EmploymentDate)
	assert.Equal(t, "2024-03-01", got.EmploymentDate.String())
	require.NotNil(t, got.CountryID)
	assert.Equal(t, countryID, *got.CountryID)
	assert.True(t, got.CreatedAt.Equal(original.CreatedAt))
}

func TestUserNullableFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, vacation.User{
		ID: "u-bare", Name: "Bare", Email: "bare@example.com",
		Role: vacation.RoleEmployee, CreatedAt: stamp(9, 0, 0),
	}))

	got, err := store.GetUser(ctx, "u-bare")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.EmploymentDate)
	assert.Nil(t, got.CountryID)
}

func TestGetUser_MissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetUser(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveUser_UpdatesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveTestUser(t, store, "u-1", vacation.RoleEmployee, nil)

	require.NoError(t, store.SaveUser(ctx, vacation.User{
		ID: "u-1", Name: "Renamed", Email: "u-1@example.com",
		Role: vacation.RoleManager, EmploymentDate: datePtr(2025, time.January, 1),
		CreatedAt: stamp(9, 0, 0),
	}))

	got, err := store.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, vacation.RoleManager, got.Role)
	require.NotNil(t, got.EmploymentDate)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestListEmployedUsers(t *testing.T) {
	store := newTestStore(t)
	saveTestUser(t, store, "employed", vacation.RoleEmployee, datePtr(2025, time.January, 1))
	saveTestUser(t, store, "unemployed", vacation.RoleEmployee, nil)

	users, err := store.ListEmployedUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "employed", users[0].ID)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestCreateBalance_DuplicateMapped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	balance := vacation.Balance{
		UserID: "u-1", Year: 2025, Adjusted: decimal.Zero,
		CreatedAt: stamp(9, 0, 0), UpdatedAt: stamp(9, 0, 0),
	}
	require.NoError(t, store.CreateBalance(ctx, balance))

	err := store.CreateBalance(ctx, balance)
	assert.ErrorIs(t, err, vacation.ErrDuplicateBalance)
}

func TestBalance_DecimalStoredExactly(t *testing.T) {
	// The monthly rate has no exact float form; TEXT storage must keep
	// every digit.

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateBalance(ctx, vacation.Balance{
		UserID: "u-1", Year: 2025, Adjusted: vacation.MonthlyAccrualRate,
		CreatedAt: stamp(9, 0, 0), UpdatedAt: stamp(9, 0, 0),
	}))

	got, err := store.GetBalance(ctx, "u-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Adjusted.Equal(vacation.MonthlyAccrualRate),
		"stored %s, want %s", got.Adjusted, vacation.MonthlyAccrualRate)
}

func TestIncrementAdjusted_CreatesThenAccumulates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// First increment creates the row
	require.NoError(t, store.IncrementAdjusted(ctx, "u-1", 2025, decimal.RequireFromString("2.5")))
	// Second accumulates
	require.NoError(t, store.IncrementAdjusted(ctx, "u-1", 2025, decimal.NewFromInt(-1)))

	got, err := store.GetBalance(ctx, "u-1", 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Adjusted.Equal(decimal.RequireFromString("1.5")), "got %s", got.Adjusted)
}

// =============================================================================
// ACCRUAL LEDGER
// =============================================================================

func TestCreateAccrual_DuplicateMapped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := vacation.AccrualEntry{
		UserID: "u-1", Year: 2025, Month: 6,
		DaysAccrued: vacation.MonthlyAccrualRate, CreatedAt: stamp(9, 0, 0),
	}
	require.NoError(t, store.CreateAccrual(ctx, entry))

	err := store.CreateAccrual(ctx, entry)
	assert.ErrorIs(t, err, vacation.ErrDuplicateAccrual)

	// The same month for another user is fine
	entry.UserID = "u-2"
	require.NoError(t, store.CreateAccrual(ctx, entry))
}

func TestAccrualRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for month := 1; month <= 3; month++ {
		require.NoError(t, store.CreateAccrual(ctx, vacation.AccrualEntry{
			UserID: "u-1", Year: 2025, Month: month,
			DaysAccrued: vacation.MonthlyAccrualRate, CreatedAt: stamp(9, 0, month),
		}))
	}

	got, err := store.GetAccrual(ctx, "u-1", 2025, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.DaysAccrued.Equal(vacation.MonthlyAccrualRate))

	missing, err := store.GetAccrual(ctx, "u-1", 2025, 12)
	require.NoError(t, err)
	assert.Nil(t, missing)

	entries, err := store.ListAccruals(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

// =============================================================================
// REQUESTS
// =============================================================================

func newRequest(id, userID string, start, end vacation.Date, status vacation.RequestStatus, at time.Time) vacation.Request {
	return vacation.Request{
		ID:        id,
		UserID:    userID,
		StartDate: start,
		EndDate:   end,
		Days:      vacation.CalculateVacationDays(start, end),
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestRequestRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	request := newRequest("r-1", "u-1",
		vacation.NewDate(2025, time.July, 7), vacation.NewDate(2025, time.July, 11),
		vacation.StatusPending, stamp(9, 0, 0))
	request.Comment = "summer trip"
	require.NoError(t, store.CreateRequest(ctx, request))

	got, err := store.GetRequest(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-07-07", got.StartDate.String())
	assert.Equal(t, "2025-07-11", got.EndDate.String())
	assert.Equal(t, 5, got.Days)
	assert.Equal(t, "summer trip", got.Comment)
	assert.Nil(t, got.RejectionReason)
	assert.Nil(t, got.ApprovedByID)
	assert.Nil(t, got.ApprovedAt)

	// Approve and round-trip the nullable fields
	approver := "mgr"
	approvedAt := stamp(10, 30, 0)
	got.Status = vacation.StatusApproved
	got.ApprovedByID = &approver
	got.ApprovedAt = &approvedAt
	got.UpdatedAt = approvedAt
	require.NoError(t, store.UpdateRequest(ctx, *got))

	updated, err := store.GetRequest(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, updated.Status)
	require.NotNil(t, updated.ApprovedByID)
	assert.Equal(t, "mgr", *updated.ApprovedByID)
	require.NotNil(t, updated.ApprovedAt)
	assert.True(t, updated.ApprovedAt.Equal(approvedAt))
}

func TestUpdateRequest_MissingRowReported(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateRequest(context.Background(), newRequest("ghost", "u-1",
		vacation.NewDate(2025, time.July, 7), vacation.NewDate(2025, time.July, 8),
		vacation.StatusPending, stamp(9, 0, 0)))
	assert.ErrorIs(t, err, vacation.ErrRequestNotFound)
}

func TestFindOverlapping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	blocking := []vacation.RequestStatus{
		vacation.StatusPending, vacation.StatusApproved, vacation.StatusCancellationRequested,
	}

	require.NoError(t, store.CreateRequest(ctx, newRequest("r-pending", "u-1",
		vacation.NewDate(2025, time.July, 7), vacation.NewDate(2025, time.July, 9),
		vacation.StatusPending, stamp(9, 0, 0))))
	require.NoError(t, store.CreateRequest(ctx, newRequest("r-rejected", "u-1",
		vacation.NewDate(2025, time.August, 1), vacation.NewDate(2025, time.August, 5),
		vacation.StatusRejected, stamp(9, 0, 1))))

	// Shared boundary day overlaps
	conflict, err := store.FindOverlapping(ctx, "u-1",
		vacation.NewDate(2025, time.July, 9), vacation.NewDate(2025, time.July, 12), blocking)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, "r-pending", conflict.ID)

	// The day after the pending request ends is free
	conflict, err = store.FindOverlapping(ctx, "u-1",
		vacation.NewDate(2025, time.July, 10), vacation.NewDate(2025, time.July, 12), blocking)
	require.NoError(t, err)
	assert.Nil(t, conflict)

	// A rejected request does not block its dates
	conflict, err = store.FindOverlapping(ctx, "u-1",
		vacation.NewDate(2025, time.August, 1), vacation.NewDate(2025, time.August, 5), blocking)
	require.NoError(t, err)
	assert.Nil(t, conflict)

	// Other users are not consulted
	conflict, err = store.FindOverlapping(ctx, "u-2",
		vacation.NewDate(2025, time.July, 7), vacation.NewDate(2025, time.July, 9), blocking)
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestListRequestsInYear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	counting := []vacation.RequestStatus{
		vacation.StatusApproved, vacation.StatusCancellationRequested,
	}

	require.NoError(t, store.CreateRequest(ctx, newRequest("r-2025", "u-1",
		vacation.NewDate(2025, time.March, 3), vacation.NewDate(2025, time.March, 5),
		vacation.StatusApproved, stamp(9, 0, 0))))
	require.NoError(t, store.CreateRequest(ctx, newRequest("r-2024", "u-1",
		vacation.NewDate(2024, time.March, 3), vacation.NewDate(2024, time.March, 5),
		vacation.StatusApproved, stamp(9, 0, 1))))
	// Straddles the boundary: belongs to neither year's sum
	require.NoError(t, store.CreateRequest(ctx, newRequest("r-straddle", "u-1",
		vacation.NewDate(2024, time.December, 30), vacation.NewDate(2025, time.January, 2),
		vacation.StatusApproved, stamp(9, 0, 2))))
	require.NoError(t, store.CreateRequest(ctx, newRequest("r-pending", "u-1",
		vacation.NewDate(2025, time.April, 1), vacation.NewDate(2025, time.April, 2),
		vacation.StatusPending, stamp(9, 0, 3))))

	requests, err := store.ListRequestsInYear(ctx, "u-1", 2025, counting)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "r-2025", requests[0].ID)
}

// =============================================================================
// RELATIONSHIPS
// =============================================================================

func TestRelationships(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	saveTestUser(t, store, "mgr", vacation.RoleManager, datePtr(2024, time.January, 1))
	saveTestUser(t, store, "emp", vacation.RoleEmployee, datePtr(2025, time.January, 1))

	require.NoError(t, store.SaveRelationship(ctx, vacation.Relationship{
		ManagerID: "mgr", EmployeeID: "emp", CreatedAt: stamp(9, 0, 0),
	}))

	has, err := store.HasRelationship(ctx, "mgr", "emp")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasRelationship(ctx, "emp", "mgr")
	require.NoError(t, err)
	assert.False(t, has, "relationships are directional")

	team, err := store.ListTeam(ctx, "mgr")
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, "emp", team[0].ID)

	require.NoError(t, store.DeleteRelationship(ctx, "mgr", "emp"))
	has, err = store.HasRelationship(ctx, "mgr", "emp")
	require.NoError(t, err)
	assert.False(t, has)
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

func TestRolloverRunGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := vacation.RolloverRun{
		Year:           2025,
		UsersProcessed: 7,
		CarriedOver:    decimal.RequireFromString("23.5"),
		StartedAt:      stamp(0, 0, 1),
		CompletedAt:    stamp(0, 0, 5),
	}
	require.NoError(t, store.SaveRolloverRun(ctx, run))

	err := store.SaveRolloverRun(ctx, run)
	assert.ErrorIs(t, err, vacation.ErrRolloverAlreadyApplied)

	got, err := store.GetRolloverRun(ctx, 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.UsersProcessed)
	assert.True(t, got.CarriedOver.Equal(run.CarriedOver))

	missing, err := store.GetRolloverRun(ctx, 2026)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(st vacation.Store) error {
		if err := st.SaveUser(ctx, vacation.User{
			ID: "u-tx", Name: "Tx", Email: "tx@example.com",
			Role: vacation.RoleEmployee, CreatedAt: stamp(9, 0, 0),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetUser(ctx, "u-tx")
	require.NoError(t, err)
	assert.Nil(t, got, "write survived a rolled-back transaction")
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(st vacation.Store) error {
		if err := st.SaveUser(ctx, vacation.User{
			ID: "u-tx", Name: "Tx", Email: "tx@example.com",
			Role: vacation.RoleEmployee, CreatedAt: stamp(9, 0, 0),
		}); err != nil {
			return err
		}
		return st.IncrementAdjusted(ctx, "u-tx", 2025, decimal.NewFromInt(3))
	})
	require.NoError(t, err)

	got, err := store.GetUser(ctx, "u-tx")
	require.NoError(t, err)
	assert.NotNil(t, got)

	balance, err := store.GetBalance(ctx, "u-tx", 2025)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.True(t, balance.Adjusted.Equal(decimal.NewFromInt(3)))
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestAuditQueryFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := func(id, actor, target string, action vacation.AuditAction, at time.Time) {
		require.NoError(t, store.AppendAudit(ctx, vacation.AuditEntry{
			ID: id, ActorID: actor, TargetUserID: target, Action: action,
			Details:   map[string]any{"request_id": "r-" + id},
			CreatedAt: at,
		}))
	}
	record("1", "mgr", "emp", vacation.AuditRequestApproved, stamp(9, 0, 1))
	record("2", "mgr", "emp", vacation.AuditRequestRejected, stamp(9, 0, 2))
	record("3", "admin", "other", vacation.AuditBalanceAdjustment, stamp(9, 0, 3))

	// Newest first, no filter
	entries, err := store.QueryAudit(ctx, vacation.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "3", entries[0].ID)
	assert.Equal(t, "1", entries[2].ID)

	// Details JSON round-trips
	assert.Equal(t, "r-3", entries[0].Details["request_id"])

	byActor, err := store.QueryAudit(ctx, vacation.AuditFilter{ActorID: "mgr"})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	byAction, err := store.QueryAudit(ctx, vacation.AuditFilter{Action: vacation.AuditBalanceAdjustment})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "other", byAction[0].TargetUserID)

	limited, err := store.QueryAudit(ctx, vacation.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "3", limited[0].ID)
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func TestCountriesAndHolidays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCountry(ctx, vacation.Country{
		ID: "c-pt", Name: "Portugal", Code: "PT", CreatedAt: stamp(9, 0, 0),
	}))

	country, err := store.GetCountry(ctx, "c-pt")
	require.NoError(t, err)
	require.NotNil(t, country)
	assert.Equal(t, "PT", country.Code)

	countries, err := store.ListCountries(ctx)
	require.NoError(t, err)
	assert.Len(t, countries, 1)

	require.NoError(t, store.SaveHoliday(ctx, vacation.Holiday{
		ID: "h-1", CountryID: "c-pt", Date: vacation.NewDate(2025, time.June, 10),
		Name: "Dia de Portugal", CreatedAt: stamp(9, 0, 0),
	}))
	require.NoError(t, store.SaveHoliday(ctx, vacation.Holiday{
		ID: "h-2", CountryID: "c-pt", Date: vacation.NewDate(2024, time.June, 10),
		Name: "Dia de Portugal", CreatedAt: stamp(9, 0, 0),
	}))

	holidays, err := store.ListHolidays(ctx, "c-pt", 2025)
	require.NoError(t, err)
	require.Len(t, holidays, 1)
	assert.Equal(t, "h-1", holidays[0].ID)
	assert.Equal(t, "2025-06-10", holidays[0].Date.String())

	// Re-adding the same (country, date, name) is a no-op
	require.NoError(t, store.SaveHoliday(ctx, vacation.Holiday{
		ID: "h-dup", CountryID: "c-pt", Date: vacation.NewDate(2025, time.June, 10),
		Name: "Dia de Portugal", CreatedAt: stamp(9, 0, 0),
	}))
	holidays, err = store.ListHolidays(ctx, "c-pt", 2025)
	require.NoError(t, err)
	assert.Len(t, holidays, 1)

	require.NoError(t, store.DeleteHoliday(ctx, "h-1"))
	holidays, err = store.ListHolidays(ctx, "c-pt", 2025)
	require.NoError(t, err)
	assert.Empty(t, holidays)
}

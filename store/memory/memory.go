// Package memory provides an in-memory vacation.TxStore for testing/dev.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type balanceKey struct {
	UserID string
	Year   int
}

type accrualKey struct {
	UserID string
	Year   int
	Month  int
}

type relationKey struct {
	ManagerID  string
	EmployeeID string
}

type Memory struct {
	mu            sync.RWMutex
	users         map[string]vacation.User
	balances      map[balanceKey]vacation.Balance
	accruals      map[accrualKey]vacation.AccrualEntry
	requests      map[string]vacation.Request
	relationships map[relationKey]vacation.Relationship
	rollovers     map[int]vacation.RolloverRun
	audits        []vacation.AuditEntry
	countries     map[string]vacation.Country
	holidays      map[string]vacation.Holiday
}

func New() *Memory {
	return &Memory{
		users:         make(map[string]vacation.User),
		balances:      make(map[balanceKey]vacation.Balance),
		accruals:      make(map[accrualKey]vacation.AccrualEntry),
		requests:      make(map[string]vacation.Request),
		relationships: make(map[relationKey]vacation.Relationship),
		rollovers:     make(map[int]vacation.RolloverRun),
		countries:     make(map[string]vacation.Country),
		holidays:      make(map[string]vacation.Holiday),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id string) (*vacation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) getUserLocked(id string) (*vacation.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]vacation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersLocked(false), nil
}

func (m *Memory) ListEmployedUsers(_ context.Context) ([]vacation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersLocked(true), nil
}

func (m *Memory) listUsersLocked(employedOnly bool) []vacation.User {
	var users []vacation.User
	for _, u := range m.users {
		if employedOnly && !u.Employed() {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

func (m *Memory) SaveUser(_ context.Context, u vacation.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUserLocked(u)
}

func (m *Memory) saveUserLocked(u vacation.User) error {
	m.users[u.ID] = u
	return nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (m *Memory) GetBalance(_ context.Context, userID string, year int) (*vacation.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(userID, year)
}

func (m *Memory) getBalanceLocked(userID string, year int) (*vacation.Balance, error) {
	b, ok := m.balances[balanceKey{userID, year}]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) CreateBalance(_ context.Context, b vacation.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBalanceLocked(b)
}

func (m *Memory) createBalanceLocked(b vacation.Balance) error {
	k := balanceKey{b.UserID, b.Year}
	if _, exists := m.balances[k]; exists {
		return vacation.ErrDuplicateBalance
	}
	m.balances[k] = b
	return nil
}

func (m *Memory) IncrementAdjusted(_ context.Context, userID string, year int, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementAdjustedLocked(userID, year, delta)
}

func (m *Memory) incrementAdjustedLocked(userID string, year int, delta decimal.Decimal) error {
	k := balanceKey{userID, year}
	b, ok := m.balances[k]
	if !ok {
		b = vacation.Balance{UserID: userID, Year: year, Adjusted: decimal.Zero}
	}
	b.Adjusted = b.Adjusted.Add(delta)
	m.balances[k] = b
	return nil
}

// =============================================================================
// ACCRUAL LEDGER
// =============================================================================

func (m *Memory) GetAccrual(_ context.Context, userID string, year, month int) (*vacation.AccrualEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccrualLocked(userID, year, month)
}

func (m *Memory) getAccrualLocked(userID string, year, month int) (*vacation.AccrualEntry, error) {
	e, ok := m.accruals[accrualKey{userID, year, month}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) ListAccruals(_ context.Context, userID string) ([]vacation.AccrualEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAccrualsLocked(userID), nil
}

func (m *Memory) listAccrualsLocked(userID string) []vacation.AccrualEntry {
	var entries []vacation.AccrualEntry
	for k, e := range m.accruals {
		if k.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Year != entries[j].Year {
			return entries[i].Year < entries[j].Year
		}
		return entries[i].Month < entries[j].Month
	})
	return entries
}

func (m *Memory) CreateAccrual(_ context.Context, e vacation.AccrualEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAccrualLocked(e)
}

func (m *Memory) createAccrualLocked(e vacation.AccrualEntry) error {
	k := accrualKey{e.UserID, e.Year, e.Month}
	if _, exists := m.accruals[k]; exists {
		return vacation.ErrDuplicateAccrual
	}
	m.accruals[k] = e
	return nil
}

// =============================================================================
// VACATION REQUESTS
// =============================================================================

func (m *Memory) GetRequest(_ context.Context, id string) (*vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) getRequestLocked(id string) (*vacation.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRequests(_ context.Context) ([]vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(func(vacation.Request) bool { return true }), nil
}

func (m *Memory) ListRequestsByUser(_ context.Context, userID string) ([]vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(func(r vacation.Request) bool { return r.UserID == userID }), nil
}

func (m *Memory) ListRequestsInYear(_ context.Context, userID string, year int, statuses []vacation.RequestStatus) ([]vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsInYearLocked(userID, year, statuses), nil
}

func (m *Memory) listRequestsInYearLocked(userID string, year int, statuses []vacation.RequestStatus) []vacation.Request {
	return m.listRequestsLocked(func(r vacation.Request) bool {
		return r.UserID == userID &&
			statusIn(r.Status, statuses) &&
			vacation.WithinYear(r.StartDate, r.EndDate, year)
	})
}

func (m *Memory) FindOverlapping(_ context.Context, userID string, start, end vacation.Date, statuses []vacation.RequestStatus) (*vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOverlappingLocked(userID, start, end, statuses)
}

func (m *Memory) findOverlappingLocked(userID string, start, end vacation.Date, statuses []vacation.RequestStatus) (*vacation.Request, error) {
	for _, r := range m.requests {
		if r.UserID != userID || !statusIn(r.Status, statuses) {
			continue
		}
		if vacation.Overlaps(r.StartDate, r.EndDate, start, end) {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateRequest(_ context.Context, r vacation.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRequestLocked(r)
}

func (m *Memory) createRequestLocked(r vacation.Request) error {
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) UpdateRequest(_ context.Context, r vacation.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestLocked(r)
}

func (m *Memory) updateRequestLocked(r vacation.Request) error {
	if _, exists := m.requests[r.ID]; !exists {
		return vacation.ErrRequestNotFound
	}
	m.requests[r.ID] = r
	return nil
}

func (m *Memory) listRequestsLocked(match func(vacation.Request) bool) []vacation.Request {
	var requests []vacation.Request
	for _, r := range m.requests {
		if match(r) {
			requests = append(requests, r)
		}
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests
}

func statusIn(status vacation.RequestStatus, statuses []vacation.RequestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// =============================================================================
// MANAGER RELATIONSHIPS
// =============================================================================

func (m *Memory) HasRelationship(_ context.Context, managerID, employeeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relationships[relationKey{managerID, employeeID}]
	return ok, nil
}

func (m *Memory) hasRelationshipLocked(managerID, employeeID string) (bool, error) {
	_, ok := m.relationships[relationKey{managerID, employeeID}]
	return ok, nil
}

func (m *Memory) SaveRelationship(_ context.Context, rel vacation.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRelationshipLocked(rel)
}

func (m *Memory) saveRelationshipLocked(rel vacation.Relationship) error {
	m.relationships[relationKey{rel.ManagerID, rel.EmployeeID}] = rel
	return nil
}

func (m *Memory) DeleteRelationship(_ context.Context, managerID, employeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.relationships, relationKey{managerID, employeeID})
	return nil
}

func (m *Memory) ListTeam(_ context.Context, managerID string) ([]vacation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTeamLocked(managerID), nil
}

func (m *Memory) listTeamLocked(managerID string) []vacation.User {
	var team []vacation.User
	for k := range m.relationships {
		if k.ManagerID != managerID {
			continue
		}
		if u, ok := m.users[k.EmployeeID]; ok {
			team = append(team, u)
		}
	}
	sort.Slice(team, func(i, j int) bool { return team[i].Name < team[j].Name })
	return team
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

func (m *Memory) GetRolloverRun(_ context.Context, year int) (*vacation.RolloverRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRolloverRunLocked(year)
}

func (m *Memory) getRolloverRunLocked(year int) (*vacation.RolloverRun, error) {
	run, ok := m.rollovers[year]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *Memory) SaveRolloverRun(_ context.Context, run vacation.RolloverRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRolloverRunLocked(run)
}

func (m *Memory) saveRolloverRunLocked(run vacation.RolloverRun) error {
	if _, exists := m.rollovers[run.Year]; exists {
		return vacation.ErrRolloverAlreadyApplied
	}
	m.rollovers[run.Year] = run
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry vacation.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(entry)
}

func (m *Memory) appendAuditLocked(entry vacation.AuditEntry) error {
	m.audits = append(m.audits, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter vacation.AuditFilter) ([]vacation.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryAuditLocked(filter), nil
}

func (m *Memory) queryAuditLocked(filter vacation.AuditFilter) []vacation.AuditEntry {
	var entries []vacation.AuditEntry
	// Newest first.
	for i := len(m.audits) - 1; i >= 0; i-- {
		entry := m.audits[i]
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		if filter.TargetUserID != "" && entry.TargetUserID != filter.TargetUserID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		entries = append(entries, entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	return entries
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func (m *Memory) GetCountry(_ context.Context, id string) (*vacation.Country, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCountryLocked(id)
}

func (m *Memory) getCountryLocked(id string) (*vacation.Country, error) {
	c, ok := m.countries[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListCountries(_ context.Context) ([]vacation.Country, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCountriesLocked(), nil
}

func (m *Memory) listCountriesLocked() []vacation.Country {
	var countries []vacation.Country
	for _, c := range m.countries {
		countries = append(countries, c)
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Name < countries[j].Name })
	return countries
}

func (m *Memory) SaveCountry(_ context.Context, c vacation.Country) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countries[c.ID] = c
	return nil
}

func (m *Memory) ListHolidays(_ context.Context, countryID string, year int) ([]vacation.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHolidaysLocked(countryID, year), nil
}

func (m *Memory) listHolidaysLocked(countryID string, year int) []vacation.Holiday {
	var holidays []vacation.Holiday
	for _, h := range m.holidays {
		if h.CountryID == countryID && h.Date.Year() == year {
			holidays = append(holidays, h)
		}
	}
	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date.Before(holidays[j].Date) })
	return holidays
}

func (m *Memory) SaveHoliday(_ context.Context, h vacation.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holidays, id)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot that is
// restored on error. The store mutex is held for the whole transaction, so
// the view must not re-lock.
func (m *Memory) WithTx(_ context.Context, fn func(vacation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()

	if err := fn(&txView{parent: m}); err != nil {
		m.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users         map[string]vacation.User
	balances      map[balanceKey]vacation.Balance
	accruals      map[accrualKey]vacation.AccrualEntry
	requests      map[string]vacation.Request
	relationships map[relationKey]vacation.Relationship
	rollovers     map[int]vacation.RolloverRun
	audits        []vacation.AuditEntry
	countries     map[string]vacation.Country
	holidays      map[string]vacation.Holiday
}

func (m *Memory) snapshotLocked() memorySnapshot {
	return memorySnapshot{
		users:         copyMap(m.users),
		balances:      copyMap(m.balances),
		accruals:      copyMap(m.accruals),
		requests:      copyMap(m.requests),
		relationships: copyMap(m.relationships),
		rollovers:     copyMap(m.rollovers),
		audits:        append([]vacation.AuditEntry{}, m.audits...),
		countries:     copyMap(m.countries),
		holidays:      copyMap(m.holidays),
	}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.users = s.users
	m.balances = s.balances
	m.accruals = s.accruals
	m.requests = s.requests
	m.relationships = s.relationships
	m.rollovers = s.rollovers
	m.audits = s.audits
	m.countries = s.countries
	m.holidays = s.holidays
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txView routes every operation to the parent's locked helpers. The parent
// mutex is held by WithTx for the view's whole lifetime.
type txView struct {
	parent *Memory
}

func (tv *txView) GetUser(_ context.Context, id string) (*vacation.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txView) ListUsers(_ context.Context) ([]vacation.User, error) {
	return tv.parent.listUsersLocked(false), nil
}

func (tv *txView) ListEmployedUsers(_ context.Context) ([]vacation.User, error) {
	return tv.parent.listUsersLocked(true), nil
}

func (tv *txView) SaveUser(_ context.Context, u vacation.User) error {
	return tv.parent.saveUserLocked(u)
}

func (tv *txView) GetBalance(_ context.Context, userID string, year int) (*vacation.Balance, error) {
	return tv.parent.getBalanceLocked(userID, year)
}

func (tv *txView) CreateBalance(_ context.Context, b vacation.Balance) error {
	return tv.parent.createBalanceLocked(b)
}

func (tv *txView) IncrementAdjusted(_ context.Context, userID string, year int, delta decimal.Decimal) error {
	return tv.parent.incrementAdjustedLocked(userID, year, delta)
}

func (tv *txView) GetAccrual(_ context.Context, userID string, year, month int) (*vacation.AccrualEntry, error) {
	return tv.parent.getAccrualLocked(userID, year, month)
}

func (tv *txView) ListAccruals(_ context.Context, userID string) ([]vacation.AccrualEntry, error) {
	return tv.parent.listAccrualsLocked(userID), nil
}

func (tv *txView) CreateAccrual(_ context.Context, e vacation.AccrualEntry) error {
	return tv.parent.createAccrualLocked(e)
}

func (tv *txView) GetRequest(_ context.Context, id string) (*vacation.Request, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txView) ListRequests(_ context.Context) ([]vacation.Request, error) {
	return tv.parent.listRequestsLocked(func(vacation.Request) bool { return true }), nil
}

func (tv *txView) ListRequestsByUser(_ context.Context, userID string) ([]vacation.Request, error) {
	return tv.parent.listRequestsLocked(func(r vacation.Request) bool { return r.UserID == userID }), nil
}

func (tv *txView) ListRequestsInYear(_ context.Context, userID string, year int, statuses []vacation.RequestStatus) ([]vacation.Request, error) {
	return tv.parent.listRequestsInYearLocked(userID, year, statuses), nil
}

func (tv *txView) FindOverlapping(_ context.Context, userID string, start, end vacation.Date, statuses []vacation.RequestStatus) (*vacation.Request, error) {
	return tv.parent.findOverlappingLocked(userID, start, end, statuses)
}

func (tv *txView) CreateRequest(_ context.Context, r vacation.Request) error {
	return tv.parent.createRequestLocked(r)
}

func (tv *txView) UpdateRequest(_ context.Context, r vacation.Request) error {
	return tv.parent.updateRequestLocked(r)
}

func (tv *txView) HasRelationship(_ context.Context, managerID, employeeID string) (bool, error) {
	return tv.parent.hasRelationshipLocked(managerID, employeeID)
}

func (tv *txView) SaveRelationship(_ context.Context, rel vacation.Relationship) error {
	return tv.parent.saveRelationshipLocked(rel)
}

func (tv *txView) DeleteRelationship(_ context.Context, managerID, employeeID string) error {
	delete(tv.parent.relationships, relationKey{managerID, employeeID})
	return nil
}

func (tv *txView) ListTeam(_ context.Context, managerID string) ([]vacation.User, error) {
	return tv.parent.listTeamLocked(managerID), nil
}

func (tv *txView) GetRolloverRun(_ context.Context, year int) (*vacation.RolloverRun, error) {
	return tv.parent.getRolloverRunLocked(year)
}

func (tv *txView) SaveRolloverRun(_ context.Context, run vacation.RolloverRun) error {
	return tv.parent.saveRolloverRunLocked(run)
}

func (tv *txView) AppendAudit(_ context.Context, entry vacation.AuditEntry) error {
	return tv.parent.appendAuditLocked(entry)
}

func (tv *txView) QueryAudit(_ context.Context, filter vacation.AuditFilter) ([]vacation.AuditEntry, error) {
	return tv.parent.queryAuditLocked(filter), nil
}

func (tv *txView) GetCountry(_ context.Context, id string) (*vacation.Country, error) {
	return tv.parent.getCountryLocked(id)
}

func (tv *txView) ListCountries(_ context.Context) ([]vacation.Country, error) {
	return tv.parent.listCountriesLocked(), nil
}

func (tv *txView) SaveCountry(_ context.Context, c vacation.Country) error {
	tv.parent.countries[c.ID] = c
	return nil
}

func (tv *txView) ListHolidays(_ context.Context, countryID string, year int) ([]vacation.Holiday, error) {
	return tv.parent.listHolidaysLocked(countryID, year), nil
}

func (tv *txView) SaveHoliday(_ context.Context, h vacation.Holiday) error {
	tv.parent.holidays[h.ID] = h
	return nil
}

func (tv *txView) DeleteHoliday(_ context.Context, id string) error {
	delete(tv.parent.holidays, id)
	return nil
}

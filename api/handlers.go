/*
handlers.go - HTTP API handlers for the vacation management system

PURPOSE:
  Exposes the vacation engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    GET    /api/users                     List users (admin)
    POST   /api/users                     Create user (admin)
    GET    /api/users/{id}                Get user details
    PATCH  /api/users/{id}                Update user (admin)
    GET    /api/users/{id}/holidays       Holidays in the user's country

  Vacations:
    GET    /api/vacations                 List visible requests (?user_id=)
    POST   /api/vacations                 Submit a vacation request
    GET    /api/vacations/{id}            Get one request
    PATCH  /api/vacations/{id}            Transition status (approve/reject/...)

  Balances:
    GET    /api/balances/{userID}         Computed balance breakdown
    POST   /api/balances/adjust           Manual adjustment (admin)

  Managers:
    GET    /api/managers/{id}/team        List a manager's employees
    POST   /api/managers/relationships    Link manager to employee (admin)
    DELETE /api/managers/relationships    Unlink (admin)

  Calendar:
    GET    /api/countries                 List countries
    POST   /api/countries                 Create country (admin)
    GET    /api/countries/{id}/holidays   List holidays (?year=)
    POST   /api/countries/{id}/holidays   Add holiday (admin)
    DELETE /api/holidays/{id}             Remove holiday (admin)

  Admin:
    POST   /api/admin/rollover            Trigger year-end carryover
    POST   /api/admin/accrual/run         Run the monthly accrual now
    GET    /api/audit-logs                Query the audit log (admin)

IDENTITY:
  The acting user is taken from the X-User-ID header. There is no session
  or token verification here; an authenticating proxy is expected in front.
  Requests without the header get 401.

ERROR HANDLING:
  Domain errors are mapped to HTTP status codes in writeDomainError:
  - 400: validation failures, insufficient balance
  - 403: actor lacks authority
  - 404: unknown user or request
  - 409: overlapping request, illegal transition, rollover already applied
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - vacation/: Domain logic the handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for the HTTP layer.
type Handler struct {
	Store    vacation.Store
	Engine   *vacation.AccrualEngine
	Requests *vacation.RequestService
	Authz    vacation.Authorizer
}

// NewHandler wires the domain services around a store.
func NewHandler(store vacation.Store) *Handler {
	engine := vacation.NewAccrualEngine(store)
	authz := vacation.NewRoleAuthorizer(store)
	return &Handler{
		Store:    store,
		Engine:   engine,
		Requests: vacation.NewRequestService(store, engine, authz),
		Authz:    authz,
	}
}

// actorHeader carries the acting user's ID. An authenticating proxy is
// expected to set it; the API trusts it as-is.
const actorHeader = "X-User-ID"

// actor resolves the acting user from the request header. A nil user with a
// nil error means the response has already been written.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) *vacation.User {
	id := r.Header.Get(actorHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+actorHeader+" header", nil)
		return nil
	}

	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve acting user", err)
		return nil
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Unknown acting user", nil)
		return nil
	}
	return user
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) *vacation.User {
	actor := h.actor(w, r)
	if actor == nil {
		return nil
	}
	if actor.Role != vacation.RoleAdmin {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return nil
	}
	return actor
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

// ListUsers returns all users (GET /api/users).
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns one user (GET /api/users/{id}).
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if !h.canManage(w, r, actor, id) {
		return
	}

	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// CreateUser creates a user (POST /api/users).
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required", nil)
		return
	}

	role := vacation.Role(req.Role)
	switch role {
	case "":
		role = vacation.RoleEmployee
	case vacation.RoleEmployee, vacation.RoleManager, vacation.RoleAdmin:
	default:
		writeError(w, http.StatusBadRequest, "Invalid role", nil)
		return
	}

	user := vacation.User{
		ID:        req.ID,
		Name:      req.Name,
		Email:     req.Email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if req.EmploymentDate != "" {
		d, err := vacation.ParseDate(req.EmploymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid employment_date format (use YYYY-MM-DD)", err)
			return
		}
		user.EmploymentDate = &d
	}
	if req.CountryID != "" {
		user.CountryID = &req.CountryID
	}

	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// UpdateUser updates a user's profile fields (PATCH /api/users/{id}).
// Empty fields in the body are left unchanged.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	ctx := r.Context()
	user, err := h.Store.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Role != "" {
		role := vacation.Role(req.Role)
		switch role {
		case vacation.RoleEmployee, vacation.RoleManager, vacation.RoleAdmin:
			user.Role = role
		default:
			writeError(w, http.StatusBadRequest, "Invalid role", nil)
			return
		}
	}
	if req.EmploymentDate != "" {
		d, err := vacation.ParseDate(req.EmploymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid employment_date format (use YYYY-MM-DD)", err)
			return
		}
		user.EmploymentDate = &d
	}
	if req.CountryID != "" {
		user.CountryID = &req.CountryID
	}

	if err := h.Store.SaveUser(ctx, *user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// ListUserHolidays returns the holidays in a user's country for a year
// (GET /api/users/{id}/holidays?year=). A user without a country has none.
func (h *Handler) ListUserHolidays(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	userID := chi.URLParam(r, "id")
	if !h.canManage(w, r, actor, userID) {
		return
	}

	ctx := r.Context()
	user, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	year := time.Now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = n
	}

	dtos := []HolidayDTO{}
	if user.CountryID != nil {
		holidays, err := h.Store.ListHolidays(ctx, *user.CountryID, year)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
			return
		}
		for _, hd := range holidays {
			dtos = append(dtos, HolidayDTO{
				ID:        hd.ID,
				CountryID: hd.CountryID,
				Date:      hd.Date.String(),
				Name:      hd.Name,
			})
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// VACATION ENDPOINTS
// =============================================================================

// ListVacations returns the requests visible to the actor (GET /api/vacations).
// An optional ?user_id= narrows to one user within the actor's scope.
func (h *Handler) ListVacations(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	requests, err := h.Requests.ListForActor(r.Context(), actor.ID, r.URL.Query().Get("user_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVacationDTOs(requests))
}

// CreateVacation submits a new vacation request (POST /api/vacations).
func (h *Handler) CreateVacation(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	var req CreateVacationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID && !h.canManage(w, r, actor, userID) {
		return
	}

	start, err := vacation.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := vacation.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	created, err := h.Requests.Create(r.Context(), userID, start, end, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVacationDTO(*created))
}

// GetVacation returns one request (GET /api/vacations/{id}).
func (h *Handler) GetVacation(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	request, err := h.Requests.Get(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVacationDTO(*request))
}

// TransitionVacation changes a request's status (PATCH /api/vacations/{id}).
func (h *Handler) TransitionVacation(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	var req TransitionVacationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required", nil)
		return
	}

	updated, err := h.Requests.Transition(r.Context(), chi.URLParam(r, "id"), actor.ID,
		vacation.RequestStatus(req.Status), req.RejectionReason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVacationDTO(*updated))
}

// =============================================================================
// BALANCE ENDPOINTS
// =============================================================================

// GetBalance returns the computed balance breakdown for a user's current
// year (GET /api/balances/{userID}).
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	userID := chi.URLParam(r, "userID")
	if !h.canManage(w, r, actor, userID) {
		return
	}

	ctx := r.Context()
	user, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	now := time.Now()
	year := now.Year()

	accrued, err := h.Engine.CalculateAccruedDays(ctx, userID, now)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	used, err := h.Engine.UsedDays(ctx, userID, year)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	available, err := h.Engine.AvailableDays(ctx, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	adjusted := decimal.Zero
	if balance, err := h.Store.GetBalance(ctx, userID, year); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	} else if balance != nil {
		adjusted = balance.Adjusted
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:    userID,
		Year:      year,
		Accrued:   accrued.StringFixed(4),
		Adjusted:  adjusted.StringFixed(4),
		Used:      used.StringFixed(4),
		Available: available.StringFixed(4),
		AsOf:      now.UTC().Format(time.RFC3339),
	})
}

// AdjustBalance applies a manual adjustment (POST /api/balances/adjust).
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actor := h.requireAdmin(w, r)
	if actor == nil {
		return
	}

	var req AdjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	if err := h.Engine.AdjustBalance(r.Context(), actor.ID, req.UserID, amount, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": req.UserID,
		"amount":  amount.String(),
		"reason":  req.Reason,
	})
}

// =============================================================================
// MANAGER ENDPOINTS
// =============================================================================

// ListTeam returns a manager's employees (GET /api/managers/{id}/team).
func (h *Handler) ListTeam(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(w, r)
	if actor == nil {
		return
	}

	managerID := chi.URLParam(r, "id")
	if actor.ID != managerID && actor.Role != vacation.RoleAdmin {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}

	team, err := h.Store.ListTeam(r.Context(), managerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list team", err)
		return
	}

	dtos := make([]UserDTO, 0, len(team))
	for _, u := range team {
		dtos = append(dtos, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRelationship links a manager to an employee
// (POST /api/managers/relationships).
func (h *Handler) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	var req RelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ManagerID == "" || req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "manager_id and employee_id are required", nil)
		return
	}

	ctx := r.Context()
	manager, err := h.Store.GetUser(ctx, req.ManagerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get manager", err)
		return
	}
	if manager == nil {
		writeError(w, http.StatusNotFound, "Manager not found", nil)
		return
	}
	if manager.Role != vacation.RoleManager && manager.Role != vacation.RoleAdmin {
		writeError(w, http.StatusBadRequest, "User is not a manager", nil)
		return
	}
	employee, err := h.Store.GetUser(ctx, req.EmployeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if employee == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	rel := vacation.Relationship{
		ManagerID:  req.ManagerID,
		EmployeeID: req.EmployeeID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Store.SaveRelationship(ctx, rel); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create relationship", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteRelationship unlinks a manager and an employee
// (DELETE /api/managers/relationships).
func (h *Handler) DeleteRelationship(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	var req RelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Store.DeleteRelationship(r.Context(), req.ManagerID, req.EmployeeID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete relationship", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// TriggerRollover applies year-end carryover (POST /api/admin/rollover).
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	var req RolloverRequest
	if r.Body != nil {
		// An empty body means the current year.
		json.NewDecoder(r.Body).Decode(&req)
	}

	ctx := r.Context()
	if err := h.Engine.ProcessYearRollover(ctx, req.Year); err != nil {
		writeDomainError(w, err)
		return
	}

	year := req.Year
	if year == 0 {
		year = time.Now().Year()
	}
	run, err := h.Store.GetRolloverRun(ctx, year)
	if err != nil || run == nil {
		writeError(w, http.StatusInternalServerError, "Rollover completed but run record missing", err)
		return
	}
	writeJSON(w, http.StatusOK, RolloverDTO{
		Year:           run.Year,
		UsersProcessed: run.UsersProcessed,
		CarriedOver:    run.CarriedOver.StringFixed(4),
		CompletedAt:    run.CompletedAt.Format(time.RFC3339),
	})
}

// RunMonthlyAccrual runs the monthly accrual immediately
// (POST /api/admin/accrual/run). The scheduler does this on its own;
// the endpoint exists for operations and testing.
func (h *Handler) RunMonthlyAccrual(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	if err := h.Engine.ProcessMonthlyAccrual(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed"})
}

// QueryAuditLogs returns filtered audit entries (GET /api/audit-logs).
func (h *Handler) QueryAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	q := r.URL.Query()
	filter := vacation.AuditFilter{
		ActorID:      q.Get("actor_id"),
		TargetUserID: q.Get("target_user_id"),
		Action:       vacation.AuditAction(q.Get("action")),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}

	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, AuditEntryDTO{
			ID:           e.ID,
			ActorID:      e.ActorID,
			TargetUserID: e.TargetUserID,
			Action:       string(e.Action),
			Details:      e.Details,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HOLIDAY CALENDAR ENDPOINTS
// =============================================================================

// ListCountries returns all countries (GET /api/countries).
func (h *Handler) ListCountries(w http.ResponseWriter, r *http.Request) {
	if h.actor(w, r) == nil {
		return
	}

	countries, err := h.Store.ListCountries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list countries", err)
		return
	}

	dtos := make([]CountryDTO, 0, len(countries))
	for _, c := range countries {
		dtos = append(dtos, CountryDTO{ID: c.ID, Name: c.Name, Code: c.Code})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCountry registers a country (POST /api/countries).
func (h *Handler) CreateCountry(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	var req CreateCountryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	country := vacation.Country{
		ID:        req.ID,
		Name:      req.Name,
		Code:      req.Code,
		CreatedAt: time.Now().UTC(),
	}
	if country.ID == "" {
		country.ID = uuid.NewString()
	}

	if err := h.Store.SaveCountry(r.Context(), country); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create country", err)
		return
	}
	writeJSON(w, http.StatusCreated, CountryDTO{ID: country.ID, Name: country.Name, Code: country.Code})
}

// ListHolidays returns a country's holidays for a year
// (GET /api/countries/{id}/holidays?year=).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	if h.actor(w, r) == nil {
		return
	}

	year := time.Now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = n
	}

	holidays, err := h.Store.ListHolidays(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hd := range holidays {
		dtos = append(dtos, HolidayDTO{
			ID:        hd.ID,
			CountryID: hd.CountryID,
			Date:      hd.Date.String(),
			Name:      hd.Name,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a holiday to a country's calendar
// (POST /api/countries/{id}/holidays).
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	countryID := chi.URLParam(r, "id")
	ctx := r.Context()
	country, err := h.Store.GetCountry(ctx, countryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get country", err)
		return
	}
	if country == nil {
		writeError(w, http.StatusNotFound, "Country not found", nil)
		return
	}

	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := vacation.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	holiday := vacation.Holiday{
		ID:        uuid.NewString(),
		CountryID: countryID,
		Date:      date,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveHoliday(ctx, holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{
		ID:        holiday.ID,
		CountryID: holiday.CountryID,
		Date:      holiday.Date.String(),
		Name:      holiday.Name,
	})
}

// DeleteHoliday removes a holiday (DELETE /api/holidays/{id}).
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// canManage checks the authority predicate and writes 403 on failure.
func (h *Handler) canManage(w http.ResponseWriter, r *http.Request, actor *vacation.User, targetUserID string) bool {
	ok, err := h.Authz.CanManage(r.Context(), actor, targetUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Authority check failed", err)
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return false
	}
	return true
}

func writeDomainError(w http.ResponseWriter, err error) {
	var ve *vacation.ValidationError
	switch {
	case vacation.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, vacation.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", nil)
	case errors.Is(err, vacation.ErrOverlappingRequest),
		errors.Is(err, vacation.ErrInvalidTransition),
		errors.Is(err, vacation.ErrRolloverAlreadyApplied):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.As(err, &ve),
		errors.Is(err, vacation.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

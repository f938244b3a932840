/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  All calendar dates cross the wire as YYYY-MM-DD strings; timestamps as
  RFC 3339. Day amounts are decimal strings, never floats.

VALIDATION:
  Validation is done in handlers and domain services, not in DTOs. DTOs
  are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	EmploymentDate string `json:"employment_date,omitempty"`
	CountryID      string `json:"country_id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreateUserRequest is the request to create a user. ID is optional; one is
// generated when omitted.
type CreateUserRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	EmploymentDate string `json:"employment_date"`
	CountryID      string `json:"country_id"`
}

// UpdateUserRequest is the admin request to update a user. Empty fields are
// left unchanged.
type UpdateUserRequest struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	EmploymentDate string `json:"employment_date"`
	CountryID      string `json:"country_id"`
}

func toUserDTO(u vacation.User) UserDTO {
	dto := UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.EmploymentDate != nil {
		dto.EmploymentDate = u.EmploymentDate.String()
	}
	if u.CountryID != nil {
		dto.CountryID = *u.CountryID
	}
	return dto
}

// =============================================================================
// VACATION REQUESTS
// =============================================================================

// VacationDTO represents a vacation request in API responses.
type VacationDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	Days            int     `json:"days"`
	Status          string  `json:"status"`
	Comment         string  `json:"comment,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	ApprovedByID    *string `json:"approved_by_id,omitempty"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// CreateVacationRequest is the request to submit a vacation request.
// UserID is optional; it defaults to the acting user.
type CreateVacationRequest struct {
	UserID    string `json:"user_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Comment   string `json:"comment"`
}

// TransitionVacationRequest is the request to change a request's status.
type TransitionVacationRequest struct {
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason"`
}

func toVacationDTO(r vacation.Request) VacationDTO {
	dto := VacationDTO{
		ID:              r.ID,
		UserID:          r.UserID,
		StartDate:       r.StartDate.String(),
		EndDate:         r.EndDate.String(),
		Days:            r.Days,
		Status:          string(r.Status),
		Comment:         r.Comment,
		RejectionReason: r.RejectionReason,
		ApprovedByID:    r.ApprovedByID,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
	if r.ApprovedAt != nil {
		s := r.ApprovedAt.Format(time.RFC3339)
		dto.ApprovedAt = &s
	}
	return dto
}

func toVacationDTOs(requests []vacation.Request) []VacationDTO {
	dtos := make([]VacationDTO, 0, len(requests))
	for _, r := range requests {
		dtos = append(dtos, toVacationDTO(r))
	}
	return dtos
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is the computed balance breakdown for a user's current year.
// Amounts are decimal strings to preserve the 20/12 monthly precision.
type BalanceDTO struct {
	UserID    string `json:"user_id"`
	Year      int    `json:"year"`
	Accrued   string `json:"accrued"`
	Adjusted  string `json:"adjusted"`
	Used      string `json:"used"`
	Available string `json:"available"`
	AsOf      string `json:"as_of"`
}

// AdjustBalanceRequest is the admin request to adjust a user's balance.
type AdjustBalanceRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// =============================================================================
// MANAGER RELATIONSHIPS
// =============================================================================

// RelationshipRequest links or unlinks a manager and an employee.
type RelationshipRequest struct {
	ManagerID  string `json:"manager_id"`
	EmployeeID string `json:"employee_id"`
}

// =============================================================================
// ADMIN
// =============================================================================

// RolloverRequest triggers year-end carryover. Year 0 means the current year.
type RolloverRequest struct {
	Year int `json:"year"`
}

// RolloverDTO reports a completed rollover run.
type RolloverDTO struct {
	Year           int    `json:"year"`
	UsersProcessed int    `json:"users_processed"`
	CarriedOver    string `json:"carried_over"`
	CompletedAt    string `json:"completed_at"`
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// CountryDTO represents a country in API responses.
type CountryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// CreateCountryRequest is the request to register a country.
type CreateCountryRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// HolidayDTO represents a public holiday.
type HolidayDTO struct {
	ID        string `json:"id"`
	CountryID string `json:"country_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
}

// CreateHolidayRequest is the request to add a holiday to a country.
type CreateHolidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditEntryDTO represents an audit log entry.
type AuditEntryDTO struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id"`
	TargetUserID string         `json:"target_user_id"`
	Action       string         `json:"action"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

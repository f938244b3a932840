/*
request.go - Vacation request lifecycle

PURPOSE:
  Governs the state machine of a vacation request from creation through
  approval, rejection, cancellation, and cancellation-approval.

STATE MACHINE:

  (new) ──▶ PENDING ──▶ APPROVED ──▶ CANCELLATION_REQUESTED ──▶ CANCELLED
               │            ▲                    │
               ├──▶ REJECTED└────────────────────┘ (cancellation rejected)
               └──▶ CANCELLED (requester withdraws a pending request)

  REJECTED and CANCELLED are terminal. A CANCELLATION_REQUESTED request
  still consumes balance until a manager confirms the cancellation.

GUARDS:
  - Creation: no overlapping request in {PENDING, APPROVED,
    CANCELLATION_REQUESTED}, start not in the past, start <= end, and
    available balance >= the inclusive day count.
  - Approval: balance is re-checked at approval time - it may have dropped
    since creation due to concurrent requests or admin adjustments.
  - Rejection: requires a non-empty rejection reason.
  - Authority: approve/reject and cancellation resolution go through the
    injected Authorizer predicate; withdrawing a pending request and
    requesting cancellation are requester-only.

ATOMICITY:
  Every guard is evaluated before any persistence write. The status update,
  the audit entry, and (for creation/approval) the balance check run inside
  one store transaction, which also serializes concurrent check-then-write
  sequences for the same user.

SEE ALSO:
  - accrual.go: AvailableDays used by the balance gates
  - authz.go: the authority predicate
*/
package vacation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestService orchestrates the vacation request lifecycle.
type RequestService struct {
	Store   Store
	Accrual *AccrualEngine
	Authz   Authorizer

	Now func() time.Time
}

func NewRequestService(store Store, accrual *AccrualEngine, authz Authorizer) *RequestService {
	return &RequestService{Store: store, Accrual: accrual, Authz: authz, Now: time.Now}
}

func (s *RequestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var overlapBlockingStatuses = []RequestStatus{
	StatusPending, StatusApproved, StatusCancellationRequested,
}

// =============================================================================
// CREATION
// =============================================================================

// Create validates and persists a new PENDING request for the user.
// Violations surface as typed errors before anything is written.
func (s *RequestService) Create(ctx context.Context, userID string, start, end Date, comment string) (*Request, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if end.Before(start) {
		return nil, &ValidationError{Field: "end_date", Message: "end date must not be before start date"}
	}
	today := DateOf(s.now())
	if start.Before(today) {
		return nil, &ValidationError{Field: "start_date", Message: "start date must not be in the past"}
	}

	days := CalculateVacationDays(start, end)
	now := s.now().UTC()
	request := Request{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartDate: start,
		EndDate:   end,
		Days:      days,
		Status:    StatusPending,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = withTx(ctx, s.Store, func(st Store) error {
		conflict, err := st.FindOverlapping(ctx, userID, start, end, overlapBlockingStatuses)
		if err != nil {
			return fmt.Errorf("overlap check: %w", err)
		}
		if conflict != nil {
			return &OverlapError{
				UserID:            userID,
				Start:             start,
				End:               end,
				ConflictingID:     conflict.ID,
				ConflictingStatus: conflict.Status,
			}
		}

		if err := s.checkBalance(ctx, st, userID, days); err != nil {
			return err
		}

		if err := st.CreateRequest(ctx, request); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return st.AppendAudit(ctx, AuditEntry{
			ID:           uuid.NewString(),
			ActorID:      userID,
			TargetUserID: userID,
			Action:       AuditRequestCreated,
			Details: map[string]any{
				"request_id": request.ID,
				"start_date": start.String(),
				"end_date":   end.String(),
				"days":       days,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// checkBalance fails with InsufficientBalanceError when the user's available
// days cannot cover the requested count.
func (s *RequestService) checkBalance(ctx context.Context, st Store, userID string, days int) error {
	available, err := s.Accrual.withStore(st).AvailableDays(ctx, userID)
	if err != nil {
		return fmt.Errorf("available days: %w", err)
	}
	required := decimal.NewFromInt(int64(days))
	if available.LessThan(required) {
		return &InsufficientBalanceError{UserID: userID, Available: available, Required: required}
	}
	return nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Transition applies a status change to a request on behalf of an actor,
// enforcing the state machine's guards. rejectionReason is required when
// rejecting and ignored otherwise.
func (s *RequestService) Transition(ctx context.Context, requestID, actorID string, to RequestStatus, rejectionReason string) (*Request, error) {
	actor, err := s.Store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, ErrUserNotFound
	}

	request, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}

	switch {
	case request.Status == StatusPending && to == StatusApproved:
		return s.approve(ctx, request, actor)
	case request.Status == StatusPending && to == StatusRejected:
		return s.reject(ctx, request, actor, rejectionReason)
	case request.Status == StatusPending && to == StatusCancelled:
		return s.withdraw(ctx, request, actor)
	case request.Status == StatusApproved && to == StatusCancellationRequested:
		return s.requestCancellation(ctx, request, actor)
	case request.Status == StatusCancellationRequested && to == StatusCancelled:
		return s.confirmCancellation(ctx, request, actor)
	case request.Status == StatusCancellationRequested && to == StatusApproved:
		return s.rejectCancellation(ctx, request, actor)
	default:
		return nil, &TransitionError{From: request.Status, To: to}
	}
}

// approve moves PENDING to APPROVED, re-checking the balance inside the
// transaction: it may have dropped since the request was created.
func (s *RequestService) approve(ctx context.Context, request *Request, actor *User) (*Request, error) {
	if err := s.requireAuthority(ctx, actor, request.UserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err := withTx(ctx, s.Store, func(st Store) error {
		if err := s.checkBalance(ctx, st, request.UserID, request.Days); err != nil {
			return err
		}

		request.Status = StatusApproved
		request.ApprovedByID = &actor.ID
		request.ApprovedAt = &now
		request.RejectionReason = nil
		request.UpdatedAt = now

		if err := st.UpdateRequest(ctx, *request); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return st.AppendAudit(ctx, s.transitionAudit(actor, request, AuditRequestApproved, now, nil))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *RequestService) reject(ctx context.Context, request *Request, actor *User, reason string) (*Request, error) {
	if err := s.requireAuthority(ctx, actor, request.UserID); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, &ValidationError{Field: "rejection_reason", Message: "rejection reason is required"}
	}

	now := s.now().UTC()
	request.Status = StatusRejected
	request.RejectionReason = &reason
	request.UpdatedAt = now

	err := withTx(ctx, s.Store, func(st Store) error {
		if err := st.UpdateRequest(ctx, *request); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return st.AppendAudit(ctx, s.transitionAudit(actor, request, AuditRequestRejected, now,
			map[string]any{"rejection_reason": reason}))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// withdraw lets a requester cancel their own still-pending request directly.
func (s *RequestService) withdraw(ctx context.Context, request *Request, actor *User) (*Request, error) {
	if actor.ID != request.UserID {
		return nil, ErrForbidden
	}

	now := s.now().UTC()
	request.Status = StatusCancelled
	request.UpdatedAt = now

	err := withTx(ctx, s.Store, func(st Store) error {
		if err := st.UpdateRequest(ctx, *request); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return st.AppendAudit(ctx, s.transitionAudit(actor, request, AuditRequestCancelled, now, nil))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// requestCancellation asks to undo an approved vacation. The days stay
// consumed until a manager confirms.
func (s *RequestService) requestCancellation(ctx context.Context, request *Request, actor *User) (*Request, error) {
	if actor.ID != request.UserID {
		return nil, ErrForbidden
	}

	now := s.now().UTC()
	request.Status = StatusCancellationRequested
	request.UpdatedAt = now

	err := withTx(ctx, s.Store, func(st Store) error {
		if err := st.UpdateRequest(ctx, *request); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return st.AppendAudit(ctx, s.transitionAudit(actor, request, AuditCancellationRequested, now, nil))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// confirmCancellation approves a cancellation request, freeing the days.
// The approval fields record who confirmed it.
func (s *RequestService) confirmCancellation(ctx context.Context, request *Request, actor *User) (*Request, error) {
	if err := s.requireAuthority(ctx, actor, request.UserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	request.Status = StatusCancelled
	request.ApprovedByID = &actor.ID
	request.ApprovedAt = &now
	request.UpdatedAt = now

	err := withTx(ctx, s.Store, func(st Store) error {
		if err := st.UpdateRequest(ctx, *request); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return st.AppendAudit(ctx, s.transitionAudit(actor, request, AuditRequestCancelled, now,
			map[string]any{"cancellation_confirmed": true}))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// rejectCancellation reverts a cancellation request back to APPROVED. The
// original approval fields and day count are untouched; any rejection
// reason is cleared.
func (s *RequestService) rejectCancellation(ctx context.Context, request *Request, actor *User) (*Request, error) {
	if err := s.requireAuthority(ctx, actor, request.UserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	request.Status = StatusApproved
	request.RejectionReason = nil
	request.UpdatedAt = now

	err := withTx(ctx, s.Store, func(st Store) error {
		if err := st.UpdateRequest(ctx, *request); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return st.AppendAudit(ctx, s.transitionAudit(actor, request, AuditRequestApproved, now,
			map[string]any{"cancellation_rejected": true}))
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *RequestService) requireAuthority(ctx context.Context, actor *User, targetUserID string) error {
	ok, err := s.Authz.CanManage(ctx, actor, targetUserID)
	if err != nil {
		return fmt.Errorf("authority check: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *RequestService) transitionAudit(actor *User, request *Request, action AuditAction, at time.Time, extra map[string]any) AuditEntry {
	details := map[string]any{
		"request_id": request.ID,
		"status":     string(request.Status),
	}
	for k, v := range extra {
		details[k] = v
	}
	return AuditEntry{
		ID:           uuid.NewString(),
		ActorID:      actor.ID,
		TargetUserID: request.UserID,
		Action:       action,
		Details:      details,
		CreatedAt:    at,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a single request, enforcing that the actor may view it.
func (s *RequestService) Get(ctx context.Context, actorID, requestID string) (*Request, error) {
	actor, err := s.Store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, ErrUserNotFound
	}

	request, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}

	if err := s.requireAuthority(ctx, actor, request.UserID); err != nil {
		return nil, err
	}
	return request, nil
}

// ListForActor returns the requests the actor may see: admins see all,
// managers see their team plus their own, employees see only their own.
// filterUserID optionally narrows to one user (subject to the same scope).
func (s *RequestService) ListForActor(ctx context.Context, actorID, filterUserID string) ([]Request, error) {
	actor, err := s.Store.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, ErrUserNotFound
	}

	switch actor.Role {
	case RoleAdmin:
		if filterUserID != "" {
			return s.Store.ListRequestsByUser(ctx, filterUserID)
		}
		return s.Store.ListRequests(ctx)

	case RoleManager:
		team, err := s.Store.ListTeam(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		visible := map[string]bool{actor.ID: true}
		for _, member := range team {
			visible[member.ID] = true
		}
		if filterUserID != "" {
			if !visible[filterUserID] {
				return nil, ErrForbidden
			}
			return s.Store.ListRequestsByUser(ctx, filterUserID)
		}
		var all []Request
		for id := range visible {
			requests, err := s.Store.ListRequestsByUser(ctx, id)
			if err != nil {
				return nil, err
			}
			all = append(all, requests...)
		}
		sortRequestsByCreated(all)
		return all, nil

	default:
		if filterUserID != "" && filterUserID != actor.ID {
			return nil, ErrForbidden
		}
		return s.Store.ListRequestsByUser(ctx, actor.ID)
	}
}

func sortRequestsByCreated(requests []Request) {
	for i := 1; i < len(requests); i++ {
		for j := i; j > 0 && requests[j].CreatedAt.After(requests[j-1].CreatedAt); j-- {
			requests[j], requests[j-1] = requests[j-1], requests[j]
		}
	}
}

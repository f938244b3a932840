package vacation

import "context"

// =============================================================================
// AUTHORIZATION - single capability predicate, injected as a collaborator
// =============================================================================

// Authorizer decides whether an actor has authority over a target user's
// vacation data. The identity of the actor comes from the auth collaborator;
// this predicate only answers the capability question.
type Authorizer interface {
	// CanManage reports whether actor may act on targetUserID's requests
	// and balance.
	CanManage(ctx context.Context, actor *User, targetUserID string) (bool, error)
}

// RoleAuthorizer implements the standard rule: admins manage everyone,
// users manage themselves, and managers manage employees they have a
// relationship row with.
type RoleAuthorizer struct {
	Store Store
}

func NewRoleAuthorizer(store Store) *RoleAuthorizer {
	return &RoleAuthorizer{Store: store}
}

func (a *RoleAuthorizer) CanManage(ctx context.Context, actor *User, targetUserID string) (bool, error) {
	if actor == nil {
		return false, nil
	}
	if actor.Role == RoleAdmin {
		return true, nil
	}
	if actor.ID == targetUserID {
		return true, nil
	}
	if actor.Role == RoleManager {
		return a.Store.HasRelationship(ctx, actor.ID, targetUserID)
	}
	return false, nil
}

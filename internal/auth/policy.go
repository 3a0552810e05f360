package auth

import (
	"context"

	"github.com/flycalcio/guestapp/internal/apperror"
	"github.com/flycalcio/guestapp/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// A package-private type means no other package can construct a key that
// collides with ours, so only this package can read or write the Identity.
type contextKey string

const identityKey contextKey = "identity"

// Identity is the verified caller of a request.
type Identity struct {
	SubjectID string
	Email     string
	Role      model.Role
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller set by RequireAuth, or nil for an
// anonymous request.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// Action is something a caller may or may not be allowed to do.
type Action string

const (
	ActionEventCreate      Action = "event:create"
	ActionEventUpdate      Action = "event:update"
	ActionEventDelete      Action = "event:delete"
	ActionEventListAll     Action = "event:list-all"
	ActionEventListOwn     Action = "event:list-own"
	ActionAssignmentCreate Action = "assignment:create"
	ActionAssignmentDelete Action = "assignment:delete"
	ActionProfileRead      Action = "profile:read"
)

// Policy maps each action to the minimum role that may perform it.
// Actions missing from the table are denied.
type Policy map[Action]model.Role

// DefaultPolicy: event and assignment mutations (and listing every event)
// are ADMIN only; reading your own profile and assigned events needs any
// signed-in user.
var DefaultPolicy = Policy{
	ActionEventCreate:      model.RoleAdmin,
	ActionEventUpdate:      model.RoleAdmin,
	ActionEventDelete:      model.RoleAdmin,
	ActionEventListAll:     model.RoleAdmin,
	ActionAssignmentCreate: model.RoleAdmin,
	ActionAssignmentDelete: model.RoleAdmin,
	ActionEventListOwn:     model.RoleUser,
	ActionProfileRead:      model.RoleUser,
}

// Gate is the single place role requirements are enforced.
type Gate struct {
	policy Policy
}

// NewGate creates a Gate over policy. A nil policy means DefaultPolicy.
func NewGate(policy Policy) *Gate {
	if policy == nil {
		policy = DefaultPolicy
	}
	return &Gate{policy: policy}
}

// Authorize returns nil if id may perform action.
//
// A nil identity is always Unauthorized (401), checked before anything else.
// A known identity whose role does not satisfy the table is Forbidden (403).
func (g *Gate) Authorize(id *Identity, action Action) error {
	if id == nil || id.SubjectID == "" {
		return apperror.Unauthorized("Unauthorized")
	}
	required, ok := g.policy[action]
	if !ok || !id.Role.Satisfies(required) {
		return apperror.Forbidden("Forbidden")
	}
	return nil
}

// Allows is Authorize as a bool, for branching (e.g. list all vs own).
func (g *Gate) Allows(id *Identity, action Action) bool {
	return g.Authorize(id, action) == nil
}

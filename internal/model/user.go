// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the coarse permission level carried by every user and token.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Satisfies reports whether a holder of r may perform an action that
// requires the given role. ADMIN satisfies USER; nothing satisfies an
// unknown role.
func (r Role) Satisfies(required Role) bool {
	switch required {
	case RoleUser:
		return r == RoleUser || r == RoleAdmin
	case RoleAdmin:
		return r == RoleAdmin
	default:
		return false
	}
}

// Provider names the identity source a user record was created from.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User represents a registered account.
//
// Email is unique across all users and stored exactly as submitted (after
// trimming surrounding whitespace). PasswordHash is empty for accounts that
// were created through an external identity provider.
type User struct {
	ID           string    `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Provider     string    `json:"provider,omitempty"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is the projection of a User that is safe to return to clients.
type PublicUser struct {
	ID        string    `json:"userId"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Public strips everything a client must never see.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Confirmed: u.Confirmed,
		CreatedAt: u.CreatedAt,
	}
}

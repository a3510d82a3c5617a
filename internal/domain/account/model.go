// Package account manages staff accounts: credentials, role assignment
// and the login surface. It adapts its storage model to the auth
// package's Principal so the middleware chain never depends on this
// package.
package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/caremesh/caremesh/internal/platform/auth"
)

// Account is a staff member's credential record. PasswordHash is bcrypt
// and never serialized.
type Account struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	RoleID         *uuid.UUID `json:"role_id,omitempty"`
	CurrentOrgID   *uuid.UUID `json:"current_org_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Principal adapts the account to the identity the middleware chain
// carries through a request.
func (a *Account) Principal() *auth.Principal {
	return &auth.Principal{
		ID:             a.ID,
		Username:       a.Username,
		Role:           auth.Role(a.Role),
		RoleID:         a.RoleID,
		OrganizationID: a.OrganizationID,
		CurrentOrgID:   a.CurrentOrgID,
		IsActive:       a.IsActive,
		LockedUntil:    a.LockedUntil,
	}
}

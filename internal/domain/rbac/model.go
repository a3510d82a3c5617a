// Package rbac manages the dynamic role→permission graph. Built-in role
// names gate route access; the rows here add fine-grained capabilities a
// role grants, editable at runtime by administrators.
package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named grant set within one organization. Key ties the row to
// the built-in role constant it refines.
type Role struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	IsSystem       bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Permission is a registered capability, named "resource.action".
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

package org

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant: a hospital network, clinic chain or practice.
// Every row the platform stores is owned by exactly one organization.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Package audit builds and persists the append-only compliance trail.
// Every sensitive action produces exactly one structured entry; nothing in
// this package can update or delete one once written.
package audit

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Action tags an audit entry. Details are structured so compliance queries
// ("all role changes for user X") are exact-match lookups, not text search.
type Action string

const (
	ActionLogin             Action = "LOGIN"
	ActionLoginFailed       Action = "LOGIN_FAILED"
	ActionLogout            Action = "LOGOUT"
	ActionAccountLocked     Action = "ACCOUNT_LOCKED"
	ActionAccessDenied      Action = "ACCESS_DENIED"
	ActionRoleRepaired      Action = "ROLE_REPAIRED"
	ActionReadRecord        Action = "READ_RECORD"
	ActionCreateRecord      Action = "CREATE_RECORD"
	ActionUpdateRecord      Action = "UPDATE_RECORD"
	ActionDeleteRecord      Action = "DELETE_RECORD"
	ActionChangeUserRole    Action = "CHANGE_USER_ROLE"
	ActionResetPassword     Action = "RESET_PASSWORD"
	ActionCrossTenantAccess Action = "CROSS_TENANT_ACCESS"
	ActionCreateRole        Action = "CREATE_ROLE"
	ActionEditRoleGrants    Action = "EDIT_ROLE_GRANTS"
	ActionCreateOrg         Action = "CREATE_ORG"
	ActionSetOrgActive      Action = "SET_ORG_ACTIVE"
)

// Sensitivity selects the write path for an action.
type Sensitivity int

const (
	// Ordinary entries are best-effort durable: written asynchronously,
	// a failure never blocks the business action.
	Ordinary Sensitivity = iota
	// High entries are atomic with the business mutation: written in the
	// same transaction, a failure rolls the mutation back.
	High
)

// highSensitivity is the declared classification table. Write paths are
// selected here, never inferred from action name patterns or decided per
// handler.
var highSensitivity = map[Action]bool{
	ActionChangeUserRole:    true,
	ActionDeleteRecord:      true,
	ActionResetPassword:     true,
	ActionCrossTenantAccess: true,
	ActionCreateRole:        true,
	ActionEditRoleGrants:    true,
}

// SensitivityOf returns the declared sensitivity of an action. Unlisted
// actions are Ordinary.
func SensitivityOf(a Action) Sensitivity {
	if highSensitivity[a] {
		return High
	}
	return Ordinary
}

// Entry is one audit record. Details is structured and immutable once
// written. IdempotencyKey deduplicates retried requests: replaying the
// same key produces exactly one stored entry.
type Entry struct {
	ID             string                 `json:"id"` // ULID: time-ordered, monotonic per process
	ActorID        uuid.UUID              `json:"actor_id"`
	Action         Action                 `json:"action"`
	EntityType     string                 `json:"entity_type"`
	EntityID       uuid.UUID              `json:"entity_id"`
	OrganizationID uuid.UUID              `json:"organization_id"`
	Details        map[string]interface{} `json:"details,omitempty"`
	IPAddress      string                 `json:"ip_address"`
	UserAgent      string                 `json:"user_agent"`
	CrossTenant    bool                   `json:"cross_tenant"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// entityKey identifies the ordering domain for async writes: two entries
// for the same entity preserve submission order in storage.
func (e *Entry) entityKey() string {
	return e.EntityType + "/" + e.EntityID.String()
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newEntryID mints a ULID for the entry. Monotonic entropy means IDs
// minted in submission order also sort in submission order, which is what
// makes the per-entity ordering guarantee queryable.
func newEntryID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}

package auth

import "errors"

// Sentinel errors for the access-control core. Handlers and middleware map
// these to HTTP statuses at the edge; the mapping is deliberately coarse so
// a response never reveals more than the stage at which the request failed.
var (
	// Token verification (401).
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenRevoked   = errors.New("token revoked")

	// Session / account state (401 or 423).
	ErrSessionExpired  = errors.New("session expired")
	ErrAccountLocked   = errors.New("account locked")
	ErrAccountDisabled = errors.New("account disabled")

	// Tenant resolution (400 when missing, 403 when mismatched).
	ErrNoTenantContext = errors.New("no tenant context")
	ErrTenantMismatch  = errors.New("tenant mismatch")

	// Authorization (403). Deny-by-default: absence of an explicit allow
	// is always reported as this error, never as an empty result.
	ErrForbidden = errors.New("forbidden")

	// Principal state.
	ErrNoResolvedRole = errors.New("principal has no resolved role")
)

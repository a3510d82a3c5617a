package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkewLeeway is the fixed tolerance applied to exp/nbf checks.
// Expired tokens are rejected, never auto-renewed; renewal is an explicit
// login operation.
const clockSkewLeeway = 30 * time.Second

// audiencePortal marks patient-portal tokens. The portal signing context
// uses its own key ring and a shorter TTL, and its claims can never carry
// a staff role.
const audiencePortal = "patient-portal"

// Claims are the signed bearer token contents.
type Claims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"`
	OrgID        string `json:"org_id"`
	CurrentOrgID string `json:"current_org_id,omitempty"`
}

// Codec issues and verifies signed bearer tokens. It holds an ordered key
// ring: tokens are signed with keys[0] and verified against every key, so
// rotating a secret is "prepend the new key, keep the old ones until their
// tokens age out". Verification is a pure function over the ring; keys are
// loaded once at startup and never logged.
type Codec struct {
	keys     [][]byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// NewCodec creates a codec for the staff signing context.
func NewCodec(keys [][]byte, ttl time.Duration, issuer string) (*Codec, error) {
	return newCodec(keys, ttl, issuer, "")
}

// NewPortalCodec creates a codec for the patient-portal signing context.
// Portal tokens carry the patient role only; a staff role cannot appear
// in a portal claim because Issue is not exposed for this codec.
func NewPortalCodec(keys [][]byte, ttl time.Duration, issuer string) (*Codec, error) {
	return newCodec(keys, ttl, issuer, audiencePortal)
}

func newCodec(keys [][]byte, ttl time.Duration, issuer, audience string) (*Codec, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("token codec: at least one signing key required")
	}
	for i, k := range keys {
		if len(k) < 32 {
			return nil, fmt.Errorf("token codec: key %d is too short (%d bytes, need 32)", i, len(k))
		}
	}
	return &Codec{
		keys:     keys,
		ttl:      ttl,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

// Issue signs a token for the principal, embedding identity, role and
// tenant claims. The JTI is unique per token so logout can revoke it.
func (c *Codec) Issue(p *Principal) (string, error) {
	if c.audience == audiencePortal {
		return "", fmt.Errorf("token codec: staff issuance on portal codec")
	}

	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			Issuer:    c.issuer,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Role:  string(p.Role),
		OrgID: p.OrganizationID.String(),
	}
	if p.CurrentOrgID != nil {
		claims.CurrentOrgID = p.CurrentOrgID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.keys[0])
}

// IssuePortal signs a restricted patient-portal token scoped to a single
// patient identity within one organization.
func (c *Codec) IssuePortal(patientID, orgID uuid.UUID) (string, error) {
	if c.audience != audiencePortal {
		return "", fmt.Errorf("token codec: portal issuance on staff codec")
	}

	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   patientID.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{audiencePortal},
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Role:  string(RolePatient),
		OrgID: orgID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.keys[0])
}

// Verify parses and validates a token against the key ring, returning its
// claims. Errors are one of ErrTokenMalformed, ErrTokenExpired,
// ErrTokenSignature.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(clockSkewLeeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	var lastErr error
	for _, key := range c.keys {
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, opts...)

		if err == nil && token.Valid {
			if claims.Subject == "" {
				return nil, ErrTokenMalformed
			}
			return claims, nil
		}

		// A signature mismatch may just mean an older ring key; try the
		// next one. Any other failure is terminal for all keys.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			lastErr = err
			continue
		}
		return nil, mapJWTError(err)
	}

	return nil, mapJWTError(lastErr)
}

func mapJWTError(err error) error {
	switch {
	case err == nil:
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignature
	case errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrTokenSignature
	default:
		return ErrTokenMalformed
	}
}

// PrincipalID extracts the subject as a UUID.
func (cl *Claims) PrincipalID() (uuid.UUID, error) {
	id, err := uuid.Parse(cl.Subject)
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}
	return id, nil
}

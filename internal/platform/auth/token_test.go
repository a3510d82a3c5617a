package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testKey(seed byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = seed
	}
	return k
}

func testPrincipal() *Principal {
	return &Principal{
		ID:             uuid.New(),
		Username:       "dr.adams",
		Role:           RoleDoctor,
		OrganizationID: uuid.New(),
		IsActive:       true,
	}
}

func TestNewCodec_Validation(t *testing.T) {
	if _, err := NewCodec(nil, time.Hour, "caremesh"); err == nil {
		t.Error("expected error for empty key ring")
	}
	if _, err := NewCodec([][]byte{[]byte("short")}, time.Hour, "caremesh"); err == nil {
		t.Error("expected error for key under 32 bytes")
	}
	if _, err := NewCodec([][]byte{testKey(1)}, time.Hour, "caremesh"); err != nil {
		t.Errorf("unexpected error for valid key: %v", err)
	}
}

func TestCodec_IssueVerify(t *testing.T) {
	codec, err := NewCodec([][]byte{testKey(1)}, time.Hour, "caremesh")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	p := testPrincipal()
	tok, err := codec.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := codec.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	id, err := claims.PrincipalID()
	if err != nil {
		t.Fatalf("PrincipalID: %v", err)
	}
	if id != p.ID {
		t.Errorf("subject = %s, want %s", id, p.ID)
	}
	if claims.Role != string(RoleDoctor) {
		t.Errorf("role claim = %q, want %q", claims.Role, RoleDoctor)
	}
	if claims.OrgID != p.OrganizationID.String() {
		t.Errorf("org claim = %q, want %q", claims.OrgID, p.OrganizationID)
	}
	if claims.ID == "" {
		t.Error("expected a non-empty JTI")
	}
}

func TestCodec_UniqueJTI(t *testing.T) {
	codec, _ := NewCodec([][]byte{testKey(1)}, time.Hour, "caremesh")
	p := testPrincipal()

	t1, _ := codec.Issue(p)
	t2, _ := codec.Issue(p)

	c1, _ := codec.Verify(t1)
	c2, _ := codec.Verify(t2)
	if c1.ID == c2.ID {
		t.Error("two tokens for the same principal share a JTI")
	}
}

func TestCodec_KeyRotation(t *testing.T) {
	oldKey := testKey(1)
	newKey := testKey(2)

	oldCodec, _ := NewCodec([][]byte{oldKey}, time.Hour, "caremesh")
	tok, err := oldCodec.Issue(testPrincipal())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Rotated ring: new key first, old key retained.
	rotated, _ := NewCodec([][]byte{newKey, oldKey}, time.Hour, "caremesh")
	if _, err := rotated.Verify(tok); err != nil {
		t.Errorf("token signed with retained key rejected: %v", err)
	}

	// Old key dropped from the ring entirely.
	dropped, _ := NewCodec([][]byte{newKey}, time.Hour, "caremesh")
	if _, err := dropped.Verify(tok); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("err = %v, want ErrTokenSignature", err)
	}
}

func TestCodec_Expiry(t *testing.T) {
	codec, _ := NewCodec([][]byte{testKey(1)}, time.Hour, "caremesh")
	tok, _ := codec.Issue(testPrincipal())

	base := time.Now()

	tests := []struct {
		name    string
		advance time.Duration
		wantErr error
	}{
		{"fresh", time.Minute, nil},
		{"within skew leeway", time.Hour + 10*time.Second, nil},
		{"past leeway", time.Hour + time.Minute, ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec.now = func() time.Time { return base.Add(tt.advance) }
			_, err := codec.Verify(tok)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCodec_Malformed(t *testing.T) {
	codec, _ := NewCodec([][]byte{testKey(1)}, time.Hour, "caremesh")

	for _, tok := range []string{"", "garbage", "a.b.c", "ey.ey.ey"} {
		if _, err := codec.Verify(tok); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Verify(%q) err = %v, want ErrTokenMalformed", tok, err)
		}
	}
}

func TestCodec_TamperedToken(t *testing.T) {
	codec, _ := NewCodec([][]byte{testKey(1)}, time.Hour, "caremesh")
	tok, _ := codec.Issue(testPrincipal())

	// Flip a character in the payload; the signature no longer matches.
	parts := strings.Split(tok, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err := codec.Verify(tampered)
	if err == nil {
		t.Fatal("tampered token verified")
	}
}

func TestPortalCodec_Separation(t *testing.T) {
	staffKeys := [][]byte{testKey(1)}
	portalKeys := [][]byte{testKey(9)}

	staff, _ := NewCodec(staffKeys, time.Hour, "caremesh")
	portal, _ := NewPortalCodec(portalKeys, 15*time.Minute, "caremesh")

	patientID, orgID := uuid.New(), uuid.New()
	tok, err := portal.IssuePortal(patientID, orgID)
	if err != nil {
		t.Fatalf("IssuePortal: %v", err)
	}

	// Portal tokens always carry the patient role.
	claims, err := portal.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Role != string(RolePatient) {
		t.Errorf("portal role = %q, want %q", claims.Role, RolePatient)
	}

	// A portal token is never valid on the staff surface, and vice versa.
	if _, err := staff.Verify(tok); err == nil {
		t.Error("staff codec accepted a portal token")
	}
	staffTok, _ := staff.Issue(testPrincipal())
	if _, err := portal.Verify(staffTok); err == nil {
		t.Error("portal codec accepted a staff token")
	}

	// Codecs refuse to issue for the wrong context.
	if _, err := portal.Issue(testPrincipal()); err == nil {
		t.Error("portal codec issued a staff token")
	}
	if _, err := staff.IssuePortal(patientID, orgID); err == nil {
		t.Error("staff codec issued a portal token")
	}
}

func TestClaims_PrincipalID_Invalid(t *testing.T) {
	cl := &Claims{}
	cl.Subject = "not-a-uuid"
	if _, err := cl.PrincipalID(); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("err = %v, want ErrTokenMalformed", err)
	}
}

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/caremesh/caremesh/internal/platform/metrics"
)

func requestWithOrgHeader(org string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	if org != "" {
		req.Header.Set(OrgHeader, org)
	}
	return req
}

func TestResolveTenant(t *testing.T) {
	homeOrg := uuid.New()
	otherOrg := uuid.New()
	currentOrg := uuid.New()

	tests := []struct {
		name      string
		p         *Principal
		header    string
		wantOrg   uuid.UUID
		wantCross bool
		wantErr   error
	}{
		{
			name:    "home org fallback",
			p:       &Principal{Role: RoleDoctor, OrganizationID: homeOrg},
			wantOrg: homeOrg,
		},
		{
			name:    "current org preferred over home",
			p:       &Principal{Role: RoleDoctor, OrganizationID: homeOrg, CurrentOrgID: &currentOrg},
			wantOrg: currentOrg,
		},
		{
			name:    "header naming own org",
			p:       &Principal{Role: RoleNurse, OrganizationID: homeOrg},
			header:  homeOrg.String(),
			wantOrg: homeOrg,
		},
		{
			name:    "non-superadmin header naming foreign org",
			p:       &Principal{Role: RoleAdmin, OrganizationID: homeOrg},
			header:  otherOrg.String(),
			wantErr: ErrTenantMismatch,
		},
		{
			name:      "superadmin header crosses tenant",
			p:         &Principal{Role: RoleSuperadmin, OrganizationID: homeOrg},
			header:    otherOrg.String(),
			wantOrg:   otherOrg,
			wantCross: true,
		},
		{
			name:    "superadmin header naming home org is not cross-tenant",
			p:       &Principal{Role: RoleSuperadmin, OrganizationID: homeOrg},
			header:  homeOrg.String(),
			wantOrg: homeOrg,
		},
		{
			name:    "unparseable header fails closed",
			p:       &Principal{Role: RoleSuperadmin, OrganizationID: homeOrg},
			header:  "not-a-uuid",
			wantErr: ErrNoTenantContext,
		},
		{
			name:    "no org anywhere fails closed",
			p:       &Principal{Role: RoleDoctor},
			wantErr: ErrNoTenantContext,
		},
		{
			name:    "nil principal",
			p:       nil,
			wantErr: ErrNoTenantContext,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ResolveTenant(requestWithOrgHeader(tt.header), tt.p)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if res.OrgID != tt.wantOrg {
				t.Errorf("OrgID = %s, want %s", res.OrgID, tt.wantOrg)
			}
			if res.CrossTenant != tt.wantCross {
				t.Errorf("CrossTenant = %v, want %v", res.CrossTenant, tt.wantCross)
			}
		})
	}
}

func TestTenantMiddleware(t *testing.T) {
	homeOrg := uuid.New()
	otherOrg := uuid.New()

	tests := []struct {
		name       string
		p          *Principal
		header     string
		wantStatus int
	}{
		{"resolved", &Principal{Role: RoleDoctor, OrganizationID: homeOrg}, "", http.StatusOK},
		{"no principal", nil, "", http.StatusUnauthorized},
		{"tenant mismatch", &Principal{Role: RoleNurse, OrganizationID: homeOrg}, otherOrg.String(), http.StatusForbidden},
		{"no org context", &Principal{Role: RoleDoctor}, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := requestWithOrgHeader(tt.header)
			if tt.p != nil {
				req = req.WithContext(WithPrincipal(req.Context(), tt.p))
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seenOrg uuid.UUID
			handler := TenantMiddleware()(func(c echo.Context) error {
				seenOrg = CurrentTenant(c.Request().Context())
				return c.NoContent(http.StatusOK)
			})

			err := handler(c)
			status := rec.Code
			if err != nil {
				var he *echo.HTTPError
				if !errors.As(err, &he) {
					t.Fatalf("unexpected error type: %v", err)
				}
				status = he.Code
			}

			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seenOrg != homeOrg {
				t.Errorf("handler saw org %s, want %s", seenOrg, homeOrg)
			}
		})
	}
}

func TestTenantMiddleware_CountsRejections(t *testing.T) {
	counter := metrics.AuthRejections.WithLabelValues("tenant")
	before := testutil.ToFloat64(counter)

	reject := func(p *Principal, header string) {
		t.Helper()
		e := echo.New()
		req := requestWithOrgHeader(header)
		req = req.WithContext(WithPrincipal(req.Context(), p))
		c := e.NewContext(req, httptest.NewRecorder())

		if err := TenantMiddleware()(okNoContent)(c); err == nil {
			t.Fatal("expected a rejection")
		}
	}

	homeOrg := uuid.New()
	reject(&Principal{Role: RoleNurse, OrganizationID: homeOrg}, uuid.New().String())
	reject(&Principal{Role: RoleDoctor}, "")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("tenant rejection count = %v, want 2", got)
	}
}

func okNoContent(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestTenantContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := req.Context()

	if CurrentTenant(ctx) != uuid.Nil {
		t.Error("empty context should have no tenant")
	}
	if IsCrossTenant(ctx) {
		t.Error("empty context should not be cross-tenant")
	}

	org := uuid.New()
	ctx = WithTenant(ctx, org, true)
	if CurrentTenant(ctx) != org {
		t.Errorf("CurrentTenant = %s, want %s", CurrentTenant(ctx), org)
	}
	if !IsCrossTenant(ctx) {
		t.Error("cross-tenant flag lost")
	}
}

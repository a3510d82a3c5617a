package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/caremesh/caremesh/internal/platform/auth"
)

type fakeRepo struct {
	roles map[uuid.UUID]*Role
	perms map[uuid.UUID][]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		roles: make(map[uuid.UUID]*Role),
		perms: make(map[uuid.UUID][]string),
	}
}

func (f *fakeRepo) CreateRole(_ context.Context, r *Role) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.roles[r.ID] = r
	return nil
}

func (f *fakeRepo) GetRole(_ context.Context, id uuid.UUID) (*Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) ListRoles(_ context.Context, orgID uuid.UUID, _, _ int) ([]*Role, int, error) {
	var out []*Role
	for _, r := range f.roles {
		if r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) ListPermissions(_ context.Context) ([]*Permission, error) {
	return nil, nil
}

func (f *fakeRepo) GetPermissionsByName(_ context.Context, names []string) ([]*Permission, error) {
	known := map[string]bool{"patients.read": true, "patients.write": true}
	var out []*Permission
	for _, n := range names {
		if known[n] {
			out = append(out, &Permission{ID: uuid.New(), Name: n})
		}
	}
	return out, nil
}

func (f *fakeRepo) FindRolePermissions(_ context.Context, roleID uuid.UUID) ([]string, error) {
	return f.perms[roleID], nil
}

func (f *fakeRepo) ReplaceRolePermissions(_ context.Context, roleID uuid.UUID, ids []uuid.UUID) error {
	return nil
}

func tenantCtx(orgID uuid.UUID) context.Context {
	return auth.WithTenant(context.Background(), orgID, false)
}

func TestService_CreateRole_Validation(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	actor := &auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}

	if err := svc.CreateRole(tenantCtx(uuid.New()), actor, &Role{Name: "Triage"}, RequestMeta{}); err == nil {
		t.Error("expected error for missing key")
	}
	if err := svc.CreateRole(tenantCtx(uuid.New()), actor, &Role{Key: "triage"}, RequestMeta{}); err == nil {
		t.Error("expected error for missing name")
	}
	err := svc.CreateRole(context.Background(), actor, &Role{Key: "triage", Name: "Triage"}, RequestMeta{})
	if !errors.Is(err, auth.ErrNoTenantContext) {
		t.Errorf("err = %v, want ErrNoTenantContext", err)
	}
}

func TestService_GetRole_TenantIsolation(t *testing.T) {
	repo := newFakeRepo()
	ownOrg, otherOrg := uuid.New(), uuid.New()

	foreign := &Role{ID: uuid.New(), OrganizationID: otherOrg, Key: "triage", Name: "Triage"}
	repo.roles[foreign.ID] = foreign

	svc := NewService(repo, nil, nil, nil)

	_, err := svc.GetRole(tenantCtx(ownOrg), foreign.ID)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("cross-org read: err = %v, want ErrForbidden", err)
	}

	_, err = svc.GetRole(tenantCtx(otherOrg), foreign.ID)
	if err != nil {
		t.Errorf("same-org read: %v", err)
	}
}

func TestService_EditGrants_UnknownPermission(t *testing.T) {
	repo := newFakeRepo()
	orgID := uuid.New()
	role := &Role{ID: uuid.New(), OrganizationID: orgID, Key: "triage", Name: "Triage"}
	repo.roles[role.ID] = role

	svc := NewService(repo, nil, nil, nil)
	actor := &auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}

	err := svc.EditGrants(tenantCtx(orgID), actor, role.ID, []string{"patients.read", "nonsense.perm"}, RequestMeta{})
	if err == nil {
		t.Error("expected error for unknown permission name")
	}
}

func TestService_EditGrants_CrossOrgDenied(t *testing.T) {
	repo := newFakeRepo()
	role := &Role{ID: uuid.New(), OrganizationID: uuid.New(), Key: "triage", Name: "Triage"}
	repo.roles[role.ID] = role

	svc := NewService(repo, nil, nil, nil)
	actor := &auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}

	err := svc.EditGrants(tenantCtx(uuid.New()), actor, role.ID, []string{"patients.read"}, RequestMeta{})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestService_ListRoles_RequiresTenant(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	_, _, err := svc.ListRoles(context.Background(), 20, 0)
	if !errors.Is(err, auth.ErrNoTenantContext) {
		t.Errorf("err = %v, want ErrNoTenantContext", err)
	}
}

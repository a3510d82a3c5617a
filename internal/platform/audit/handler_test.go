package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caremesh/caremesh/internal/platform/auth"
)

type queryCaptureRepo struct {
	lastQuery Query
}

func (r *queryCaptureRepo) Insert(_ context.Context, _ *Entry) error { return nil }

func (r *queryCaptureRepo) Search(_ context.Context, q Query) ([]*Entry, int, error) {
	r.lastQuery = q
	return []*Entry{}, 0, nil
}

func searchRequest(t *testing.T, repo Repo, orgID uuid.UUID, query string) (int, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/audit?"+query, nil)
	if orgID != uuid.Nil {
		req = req.WithContext(auth.WithTenant(req.Context(), orgID, false))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := NewHandler(repo).Search(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code, err
		}
		return http.StatusInternalServerError, err
	}
	return rec.Code, nil
}

func TestHandler_Search_ScopesToTenant(t *testing.T) {
	repo := &queryCaptureRepo{}
	orgID := uuid.New()
	actorID := uuid.New()

	status, err := searchRequest(t, repo, orgID,
		"actor_id="+actorID.String()+"&entity_type=patient_record&action=READ_RECORD")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	q := repo.lastQuery
	if q.OrgID != orgID {
		t.Errorf("query org = %s, want caller's tenant %s", q.OrgID, orgID)
	}
	if q.ActorID != actorID {
		t.Errorf("query actor = %s, want %s", q.ActorID, actorID)
	}
	if q.EntityType != "patient_record" || q.Action != ActionReadRecord {
		t.Errorf("filters not mapped: %+v", q)
	}
}

func TestHandler_Search_RequiresTenant(t *testing.T) {
	status, _ := searchRequest(t, &queryCaptureRepo{}, uuid.Nil, "")
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestHandler_Search_RejectsBadFilters(t *testing.T) {
	orgID := uuid.New()
	for _, query := range []string{
		"actor_id=not-a-uuid",
		"entity_id=nope",
		"from=yesterday",
		"to=tomorrow",
	} {
		status, _ := searchRequest(t, &queryCaptureRepo{}, orgID, query)
		if status != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, status)
		}
	}
}

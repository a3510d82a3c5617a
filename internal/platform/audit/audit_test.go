package audit

import (
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSensitivityOf(t *testing.T) {
	high := []Action{
		ActionChangeUserRole,
		ActionDeleteRecord,
		ActionResetPassword,
		ActionCrossTenantAccess,
		ActionCreateRole,
		ActionEditRoleGrants,
	}
	for _, a := range high {
		if SensitivityOf(a) != High {
			t.Errorf("SensitivityOf(%s) = Ordinary, want High", a)
		}
	}

	ordinary := []Action{
		ActionLogin,
		ActionLoginFailed,
		ActionLogout,
		ActionReadRecord,
		ActionCreateRecord,
		ActionUpdateRecord,
		ActionAccessDenied,
	}
	for _, a := range ordinary {
		if SensitivityOf(a) != Ordinary {
			t.Errorf("SensitivityOf(%s) = High, want Ordinary", a)
		}
	}

	// Undeclared actions fall to the best-effort path, never the atomic one.
	if SensitivityOf(Action("SOMETHING_NEW")) != Ordinary {
		t.Error("undeclared action classified High")
	}
}

func TestEntityKey(t *testing.T) {
	id := uuid.New()
	a := &Entry{EntityType: "patient_record", EntityID: id}
	b := &Entry{EntityType: "patient_record", EntityID: id}
	c := &Entry{EntityType: "principal", EntityID: id}

	if a.entityKey() != b.entityKey() {
		t.Error("same entity produced different keys")
	}
	if a.entityKey() == c.entityKey() {
		t.Error("different entity types share a key")
	}
}

func TestNewEntryID_SortsInMintOrder(t *testing.T) {
	now := time.Now()
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = newEntryID(now)
	}

	if !sort.StringsAreSorted(ids) {
		t.Error("IDs minted in sequence do not sort in mint order")
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate ID %s", id)
		}
		seen[id] = true
	}
}

package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tuckborough/haven/internal/database"
	"github.com/tuckborough/haven/internal/logging"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/score"
)

func setupServerTest(t *testing.T) (http.Handler, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := New(db, Config{TokenSecret: "test-secret"}, score.Compute, logging.Setup("error"))
	return srv.Router(), db
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type registered struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

func register(t *testing.T, router http.Handler, name, phone string) registered {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/register", "", map[string]string{"name": name, "phone": phone})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d, body %s", name, rec.Code, rec.Body.String())
	}
	return decode[registered](t, rec)
}

func TestHealthNoAuth(t *testing.T) {
	router, _ := setupServerTest(t)

	rec := doJSON(t, router, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	router, _ := setupServerTest(t)

	rec := doJSON(t, router, "GET", "/api/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRegisterAndMe(t *testing.T) {
	router, _ := setupServerTest(t)

	alice := register(t, router, "Alice", "+15550001")
	if alice.Token == "" {
		t.Fatal("expected a token")
	}

	rec := doJSON(t, router, "GET", "/api/me", alice.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d", rec.Code)
	}
	me := decode[struct {
		User model.User `json:"user"`
	}](t, rec)
	if me.User.Phone != "+15550001" {
		t.Errorf("phone = %q, want %q", me.User.Phone, "+15550001")
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	router, _ := setupServerTest(t)

	register(t, router, "Alice", "+15550001")
	rec := doJSON(t, router, "POST", "/api/register", "", map[string]string{"name": "Imposter", "phone": "+15550001"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestMembershipLifecycle(t *testing.T) {
	router, _ := setupServerTest(t)

	alice := register(t, router, "Alice", "+15550001")
	bob := register(t, router, "Bob", "+15550002")

	// Alice founds a household.
	rec := doJSON(t, router, "POST", "/api/households", alice.Token, map[string]string{"name": "Maple Street"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create household: status = %d, body %s", rec.Code, rec.Body.String())
	}
	household := decode[model.Household](t, rec)
	if len(household.Code) != 6 {
		t.Errorf("code length = %d, want 6", len(household.Code))
	}

	// She invites, Bob redeems.
	rec = doJSON(t, router, "POST", "/api/invitations", alice.Token, map[string]any{"household_id": household.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invitation: status = %d, body %s", rec.Code, rec.Body.String())
	}
	inv := decode[model.Invitation](t, rec)

	rec = doJSON(t, router, "POST", "/api/invitations/redeem", bob.Token, map[string]string{"code": inv.Code})
	if rec.Code != http.StatusOK {
		t.Fatalf("redeem: status = %d, body %s", rec.Code, rec.Body.String())
	}
	m := decode[model.Membership](t, rec)
	if m.Role != model.RoleMember {
		t.Errorf("role = %q, want %q", m.Role, model.RoleMember)
	}

	// Redeeming the same code again conflicts.
	rec = doJSON(t, router, "POST", "/api/invitations/redeem", bob.Token, map[string]string{"code": inv.Code})
	if rec.Code != http.StatusConflict {
		t.Errorf("second redeem: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Roster lists the owner first.
	rec = doJSON(t, router, "GET", fmt.Sprintf("/api/households/%d/members", household.ID), bob.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("members: status = %d", rec.Code)
	}
	members := decode[[]model.Member](t, rec)
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	if members[0].Role != model.RoleOwner {
		t.Errorf("first member role = %q, want owner", members[0].Role)
	}

	// Owner cannot leave while others remain.
	rec = doJSON(t, router, "POST", "/api/households/leave", alice.Token, map[string]any{"household_id": household.ID})
	if rec.Code != http.StatusConflict {
		t.Errorf("owner leave: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Transfer, then the former owner can go.
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/households/%d/transfer", household.ID), alice.Token, map[string]any{"to_user_id": bob.User.ID})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("transfer: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "POST", "/api/households/leave", alice.Token, map[string]any{"household_id": household.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("leave after transfer: status = %d, body %s", rec.Code, rec.Body.String())
	}
	leave := decode[struct {
		HouseholdID int64 `json:"household_id"`
		Deleted     bool  `json:"deleted"`
	}](t, rec)
	if leave.Deleted {
		t.Error("household should survive a member leave")
	}

	// The audit trail recorded the whole story.
	rec = doJSON(t, router, "GET", fmt.Sprintf("/api/audit?household_id=%d", household.ID), bob.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: status = %d", rec.Code)
	}
	entries := decode[[]model.AuditEntry](t, rec)
	actions := make(map[string]bool, len(entries))
	for _, e := range entries {
		actions[e.Action] = true
	}
	for _, want := range []string{
		model.AuditHouseholdCreated,
		model.AuditInvitationCreated,
		model.AuditMemberJoined,
		model.AuditOwnershipTransfer,
		model.AuditMemberLeft,
	} {
		if !actions[want] {
			t.Errorf("audit missing action %q", want)
		}
	}
}

func TestTransferRequiresOwner(t *testing.T) {
	router, _ := setupServerTest(t)

	alice := register(t, router, "Alice", "+15550001")
	bob := register(t, router, "Bob", "+15550002")

	rec := doJSON(t, router, "POST", "/api/households", alice.Token, map[string]string{"name": "Maple Street"})
	household := decode[model.Household](t, rec)

	rec = doJSON(t, router, "POST", "/api/invitations", alice.Token, map[string]any{"household_id": household.ID})
	inv := decode[model.Invitation](t, rec)
	doJSON(t, router, "POST", "/api/invitations/redeem", bob.Token, map[string]string{"code": inv.Code})

	// Bob is a member, not the owner.
	rec = doJSON(t, router, "POST", fmt.Sprintf("/api/households/%d/transfer", household.ID), bob.Token, map[string]any{"to_user_id": bob.User.ID})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestSafetyStatusDuplicateID(t *testing.T) {
	router, _ := setupServerTest(t)

	alice := register(t, router, "Alice", "+15550001")
	doJSON(t, router, "POST", "/api/households", alice.Token, map[string]string{"name": "Maple Street"})

	id := uuid.NewString()
	body := map[string]any{"id": id, "status": model.StatusSafe, "note": "all fine"}

	rec := doJSON(t, router, "POST", "/api/statuses", alice.Token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Same device-assigned id again: conflict, so retries are safe.
	rec = doJSON(t, router, "POST", "/api/statuses", alice.Token, body)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestProfileUpdateSchedulesRecalc(t *testing.T) {
	router, db := setupServerTest(t)

	alice := register(t, router, "Alice", "+15550001")
	rec := doJSON(t, router, "POST", "/api/households", alice.Token, map[string]string{"name": "Maple Street"})
	household := decode[model.Household](t, rec)

	rec = doJSON(t, router, "PUT", fmt.Sprintf("/api/households/%d/profile", household.ID), alice.Token, map[string]any{
		"household_size":        3,
		"insulin_dependency":    true,
		"transportation_access": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put profile: status = %d, body %s", rec.Code, rec.Body.String())
	}
	profile := decode[model.VulnerabilityProfile](t, rec)
	if profile.HouseholdSize != 3 {
		t.Errorf("household_size = %d, want 3", profile.HouseholdSize)
	}

	var pending int
	err := db.QueryRow("SELECT COUNT(*) FROM recalc_outbox WHERE household_id = ? AND status = 'pending'", household.ID).Scan(&pending)
	if err != nil {
		t.Fatalf("count pending recalcs: %v", err)
	}
	if pending == 0 {
		t.Error("profile update did not schedule a recalculation")
	}

	rec = doJSON(t, router, "GET", fmt.Sprintf("/api/households/%d/profile", household.ID), alice.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get profile: status = %d", rec.Code)
	}
}

func TestReadinessNotYetComputed(t *testing.T) {
	router, _ := setupServerTest(t)

	alice := register(t, router, "Alice", "+15550001")
	doJSON(t, router, "POST", "/api/households", alice.Token, map[string]string{"name": "Maple Street"})

	// The worker has not run; the score is absent, not zero.
	rec := doJSON(t, router, "GET", "/api/readiness", alice.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

package store

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/tuckborough/haven/internal/database"
	"github.com/tuckborough/haven/internal/model"
)

func setupStatusTestDB(t *testing.T) (*SafetyStatusStore, int64, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	hs := NewHouseholdStore(db)
	u, err := us.Create("Alice", "+15550001")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	h, err := hs.Create(u.ID, "Maple Street")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return NewSafetyStatusStore(db), h.ID, u.ID
}

func TestSafetyStatusCreate(t *testing.T) {
	ss, hid, uid := setupStatusTestDB(t)

	lat := 47.6
	st, err := ss.Create(&model.SafetyStatus{
		ID:          uuid.NewString(),
		HouseholdID: hid,
		UserID:      uid,
		Status:      model.StatusSafe,
		Note:        "at the shelter",
		Latitude:    &lat,
	})
	if err != nil {
		t.Fatalf("create safety status: %v", err)
	}
	if st.Status != model.StatusSafe {
		t.Errorf("status = %q, want %q", st.Status, model.StatusSafe)
	}
	if st.Latitude == nil || *st.Latitude != 47.6 {
		t.Errorf("latitude = %v, want 47.6", st.Latitude)
	}
	if st.Longitude != nil {
		t.Errorf("longitude = %v, want nil", st.Longitude)
	}
}

func TestSafetyStatusCreateDuplicateID(t *testing.T) {
	ss, hid, uid := setupStatusTestDB(t)

	id := uuid.NewString()
	st := &model.SafetyStatus{ID: id, HouseholdID: hid, UserID: uid, Status: model.StatusSafe}
	if _, err := ss.Create(st); err != nil {
		t.Fatalf("create safety status: %v", err)
	}

	_, err := ss.Create(st)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}
}

func TestSafetyStatusGetByIDNotFound(t *testing.T) {
	ss, _, _ := setupStatusTestDB(t)

	st, err := ss.GetByID(uuid.NewString())
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if st != nil {
		t.Error("expected nil for nonexistent status")
	}
}

func TestSafetyStatusUpdate(t *testing.T) {
	ss, hid, uid := setupStatusTestDB(t)

	id := uuid.NewString()
	if _, err := ss.Create(&model.SafetyStatus{
		ID: id, HouseholdID: hid, UserID: uid, Status: model.StatusUnknown,
	}); err != nil {
		t.Fatalf("create safety status: %v", err)
	}

	st, err := ss.Update(id, model.StatusNeedsHelp, "trapped upstairs", nil, nil)
	if err != nil {
		t.Fatalf("update safety status: %v", err)
	}
	if st.Status != model.StatusNeedsHelp {
		t.Errorf("status = %q, want %q", st.Status, model.StatusNeedsHelp)
	}
	if st.Note != "trapped upstairs" {
		t.Errorf("note = %q, want %q", st.Note, "trapped upstairs")
	}
}

func TestSafetyStatusListByHousehold(t *testing.T) {
	ss, hid, uid := setupStatusTestDB(t)

	for i := 0; i < 3; i++ {
		if _, err := ss.Create(&model.SafetyStatus{
			ID: uuid.NewString(), HouseholdID: hid, UserID: uid, Status: model.StatusSafe,
		}); err != nil {
			t.Fatalf("create safety status: %v", err)
		}
	}

	statuses, err := ss.ListByHousehold(hid)
	if err != nil {
		t.Fatalf("list safety statuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
}

func TestSafetyStatusDelete(t *testing.T) {
	ss, hid, uid := setupStatusTestDB(t)

	id := uuid.NewString()
	if _, err := ss.Create(&model.SafetyStatus{
		ID: id, HouseholdID: hid, UserID: uid, Status: model.StatusSafe,
	}); err != nil {
		t.Fatalf("create safety status: %v", err)
	}

	if err := ss.Delete(id); err != nil {
		t.Fatalf("delete safety status: %v", err)
	}
	st, err := ss.GetByID(id)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if st != nil {
		t.Error("expected nil after delete")
	}
}

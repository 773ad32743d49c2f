package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

type SafetyStatusHandler struct {
	statuses   *store.SafetyStatusStore
	households *store.HouseholdStore
	users      *store.UserStore
	hub        *events.Hub
	logger     *slog.Logger
}

func NewSafetyStatusHandler(ss *store.SafetyStatusStore, hs *store.HouseholdStore, us *store.UserStore, hub *events.Hub, logger *slog.Logger) *SafetyStatusHandler {
	return &SafetyStatusHandler{statuses: ss, households: hs, users: us, hub: hub, logger: logger}
}

type safetyStatusRequest struct {
	ID          string   `json:"id"`
	HouseholdID int64    `json:"household_id"`
	Status      string   `json:"status"`
	Note        string   `json:"note"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

func validSafetyStatus(s string) bool {
	return s == model.StatusSafe || s == model.StatusNeedsHelp || s == model.StatusUnknown
}

// Create handles POST /api/statuses. The id is assigned by the reporting
// device; posting an id that already exists answers 409 so interrupted
// uploads can be retried safely.
func (h *SafetyStatusHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req safetyStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, err := uuid.Parse(req.ID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id must be a UUID"})
		return
	}
	if req.Status == "" {
		req.Status = model.StatusUnknown
	}
	if !validSafetyStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	householdID, err := resolveHousehold(h.users, h.households, userID, req.HouseholdID)
	if err != nil {
		writeError(w, h.logger, "resolve household", err)
		return
	}

	st, err := h.statuses.Create(&model.SafetyStatus{
		ID:          req.ID,
		HouseholdID: householdID,
		UserID:      userID,
		Status:      req.Status,
		Note:        req.Note,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		writeError(w, h.logger, "create safety status", err)
		return
	}

	h.hub.Broadcast(events.NewEvent("safety_status", "created", householdID, st.ID))
	writeJSON(w, http.StatusCreated, st)
}

// Get handles GET /api/statuses/{id}
func (h *SafetyStatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	st, err := h.statuses.GetByID(id)
	if err != nil {
		h.logger.Error("get safety status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load status"})
		return
	}
	if st == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "status not found"})
		return
	}

	m, err := h.households.GetMembership(st.HouseholdID, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "get safety status", membership.ErrNotAMember)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// List handles GET /api/statuses
func (h *SafetyStatusHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var explicit int64
	if q := r.URL.Query().Get("household_id"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid household_id"})
			return
		}
		explicit = id
	}

	householdID, err := resolveHousehold(h.users, h.households, userID, explicit)
	if err != nil {
		writeError(w, h.logger, "resolve household", err)
		return
	}

	statuses, err := h.statuses.ListByHousehold(householdID)
	if err != nil {
		h.logger.Error("list safety statuses", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list statuses"})
		return
	}
	if statuses == nil {
		statuses = []model.SafetyStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Update handles PUT /api/statuses/{id}. Any member of the household may
// update a check-in, so a neighbor can mark someone safe on their behalf.
func (h *SafetyStatusHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	existing, err := h.statuses.GetByID(id)
	if err != nil {
		h.logger.Error("get safety status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load status"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "status not found"})
		return
	}

	m, err := h.households.GetMembership(existing.HouseholdID, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "update safety status", membership.ErrNotAMember)
		return
	}

	var req safetyStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Status == "" {
		req.Status = existing.Status
	}
	if !validSafetyStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	st, err := h.statuses.Update(id, req.Status, req.Note, req.Latitude, req.Longitude)
	if err != nil {
		h.logger.Error("update safety status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update status"})
		return
	}

	h.hub.Broadcast(events.NewEvent("safety_status", "updated", existing.HouseholdID, id))
	writeJSON(w, http.StatusOK, st)
}

// Delete handles DELETE /api/statuses/{id}
func (h *SafetyStatusHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	existing, err := h.statuses.GetByID(id)
	if err != nil {
		h.logger.Error("get safety status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load status"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "status not found"})
		return
	}

	m, err := h.households.GetMembership(existing.HouseholdID, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "delete safety status", membership.ErrNotAMember)
		return
	}

	if err := h.statuses.Delete(id); err != nil {
		h.logger.Error("delete safety status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete status"})
		return
	}

	h.hub.Broadcast(events.NewEvent("safety_status", "deleted", existing.HouseholdID, id))
	w.WriteHeader(http.StatusNoContent)
}

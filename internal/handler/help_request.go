package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

type HelpRequestHandler struct {
	requests   *store.HelpRequestStore
	households *store.HouseholdStore
	users      *store.UserStore
	hub        *events.Hub
	logger     *slog.Logger
}

func NewHelpRequestHandler(rs *store.HelpRequestStore, hs *store.HouseholdStore, us *store.UserStore, hub *events.Hub, logger *slog.Logger) *HelpRequestHandler {
	return &HelpRequestHandler{requests: rs, households: hs, users: us, hub: hub, logger: logger}
}

type helpRequestRequest struct {
	ID          string   `json:"id"`
	HouseholdID int64    `json:"household_id"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Resolved    bool     `json:"resolved"`
}

// Create handles POST /api/help-requests. Device-assigned ids, duplicate
// answers 409.
func (h *HelpRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req helpRequestRequest
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
	if req.Category == "" {
		req.Category = "general"
	}
	if strings.TrimSpace(req.Description) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "description is required"})
		return
	}

	householdID, err := resolveHousehold(h.users, h.households, userID, req.HouseholdID)
	if err != nil {
		writeError(w, h.logger, "resolve household", err)
		return
	}

	hr, err := h.requests.Create(&model.HelpRequest{
		ID:          req.ID,
		HouseholdID: householdID,
		RequesterID: userID,
		Category:    req.Category,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	})
	if err != nil {
		writeError(w, h.logger, "create help request", err)
		return
	}

	h.hub.Broadcast(events.NewEvent("help_request", "created", householdID, hr.ID))
	writeJSON(w, http.StatusCreated, hr)
}

// Get handles GET /api/help-requests/{id}
func (h *HelpRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	hr, err := h.requests.GetByID(id)
	if err != nil {
		h.logger.Error("get help request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load help request"})
		return
	}
	if hr == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "help request not found"})
		return
	}

	m, err := h.households.GetMembership(hr.HouseholdID, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "get help request", membership.ErrNotAMember)
		return
	}

	writeJSON(w, http.StatusOK, hr)
}

// List handles GET /api/help-requests
func (h *HelpRequestHandler) List(w http.ResponseWriter, r *http.Request) {
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

	requests, err := h.requests.ListByHousehold(householdID)
	if err != nil {
		h.logger.Error("list help requests", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list help requests"})
		return
	}
	if requests == nil {
		requests = []model.HelpRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

// Update handles PUT /api/help-requests/{id}
func (h *HelpRequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	existing, err := h.requests.GetByID(id)
	if err != nil {
		h.logger.Error("get help request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load help request"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "help request not found"})
		return
	}

	m, err := h.households.GetMembership(existing.HouseholdID, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "update help request", membership.ErrNotAMember)
		return
	}

	var req helpRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Category == "" {
		req.Category = existing.Category
	}
	if strings.TrimSpace(req.Description) == "" {
		req.Description = existing.Description
	}

	hr, err := h.requests.Update(id, req.Category, req.Description, req.Latitude, req.Longitude, req.Resolved)
	if err != nil {
		h.logger.Error("update help request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update help request"})
		return
	}

	h.hub.Broadcast(events.NewEvent("help_request", "updated", existing.HouseholdID, id))
	writeJSON(w, http.StatusOK, hr)
}

// Delete handles DELETE /api/help-requests/{id}
func (h *HelpRequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	existing, err := h.requests.GetByID(id)
	if err != nil {
		h.logger.Error("get help request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load help request"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "help request not found"})
		return
	}

	m, err := h.households.GetMembership(existing.HouseholdID, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "delete help request", membership.ErrNotAMember)
		return
	}

	if err := h.requests.Delete(id); err != nil {
		h.logger.Error("delete help request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete help request"})
		return
	}

	h.hub.Broadcast(events.NewEvent("help_request", "deleted", existing.HouseholdID, id))
	w.WriteHeader(http.StatusNoContent)
}

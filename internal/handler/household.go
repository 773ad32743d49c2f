package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

type HouseholdHandler struct {
	households *store.HouseholdStore
	users      *store.UserStore
	audits     *store.AuditStore
	hub        *events.Hub
	logger     *slog.Logger
}

func NewHouseholdHandler(hs *store.HouseholdStore, us *store.UserStore, as *store.AuditStore, hub *events.Hub, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{households: hs, users: us, audits: as, hub: hub, logger: logger}
}

type householdRequest struct {
	Name string `json:"name"`
}

// Create handles POST /api/households
func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req householdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	household, err := h.households.Create(userID, req.Name)
	if err != nil {
		writeError(w, h.logger, "create household", err)
		return
	}

	h.hub.Broadcast(events.NewEvent("household", "created", household.ID, strconv.FormatInt(household.ID, 10)))
	writeJSON(w, http.StatusCreated, household)
}

type currentHouseholdResponse struct {
	Household *model.Household `json:"household"`
	Role      model.Role       `json:"role"`
}

// Current handles GET /api/households/current. The household comes from the
// caller's active pointer, falling back to their only membership.
func (h *HouseholdHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	householdID, err := resolveHousehold(h.users, h.households, userID, 0)
	if err != nil {
		writeError(w, h.logger, "resolve household", err)
		return
	}

	household, err := h.households.GetByID(householdID)
	if err != nil {
		h.logger.Error("get household", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load household"})
		return
	}
	if household == nil {
		writeError(w, h.logger, "get household", membership.ErrNotFound)
		return
	}

	m, err := h.households.GetMembership(householdID, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "get membership", membership.ErrNotAMember)
		return
	}

	writeJSON(w, http.StatusOK, currentHouseholdResponse{Household: household, Role: m.Role})
}

// Get handles GET /api/households/{id}. Members only.
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	m, err := h.households.GetMembership(id, userID)
	if err != nil {
		h.logger.Error("get membership", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load membership"})
		return
	}
	if m == nil {
		writeError(w, h.logger, "get household", membership.ErrNotAMember)
		return
	}

	household, err := h.households.GetByID(id)
	if err != nil {
		h.logger.Error("get household", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load household"})
		return
	}
	if household == nil {
		writeError(w, h.logger, "get household", membership.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, household)
}

// Rename handles PUT /api/households/{id}. Owner only.
func (h *HouseholdHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req householdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	existing, err := h.households.GetByID(id)
	if err != nil {
		h.logger.Error("get household", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load household"})
		return
	}
	if existing == nil {
		writeError(w, h.logger, "rename household", membership.ErrNotFound)
		return
	}

	m, err := h.households.GetMembership(id, userID)
	if err != nil {
		h.logger.Error("get membership", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load membership"})
		return
	}
	if m == nil || m.Role != model.RoleOwner {
		writeError(w, h.logger, "rename household", membership.ErrNotOwner)
		return
	}

	household, err := h.households.UpdateName(id, req.Name)
	if err != nil {
		h.logger.Error("rename household", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to rename household"})
		return
	}

	detail, _ := json.Marshal(map[string]string{"from": existing.Name, "to": req.Name})
	if err := h.audits.Append(&model.AuditEntry{
		HouseholdID:   id,
		HouseholdName: req.Name,
		ActorID:       userID,
		Action:        model.AuditHouseholdRenamed,
		Detail:        detail,
	}); err != nil {
		h.logger.Error("append audit", "error", err)
	}

	h.hub.Broadcast(events.NewEvent("household", "renamed", id, strconv.FormatInt(id, 10)))
	writeJSON(w, http.StatusOK, household)
}

// Members handles GET /api/households/{id}/members
func (h *HouseholdHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	m, err := h.households.GetMembership(id, userID)
	if err != nil {
		h.logger.Error("get membership", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load membership"})
		return
	}
	if m == nil {
		writeError(w, h.logger, "list members", membership.ErrNotAMember)
		return
	}

	members, err := h.households.ListMembers(id)
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list members"})
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

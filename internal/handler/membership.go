package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/store"
)

type MembershipHandler struct {
	manager    *membership.Manager
	households *store.HouseholdStore
	hub        *events.Hub
	logger     *slog.Logger
}

func NewMembershipHandler(m *membership.Manager, hs *store.HouseholdStore, hub *events.Hub, logger *slog.Logger) *MembershipHandler {
	return &MembershipHandler{manager: m, households: hs, hub: hub, logger: logger}
}

type transferRequest struct {
	ToUserID int64 `json:"to_user_id"`
}

// Transfer handles POST /api/households/{id}/transfer
func (h *MembershipHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.ToUserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to_user_id is required"})
		return
	}

	if err := h.manager.TransferOwnership(id, req.ToUserID, userID); err != nil {
		writeError(w, h.logger, "transfer ownership", err)
		return
	}

	h.hub.Broadcast(events.NewEvent("membership", "transferred", id, strconv.FormatInt(req.ToUserID, 10)))
	w.WriteHeader(http.StatusNoContent)
}

type leaveRequest struct {
	HouseholdID *int64 `json:"household_id"`
}

// Leave handles POST /api/households/leave. The body may name the
// household; callers in a single household can omit it.
func (h *MembershipHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req leaveRequest
	if r.Body != nil {
		// An empty body means "my only household".
		json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.manager.Leave(req.HouseholdID, userID)
	if err != nil {
		writeError(w, h.logger, "leave household", err)
		return
	}

	if result.Deleted {
		h.hub.Broadcast(events.NewEvent("household", "deleted", result.HouseholdID, strconv.FormatInt(result.HouseholdID, 10)))
	} else {
		h.hub.Broadcast(events.NewEvent("membership", "left", result.HouseholdID, strconv.FormatInt(userID, 10)))
	}
	writeJSON(w, http.StatusOK, result)
}

package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

type InvitationHandler struct {
	manager     *membership.Manager
	invitations *store.InvitationStore
	households  *store.HouseholdStore
	users       *store.UserStore
	hub         *events.Hub
	logger      *slog.Logger
}

func NewInvitationHandler(m *membership.Manager, is *store.InvitationStore, hs *store.HouseholdStore, us *store.UserStore, hub *events.Hub, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{manager: m, invitations: is, households: hs, users: us, hub: hub, logger: logger}
}

type createInvitationRequest struct {
	HouseholdID  int64  `json:"household_id"`
	InviteePhone string `json:"invitee_phone"`
	TTLHours     int    `json:"ttl_hours"`
}

// Create handles POST /api/invitations. Owner only; the household defaults
// to the caller's active one.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req createInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	householdID, err := resolveHousehold(h.users, h.households, userID, req.HouseholdID)
	if err != nil {
		writeError(w, h.logger, "resolve household", err)
		return
	}

	var inviteePhone *string
	if p := strings.TrimSpace(req.InviteePhone); p != "" {
		inviteePhone = &p
	}
	ttl := membership.DefaultInvitationTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}

	inv, err := h.manager.CreateInvitation(householdID, userID, inviteePhone, ttl)
	if err != nil {
		writeError(w, h.logger, "create invitation", err)
		return
	}

	h.hub.Broadcast(events.NewEvent("invitation", "created", householdID, strconv.FormatInt(inv.ID, 10)))
	writeJSON(w, http.StatusCreated, inv)
}

// List handles GET /api/invitations. Owner only: invitations carry live
// join codes.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
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

	m, err := h.households.GetMembership(householdID, userID)
	if err != nil {
		h.logger.Error("get membership", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load membership"})
		return
	}
	if m == nil || m.Role != model.RoleOwner {
		writeError(w, h.logger, "list invitations", membership.ErrNotOwner)
		return
	}

	invs, err := h.invitations.ListByHousehold(householdID)
	if err != nil {
		h.logger.Error("list invitations", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list invitations"})
		return
	}
	if invs == nil {
		invs = []model.Invitation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem handles POST /api/invitations/redeem
func (h *InvitationHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}

	m, err := h.manager.RedeemInvitation(req.Code, userID)
	if err != nil {
		writeError(w, h.logger, "redeem invitation", err)
		return
	}

	h.hub.Broadcast(events.NewEvent("membership", "joined", m.HouseholdID, strconv.FormatInt(m.ID, 10)))
	writeJSON(w, http.StatusOK, m)
}

// Revoke handles DELETE /api/invitations/{id}
func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	inv, err := h.invitations.GetByID(id)
	if err != nil {
		h.logger.Error("get invitation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load invitation"})
		return
	}
	if inv == nil {
		writeError(w, h.logger, "revoke invitation", membership.ErrInvitationNotFound)
		return
	}

	if err := h.manager.RevokeInvitation(id, userID); err != nil {
		writeError(w, h.logger, "revoke invitation", err)
		return
	}

	h.hub.Broadcast(events.NewEvent("invitation", "revoked", inv.HouseholdID, strconv.FormatInt(id, 10)))
	w.WriteHeader(http.StatusNoContent)
}

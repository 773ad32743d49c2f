package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

type UserHandler struct {
	users      *store.UserStore
	households *store.HouseholdStore
	tokens     *auth.TokenService
	logger     *slog.Logger
}

func NewUserHandler(us *store.UserStore, hs *store.HouseholdStore, tokens *auth.TokenService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: us, households: hs, tokens: tokens, logger: logger}
}

type registerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type registerResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Register handles POST /api/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and phone are required"})
		return
	}

	user, err := h.users.Create(req.Name, req.Phone)
	if err != nil {
		if store.IsUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, apiError{Error: "phone already registered", Code: "phone_taken"})
			return
		}
		h.logger.Error("create user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to register"})
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Phone, auth.DefaultTokenTTL)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to register"})
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{User: user, Token: token})
}

type meResponse struct {
	User        *model.User        `json:"user"`
	Memberships []model.Membership `json:"memberships"`
}

// Me handles GET /api/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	user, err := h.users.GetByID(userID)
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load user"})
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	memberships, err := h.households.MembershipsForUser(userID)
	if err != nil {
		h.logger.Error("list memberships", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load memberships"})
		return
	}
	if memberships == nil {
		memberships = []model.Membership{}
	}

	writeJSON(w, http.StatusOK, meResponse{User: user, Memberships: memberships})
}

type updateMeRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Update handles PUT /api/me
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and phone are required"})
		return
	}

	user, err := h.users.Update(userID, req.Name, req.Phone)
	if err != nil {
		if store.IsUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, apiError{Error: "phone already registered", Code: "phone_taken"})
			return
		}
		h.logger.Error("update user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update"})
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type activeHouseholdRequest struct {
	HouseholdID *int64 `json:"household_id"`
}

// SetActiveHousehold handles PUT /api/me/household. A null household_id
// clears the pointer.
func (h *UserHandler) SetActiveHousehold(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req activeHouseholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.HouseholdID != nil {
		m, err := h.households.GetMembership(*req.HouseholdID, userID)
		if err != nil {
			h.logger.Error("get membership", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to switch household"})
			return
		}
		if m == nil {
			writeError(w, h.logger, "switch household", membership.ErrNotAMember)
			return
		}
	}

	if err := h.users.SetActiveHousehold(userID, req.HouseholdID); err != nil {
		h.logger.Error("set active household", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to switch household"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

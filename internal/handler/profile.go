package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/events"
	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

type ProfileHandler struct {
	profiles   *store.VulnerabilityProfileStore
	households *store.HouseholdStore
	readiness  *store.ReadinessStore
	hub        *events.Hub
	logger     *slog.Logger
}

func NewProfileHandler(ps *store.VulnerabilityProfileStore, hs *store.HouseholdStore, rs *store.ReadinessStore, hub *events.Hub, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: ps, households: hs, readiness: rs, hub: hub, logger: logger}
}

// Get handles GET /api/households/{id}/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	m, err := h.households.GetMembership(id, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "get profile", membership.ErrNotAMember)
		return
	}

	profile, err := h.profiles.Get(id)
	if err != nil {
		h.logger.Error("get profile", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}
	if profile == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

type profileRequest struct {
	HouseholdSize        int  `json:"household_size"`
	MedicationDependency bool `json:"medication_dependency"`
	InsulinDependency    bool `json:"insulin_dependency"`
	PoweredMedicalDevice bool `json:"powered_medical_device"`
	MobilityLimitation   bool `json:"mobility_limitation"`
	TransportationAccess bool `json:"transportation_access"`
	FinancialStrain      bool `json:"financial_strain"`
}

// Put handles PUT /api/households/{id}/profile. Profile changes feed the
// readiness score, so a recalculation is scheduled with the write.
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	m, err := h.households.GetMembership(id, userID)
	if err != nil || m == nil {
		writeError(w, h.logger, "update profile", membership.ErrNotAMember)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.HouseholdSize < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "household_size must be at least 1"})
		return
	}

	profile, err := h.profiles.Upsert(&model.VulnerabilityProfile{
		HouseholdID:          id,
		HouseholdSize:        req.HouseholdSize,
		MedicationDependency: req.MedicationDependency,
		InsulinDependency:    req.InsulinDependency,
		PoweredMedicalDevice: req.PoweredMedicalDevice,
		MobilityLimitation:   req.MobilityLimitation,
		TransportationAccess: req.TransportationAccess,
		FinancialStrain:      req.FinancialStrain,
	})
	if err != nil {
		h.logger.Error("upsert profile", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}

	if err := h.readiness.ScheduleRecalc(id); err != nil {
		h.logger.Error("schedule recalc", "error", err)
	}

	h.hub.Broadcast(events.NewEvent("vulnerability_profile", "updated", id, strconv.FormatInt(id, 10)))
	writeJSON(w, http.StatusOK, profile)
}

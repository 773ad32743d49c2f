package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/store"
)

type ReadinessHandler struct {
	readiness  *store.ReadinessStore
	households *store.HouseholdStore
	users      *store.UserStore
	logger     *slog.Logger
}

func NewReadinessHandler(rs *store.ReadinessStore, hs *store.HouseholdStore, us *store.UserStore, logger *slog.Logger) *ReadinessHandler {
	return &ReadinessHandler{readiness: rs, households: hs, users: us, logger: logger}
}

// Get handles GET /api/readiness. A missing score means no recalculation
// has landed yet; callers get 404 and try again after the next pass.
func (h *ReadinessHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	score, err := h.readiness.GetScore(householdID)
	if err != nil {
		h.logger.Error("get readiness score", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load score"})
		return
	}
	if score == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "score not yet computed"})
		return
	}

	writeJSON(w, http.StatusOK, score)
}

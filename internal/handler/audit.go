package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tuckborough/haven/internal/auth"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

type AuditHandler struct {
	audits     *store.AuditStore
	households *store.HouseholdStore
	users      *store.UserStore
	logger     *slog.Logger
}

func NewAuditHandler(as *store.AuditStore, hs *store.HouseholdStore, us *store.UserStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audits: as, households: hs, users: us, logger: logger}
}

// List handles GET /api/audit. Any member may read their household's
// trail; entries are newest first.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
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

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	householdID, err := resolveHousehold(h.users, h.households, userID, explicit)
	if err != nil {
		writeError(w, h.logger, "resolve household", err)
		return
	}

	entries, err := h.audits.ListByHousehold(householdID, limit)
	if err != nil {
		h.logger.Error("list audit entries", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list audit entries"})
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

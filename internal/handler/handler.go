package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tuckborough/haven/internal/membership"
	"github.com/tuckborough/haven/internal/store"
)

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps domain sentinels onto HTTP statuses with stable machine
// codes. A zero status means the error is not a known domain outcome.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, membership.ErrNotFound):
		return http.StatusNotFound, "household_not_found"
	case errors.Is(err, membership.ErrRequestNotFound):
		return http.StatusNotFound, "join_request_not_found"
	case errors.Is(err, membership.ErrInvitationNotFound):
		return http.StatusNotFound, "invitation_not_found"
	case errors.Is(err, membership.ErrNotAMember):
		return http.StatusNotFound, "not_a_member"
	case errors.Is(err, membership.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, membership.ErrInviteeMismatch):
		return http.StatusForbidden, "invitee_mismatch"
	case errors.Is(err, membership.ErrSameIdentity):
		return http.StatusBadRequest, "same_identity"
	case errors.Is(err, membership.ErrHouseholdRequired):
		return http.StatusBadRequest, "household_required"
	case errors.Is(err, membership.ErrAlreadyMember):
		return http.StatusConflict, "already_member"
	case errors.Is(err, membership.ErrMustTransferFirst):
		return http.StatusConflict, "must_transfer_first"
	case errors.Is(err, membership.ErrAlreadyProcessed):
		return http.StatusConflict, "already_processed"
	case errors.Is(err, membership.ErrInvitationUsed):
		return http.StatusConflict, "invitation_used"
	case errors.Is(err, membership.ErrInvitationExpired):
		return http.StatusGone, "invitation_expired"
	case errors.Is(err, store.ErrAlreadyOwnsHousehold):
		return http.StatusConflict, "already_owns_household"
	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict, "duplicate_id"
	}
	return 0, ""
}

// writeError answers known domain errors with their mapped status and
// everything else as a logged 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	if status, code := errorStatus(err); status != 0 {
		writeJSON(w, status, apiError{Error: err.Error(), Code: code})
		return
	}
	logger.Error(op, "error", err)
	writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// resolveHousehold picks the household a request acts on: the explicit id
// when given (caller must be a member), otherwise the caller's active
// household, otherwise their only membership. Multiple memberships with no
// selection is ErrHouseholdRequired.
func resolveHousehold(users *store.UserStore, households *store.HouseholdStore, userID, explicit int64) (int64, error) {
	if explicit != 0 {
		m, err := households.GetMembership(explicit, userID)
		if err != nil {
			return 0, err
		}
		if m == nil {
			return 0, membership.ErrNotAMember
		}
		return explicit, nil
	}

	u, err := users.GetByID(userID)
	if err != nil {
		return 0, err
	}
	if u != nil && u.ActiveHouseholdID != nil {
		return *u.ActiveHouseholdID, nil
	}

	memberships, err := households.MembershipsForUser(userID)
	if err != nil {
		return 0, err
	}
	switch len(memberships) {
	case 0:
		return 0, membership.ErrNotAMember
	case 1:
		return memberships[0].HouseholdID, nil
	default:
		return 0, membership.ErrHouseholdRequired
	}
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tuckborough/haven/internal/model"
)

// InvitationStore reads invitation state. All status transitions happen
// inside membership transactions, so the write path lives in
// internal/membership; the store only covers lookups and the expiry sweep.
type InvitationStore struct {
	db *sql.DB
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func scanInvitation(scanner interface{ Scan(...any) error }) (*model.Invitation, error) {
	var inv model.Invitation
	var inviteePhone sql.NullString
	var acceptedBy sql.NullInt64
	var acceptedAt sql.NullTime

	err := scanner.Scan(
		&inv.ID, &inv.HouseholdID, &inv.InviterID, &inv.Code, &inviteePhone,
		&inv.Status, &inv.ExpiresAt, &acceptedBy, &acceptedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if inviteePhone.Valid {
		inv.InviteePhone = &inviteePhone.String
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.Int64
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, nil
}

const invitationCols = `id, household_id, inviter_id, code, invitee_phone, status, expires_at, accepted_by, accepted_at, created_at`

func (s *InvitationStore) GetByID(id int64) (*model.Invitation, error) {
	row := s.db.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// GetByCode returns the invitation in any status. Callers decide what a
// non-pending or overdue row means.
func (s *InvitationStore) GetByCode(code string) (*model.Invitation, error) {
	row := s.db.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE code = ?`, code)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation by code: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) ListByHousehold(householdID int64) ([]model.Invitation, error) {
	rows, err := s.db.Query(
		`SELECT `+invitationCols+` FROM invitations WHERE household_id = ? ORDER BY created_at DESC, id DESC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

// ExpireOverdue marks pending invitations whose deadline has passed as
// expired and returns how many rows changed. Run periodically; redemption
// also expires overdue rows on contact, so the sweep is just hygiene.
func (s *InvitationStore) ExpireOverdue(now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE invitations SET status = ? WHERE status = ? AND expires_at <= ?`,
		model.InvitationExpired, model.InvitationPending, now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

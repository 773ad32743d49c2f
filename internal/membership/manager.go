// Package membership implements the transactional core of household
// coordination: invitation issue and redemption, ownership transfer, and
// leaving. Every operation is one SQLite transaction that either fully
// commits or fully rolls back, and every state transition is a guarded
// update, so two racing callers always produce one winner and one typed
// error. Audit entries and readiness recalculation requests are written
// inside the same transaction as the change they describe.
package membership

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tuckborough/haven/internal/code"
	"github.com/tuckborough/haven/internal/model"
	"github.com/tuckborough/haven/internal/store"
)

// DefaultInvitationTTL applies when the inviter does not pick an expiry.
const DefaultInvitationTTL = 72 * time.Hour

// codeAttempts bounds regeneration when a fresh invitation code collides.
const codeAttempts = 5

type Manager struct {
	db          *sql.DB
	households  *store.HouseholdStore
	invitations *store.InvitationStore
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{
		db:          db,
		households:  store.NewHouseholdStore(db),
		invitations: store.NewInvitationStore(db),
	}
}

// LeaveResult reports what Leave did. When the sole owner leaves, the
// household itself is deleted and Deleted is true.
type LeaveResult struct {
	HouseholdID int64 `json:"household_id"`
	Deleted     bool  `json:"deleted"`
}

// CreateInvitation issues a single-use, time-boxed invitation code for the
// household. Only the current owner may invite. A non-nil inviteePhone binds
// the invitation to the identity holding that phone number.
func (m *Manager) CreateInvitation(householdID, inviterID int64, inviteePhone *string, ttl time.Duration) (*model.Invitation, error) {
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}

	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	household, err := householdForUpdate(tx, householdID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(tx, householdID, inviterID); err != nil {
		return nil, err
	}

	var phone sql.NullString
	if inviteePhone != nil {
		phone = sql.NullString{String: *inviteePhone, Valid: true}
	}
	expiresAt := time.Now().UTC().Add(ttl)

	var invitationID int64
	for attempt := 1; ; attempt++ {
		inviteCode, err := code.Generate()
		if err != nil {
			return nil, err
		}
		// Codes share one namespace with household join codes, so a draw
		// that matches a household is a collision too.
		var taken bool
		if err := tx.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM households WHERE code = ?)`, inviteCode,
		).Scan(&taken); err != nil {
			return nil, fmt.Errorf("check household codes: %w", err)
		}
		if !taken {
			result, err := tx.Exec(
				`INSERT INTO invitations (household_id, inviter_id, code, invitee_phone, expires_at)
				 VALUES (?, ?, ?, ?, ?)`,
				householdID, inviterID, inviteCode, phone, expiresAt,
			)
			if err == nil {
				invitationID, err = result.LastInsertId()
				if err != nil {
					return nil, fmt.Errorf("last insert id: %w", err)
				}
				break
			}
			if !store.IsUniqueViolation(err) {
				return nil, fmt.Errorf("insert invitation: %w", err)
			}
		}
		if attempt == codeAttempts {
			return nil, store.ErrCodeExhausted
		}
	}

	if err := insertAudit(tx, householdID, household.Name, inviterID,
		model.AuditInvitationCreated, fmt.Sprintf("invitation:%d", invitationID),
		map[string]any{"expires_at": expiresAt.Format(time.RFC3339)},
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m.invitations.GetByID(invitationID)
}

// RedeemInvitation resolves a presented code and runs the approve-join
// transaction for it.
func (m *Manager) RedeemInvitation(inviteCode string, requesterID int64) (*model.Membership, error) {
	inv, err := m.invitations.GetByCode(code.Normalize(inviteCode))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	return m.approveJoin(inv.ID, requesterID, ErrInvitationNotFound)
}

// ApproveJoin accepts a pending invitation by id and adds the requester as a
// member. The invitation row is re-read inside the transaction and the
// accept is a guarded update, so concurrent calls on the same invitation
// yield exactly one new membership.
func (m *Manager) ApproveJoin(invitationID, requesterID int64) (*model.Membership, error) {
	return m.approveJoin(invitationID, requesterID, ErrRequestNotFound)
}

func (m *Manager) approveJoin(invitationID, requesterID int64, missing error) (*model.Membership, error) {
	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		inv          model.Invitation
		inviteePhone sql.NullString
	)
	err = tx.QueryRow(
		`SELECT id, household_id, invitee_phone, status, expires_at FROM invitations WHERE id = ?`,
		invitationID,
	).Scan(&inv.ID, &inv.HouseholdID, &inviteePhone, &inv.Status, &inv.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, missing
	}
	if err != nil {
		return nil, fmt.Errorf("read invitation: %w", err)
	}

	switch inv.Status {
	case model.InvitationPending:
	case model.InvitationExpired:
		return nil, ErrInvitationExpired
	default:
		return nil, ErrInvitationUsed
	}

	now := time.Now().UTC()
	if inv.Expired(now) {
		// Mark it on contact so later reads see a terminal status. This is
		// a real transition, so it commits even though the join fails.
		if _, err := tx.Exec(
			`UPDATE invitations SET status = ? WHERE id = ? AND status = ?`,
			model.InvitationExpired, inv.ID, model.InvitationPending,
		); err != nil {
			return nil, fmt.Errorf("expire invitation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return nil, ErrInvitationExpired
	}

	if inviteePhone.Valid {
		var requesterPhone string
		err := tx.QueryRow(`SELECT phone FROM users WHERE id = ?`, requesterID).Scan(&requesterPhone)
		if err != nil {
			return nil, fmt.Errorf("read requester: %w", err)
		}
		if requesterPhone != inviteePhone.String {
			return nil, ErrInviteeMismatch
		}
	}

	household, err := householdForUpdate(tx, inv.HouseholdID)
	if err != nil {
		return nil, err
	}

	// Claim the invitation first. Zero rows means a concurrent call won.
	result, err := tx.Exec(
		`UPDATE invitations SET status = ?, accepted_by = ?, accepted_at = ? WHERE id = ? AND status = ?`,
		model.InvitationAccepted, requesterID, now, inv.ID, model.InvitationPending,
	)
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrAlreadyProcessed
	}

	if _, err := tx.Exec(
		`INSERT INTO memberships (household_id, user_id, role) VALUES (?, ?, ?)`,
		inv.HouseholdID, requesterID, model.RoleMember,
	); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("insert membership: %w", err)
	}

	// Point the joiner's devices at the new household unless they already
	// have one selected.
	if _, err := tx.Exec(
		`UPDATE users SET active_household_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND active_household_id IS NULL`,
		inv.HouseholdID, requesterID,
	); err != nil {
		return nil, fmt.Errorf("set active household: %w", err)
	}

	if err := insertAudit(tx, inv.HouseholdID, household.Name, requesterID,
		model.AuditMemberJoined, fmt.Sprintf("user:%d", requesterID),
		map[string]any{"invitation_id": inv.ID},
	); err != nil {
		return nil, err
	}
	if err := scheduleRecalc(tx, inv.HouseholdID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m.households.GetMembership(inv.HouseholdID, requesterID)
}

// RevokeInvitation retires a pending invitation before anyone redeems it.
// Owner-only; revoked is terminal.
func (m *Manager) RevokeInvitation(invitationID, actorID int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var householdID int64
	var status model.InvitationStatus
	err = tx.QueryRow(
		`SELECT household_id, status FROM invitations WHERE id = ?`, invitationID,
	).Scan(&householdID, &status)
	if err == sql.ErrNoRows {
		return ErrInvitationNotFound
	}
	if err != nil {
		return fmt.Errorf("read invitation: %w", err)
	}

	household, err := householdForUpdate(tx, householdID)
	if err != nil {
		return err
	}
	if err := requireOwner(tx, householdID, actorID); err != nil {
		return err
	}
	if status != model.InvitationPending {
		return ErrAlreadyProcessed
	}

	result, err := tx.Exec(
		`UPDATE invitations SET status = ? WHERE id = ? AND status = ?`,
		model.InvitationRevoked, invitationID, model.InvitationPending,
	)
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return ErrAlreadyProcessed
	}

	if err := insertAudit(tx, householdID, household.Name, actorID,
		model.AuditInvitationRevoked, fmt.Sprintf("invitation:%d", invitationID), nil,
	); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TransferOwnership demotes the acting owner to member and promotes
// newOwnerID to owner in one transaction. The target must already be a
// member. There is never an observable moment with zero or two owners.
func (m *Manager) TransferOwnership(householdID, newOwnerID, actorID int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	household, err := householdForUpdate(tx, householdID)
	if err != nil {
		return err
	}

	var ownerID int64
	err = tx.QueryRow(
		`SELECT user_id FROM memberships WHERE household_id = ? AND role = ?`,
		householdID, model.RoleOwner,
	).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if ownerID != actorID {
		return ErrNotOwner
	}
	if newOwnerID == actorID {
		return ErrSameIdentity
	}

	var targetRole model.Role
	err = tx.QueryRow(
		`SELECT role FROM memberships WHERE household_id = ? AND user_id = ?`,
		householdID, newOwnerID,
	).Scan(&targetRole)
	if err == sql.ErrNoRows {
		return ErrNotAMember
	}
	if err != nil {
		return fmt.Errorf("read target membership: %w", err)
	}

	// Demote and promote as paired guarded updates. If either misses, a
	// concurrent transfer got there first and the rollback restores the
	// single-owner state.
	demote, err := tx.Exec(
		`UPDATE memberships SET role = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE household_id = ? AND user_id = ? AND role = ?`,
		model.RoleMember, householdID, actorID, model.RoleOwner,
	)
	if err != nil {
		return fmt.Errorf("demote owner: %w", err)
	}
	if n, err := demote.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return ErrAlreadyProcessed
	}

	promote, err := tx.Exec(
		`UPDATE memberships SET role = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE household_id = ? AND user_id = ? AND role = ?`,
		model.RoleOwner, householdID, newOwnerID, model.RoleMember,
	)
	if err != nil {
		return fmt.Errorf("promote member: %w", err)
	}
	if n, err := promote.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return ErrAlreadyProcessed
	}

	if err := insertAudit(tx, householdID, household.Name, actorID,
		model.AuditOwnershipTransfer, fmt.Sprintf("user:%d", newOwnerID),
		map[string]any{"from": actorID, "to": newOwnerID},
	); err != nil {
		return err
	}
	if err := scheduleRecalc(tx, householdID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Leave removes the actor's membership. householdID may be nil when the
// actor belongs to exactly one household; with several memberships it is
// required. An owner must transfer first unless they are the last member,
// in which case the household itself is deleted and the audit entry keeps a
// snapshot of it.
func (m *Manager) Leave(householdID *int64, actorID int64) (*LeaveResult, error) {
	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var hid int64
	var role model.Role
	if householdID != nil {
		err = tx.QueryRow(
			`SELECT household_id, role FROM memberships WHERE household_id = ? AND user_id = ?`,
			*householdID, actorID,
		).Scan(&hid, &role)
		if err == sql.ErrNoRows {
			return nil, ErrNotAMember
		}
		if err != nil {
			return nil, fmt.Errorf("read membership: %w", err)
		}
	} else {
		rows, err := tx.Query(
			`SELECT household_id, role FROM memberships WHERE user_id = ?`, actorID,
		)
		if err != nil {
			return nil, fmt.Errorf("read memberships: %w", err)
		}
		var found int
		for rows.Next() {
			found++
			if found > 1 {
				rows.Close()
				return nil, ErrHouseholdRequired
			}
			if err := rows.Scan(&hid, &role); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan membership: %w", err)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read memberships: %w", err)
		}
		if found == 0 {
			return nil, ErrNotAMember
		}
	}

	household, err := householdForUpdate(tx, hid)
	if err != nil {
		return nil, err
	}

	if role == model.RoleOwner {
		var others int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM memberships WHERE household_id = ? AND user_id != ?`,
			hid, actorID,
		).Scan(&others); err != nil {
			return nil, fmt.Errorf("count other members: %w", err)
		}
		if others > 0 {
			return nil, ErrMustTransferFirst
		}

		// Sole member: the household goes away entirely. The audit entry is
		// written first and is snapshot-keyed, so it survives the delete.
		if err := insertAudit(tx, hid, household.Name, actorID,
			model.AuditHouseholdDeleted, fmt.Sprintf("user:%d", actorID), nil,
		); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(`DELETE FROM households WHERE id = ?`, hid); err != nil {
			return nil, fmt.Errorf("delete household: %w", err)
		}
		if err := clearActiveHousehold(tx, actorID, hid); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return &LeaveResult{HouseholdID: hid, Deleted: true}, nil
	}

	result, err := tx.Exec(
		`DELETE FROM memberships WHERE household_id = ? AND user_id = ?`,
		hid, actorID,
	)
	if err != nil {
		return nil, fmt.Errorf("delete membership: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrAlreadyProcessed
	}

	if err := clearActiveHousehold(tx, actorID, hid); err != nil {
		return nil, err
	}
	if err := insertAudit(tx, hid, household.Name, actorID,
		model.AuditMemberLeft, fmt.Sprintf("user:%d", actorID), nil,
	); err != nil {
		return nil, err
	}
	if err := scheduleRecalc(tx, hid); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &LeaveResult{HouseholdID: hid}, nil
}

// householdForUpdate reads the household row inside the transaction,
// returning ErrNotFound when it does not exist.
func householdForUpdate(tx *sql.Tx, householdID int64) (*model.Household, error) {
	var h model.Household
	err := tx.QueryRow(
		`SELECT id, name, code FROM households WHERE id = ?`, householdID,
	).Scan(&h.ID, &h.Name, &h.Code)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read household: %w", err)
	}
	return &h, nil
}

func requireOwner(tx *sql.Tx, householdID, userID int64) error {
	var role model.Role
	err := tx.QueryRow(
		`SELECT role FROM memberships WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return ErrNotOwner
	}
	if err != nil {
		return fmt.Errorf("read membership: %w", err)
	}
	if role != model.RoleOwner {
		return ErrNotOwner
	}
	return nil
}

func insertAudit(tx *sql.Tx, householdID int64, householdName string, actorID int64, action, target string, detail any) error {
	var js any
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		js = string(b)
	}
	_, err := tx.Exec(
		`INSERT INTO audit_entries (household_id, household_name, actor_id, action, target, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		householdID, householdName, actorID, action, target, js,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func scheduleRecalc(tx *sql.Tx, householdID int64) error {
	if _, err := tx.Exec(
		`INSERT INTO recalc_outbox (household_id) VALUES (?)`, householdID,
	); err != nil {
		return fmt.Errorf("schedule recalc: %w", err)
	}
	return nil
}

func clearActiveHousehold(tx *sql.Tx, userID, householdID int64) error {
	if _, err := tx.Exec(
		`UPDATE users SET active_household_id = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND active_household_id = ?`,
		userID, householdID,
	); err != nil {
		return fmt.Errorf("clear active household: %w", err)
	}
	return nil
}

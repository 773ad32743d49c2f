package store

import (
	"database/sql"
	"fmt"

	"github.com/tuckborough/haven/internal/code"
	"github.com/tuckborough/haven/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.Code, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanMembership(scanner interface{ Scan(...any) error }) (*model.Membership, error) {
	var m model.Membership
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const householdCols = `id, name, code, created_at, updated_at`
const membershipCols = `id, household_id, user_id, role, created_at, updated_at`

// codeAttempts bounds regeneration when a fresh join code collides with an
// existing one.
const codeAttempts = 5

// Create inserts a household with a fresh join code, makes ownerID its sole
// owner member, and seeds an empty vulnerability profile, all in one
// transaction. The new household becomes the owner's active household.
// Returns ErrAlreadyOwnsHousehold if the user already owns one.
func (s *HouseholdStore) Create(ownerID int64, name string) (*model.Household, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var owned int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM memberships WHERE user_id = ? AND role = ?`,
		ownerID, model.RoleOwner,
	).Scan(&owned); err != nil {
		return nil, fmt.Errorf("count owned households: %w", err)
	}
	if owned > 0 {
		return nil, ErrAlreadyOwnsHousehold
	}

	var householdID int64
	for attempt := 1; ; attempt++ {
		joinCode, err := code.Generate()
		if err != nil {
			return nil, err
		}
		result, err := tx.Exec(`INSERT INTO households (name, code) VALUES (?, ?)`, name, joinCode)
		if IsUniqueViolation(err) {
			if attempt == codeAttempts {
				return nil, ErrCodeExhausted
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert household: %w", err)
		}
		householdID, err = result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		break
	}

	if _, err := tx.Exec(
		`INSERT INTO memberships (household_id, user_id, role) VALUES (?, ?, ?)`,
		householdID, ownerID, model.RoleOwner,
	); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO vulnerability_profiles (household_id) VALUES (?)`,
		householdID,
	); err != nil {
		return nil, fmt.Errorf("seed vulnerability profile: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE users SET active_household_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		householdID, ownerID,
	); err != nil {
		return nil, fmt.Errorf("set active household: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO audit_entries (household_id, household_name, actor_id, action, target)
		 VALUES (?, ?, ?, ?, ?)`,
		householdID, name, ownerID, model.AuditHouseholdCreated, fmt.Sprintf("user:%d", ownerID),
	); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(householdID)
}

func (s *HouseholdStore) GetByID(id int64) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) GetByCode(joinCode string) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE code = ?`, joinCode)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household by code: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) UpdateName(id int64, name string) (*model.Household, error) {
	_, err := s.db.Exec(
		`UPDATE households SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update household name: %w", err)
	}
	return s.GetByID(id)
}

// GetMembership returns the user's membership in the household, or nil when
// the user is not a member.
func (s *HouseholdStore) GetMembership(householdID, userID int64) (*model.Membership, error) {
	row := s.db.QueryRow(
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *HouseholdStore) MembershipsForUser(userID int64) ([]model.Membership, error) {
	rows, err := s.db.Query(
		`SELECT `+membershipCols+` FROM memberships WHERE user_id = ? ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships for user: %w", err)
	}
	defer rows.Close()

	var memberships []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	return memberships, rows.Err()
}

// Owner returns the household's owner membership. Every household has
// exactly one; nil means the household does not exist.
func (s *HouseholdStore) Owner(householdID int64) (*model.Membership, error) {
	row := s.db.QueryRow(
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND role = ?`,
		householdID, model.RoleOwner,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	return m, nil
}

// ListMembers returns the household roster, owner first, joined with user
// names and phones.
func (s *HouseholdStore) ListMembers(householdID int64) ([]model.Member, error) {
	rows, err := s.db.Query(
		`SELECT m.id, m.household_id, m.user_id, m.role, m.created_at, m.updated_at, u.name, u.phone
		 FROM memberships m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.household_id = ?
		 ORDER BY m.role DESC, m.created_at ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(
			&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt,
			&m.UserName, &m.UserPhone,
		); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *HouseholdStore) CountMembers(householdID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM memberships WHERE household_id = ?`, householdID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

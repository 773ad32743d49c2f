package store

import (
	"database/sql"
	"fmt"

	"github.com/tuckborough/haven/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var activeHousehold sql.NullInt64
	err := scanner.Scan(&u.ID, &u.Name, &u.Phone, &activeHousehold, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if activeHousehold.Valid {
		u.ActiveHouseholdID = &activeHousehold.Int64
	}
	return &u, nil
}

const userCols = `id, name, phone, active_household_id, created_at, updated_at`

func (s *UserStore) Create(name, phone string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (name, phone) VALUES (?, ?)`,
		name, phone,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByPhone(phone string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE phone = ?`, phone)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by phone: %w", err)
	}
	return u, nil
}

func (s *UserStore) Update(id int64, name, phone string) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET name = ?, phone = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, phone, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(id)
}

// SetActiveHousehold points the user's devices at a household, or clears the
// pointer when householdID is nil.
func (s *UserStore) SetActiveHousehold(userID int64, householdID *int64) error {
	var v sql.NullInt64
	if householdID != nil {
		v = sql.NullInt64{Int64: *householdID, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE users SET active_household_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		v, userID,
	)
	if err != nil {
		return fmt.Errorf("set active household: %w", err)
	}
	return nil
}

package store

import (
	"database/sql"
	"fmt"

	"github.com/tuckborough/haven/internal/model"
)

type HelpRequestStore struct {
	db *sql.DB
}

func NewHelpRequestStore(db *sql.DB) *HelpRequestStore {
	return &HelpRequestStore{db: db}
}

func scanHelpRequest(scanner interface{ Scan(...any) error }) (*model.HelpRequest, error) {
	var hr model.HelpRequest
	var lat, lng sql.NullFloat64
	err := scanner.Scan(
		&hr.ID, &hr.HouseholdID, &hr.RequesterID, &hr.Category, &hr.Description,
		&lat, &lng, &hr.Resolved, &hr.CreatedAt, &hr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		hr.Latitude = &lat.Float64
	}
	if lng.Valid {
		hr.Longitude = &lng.Float64
	}
	return &hr, nil
}

const helpRequestCols = `id, household_id, requester_id, category, description, latitude, longitude, resolved, created_at, updated_at`

// Create inserts a help request under its device-assigned ID. Duplicate IDs
// return ErrDuplicateID.
func (s *HelpRequestStore) Create(hr *model.HelpRequest) (*model.HelpRequest, error) {
	_, err := s.db.Exec(
		`INSERT INTO help_requests (id, household_id, requester_id, category, description, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		hr.ID, hr.HouseholdID, hr.RequesterID, hr.Category, hr.Description, hr.Latitude, hr.Longitude,
	)
	if IsUniqueViolation(err) {
		return nil, ErrDuplicateID
	}
	if err != nil {
		return nil, fmt.Errorf("insert help request: %w", err)
	}
	return s.GetByID(hr.ID)
}

func (s *HelpRequestStore) GetByID(id string) (*model.HelpRequest, error) {
	row := s.db.QueryRow(`SELECT `+helpRequestCols+` FROM help_requests WHERE id = ?`, id)
	hr, err := scanHelpRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get help request: %w", err)
	}
	return hr, nil
}

func (s *HelpRequestStore) ListByHousehold(householdID int64) ([]model.HelpRequest, error) {
	rows, err := s.db.Query(
		`SELECT `+helpRequestCols+` FROM help_requests WHERE household_id = ? ORDER BY created_at DESC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list help requests: %w", err)
	}
	defer rows.Close()

	var requests []model.HelpRequest
	for rows.Next() {
		hr, err := scanHelpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan help request: %w", err)
		}
		requests = append(requests, *hr)
	}
	return requests, rows.Err()
}

func (s *HelpRequestStore) Update(id, category, description string, lat, lng *float64, resolved bool) (*model.HelpRequest, error) {
	_, err := s.db.Exec(
		`UPDATE help_requests
		 SET category = ?, description = ?, latitude = ?, longitude = ?, resolved = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		category, description, lat, lng, resolved, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update help request: %w", err)
	}
	return s.GetByID(id)
}

func (s *HelpRequestStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM help_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete help request: %w", err)
	}
	return nil
}

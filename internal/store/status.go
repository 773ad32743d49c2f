package store

import (
	"database/sql"
	"fmt"

	"github.com/tuckborough/haven/internal/model"
)

type SafetyStatusStore struct {
	db *sql.DB
}

func NewSafetyStatusStore(db *sql.DB) *SafetyStatusStore {
	return &SafetyStatusStore{db: db}
}

func scanSafetyStatus(scanner interface{ Scan(...any) error }) (*model.SafetyStatus, error) {
	var st model.SafetyStatus
	var lat, lng sql.NullFloat64
	err := scanner.Scan(
		&st.ID, &st.HouseholdID, &st.UserID, &st.Status, &st.Note,
		&lat, &lng, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		st.Latitude = &lat.Float64
	}
	if lng.Valid {
		st.Longitude = &lng.Float64
	}
	return &st, nil
}

const safetyStatusCols = `id, household_id, user_id, status, note, latitude, longitude, created_at, updated_at`

// Create inserts a check-in under its device-assigned ID. A second insert
// with the same ID returns ErrDuplicateID, which callers treat as a retried
// upload rather than a failure.
func (s *SafetyStatusStore) Create(st *model.SafetyStatus) (*model.SafetyStatus, error) {
	_, err := s.db.Exec(
		`INSERT INTO safety_statuses (id, household_id, user_id, status, note, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.HouseholdID, st.UserID, st.Status, st.Note, st.Latitude, st.Longitude,
	)
	if IsUniqueViolation(err) {
		return nil, ErrDuplicateID
	}
	if err != nil {
		return nil, fmt.Errorf("insert safety status: %w", err)
	}
	return s.GetByID(st.ID)
}

func (s *SafetyStatusStore) GetByID(id string) (*model.SafetyStatus, error) {
	row := s.db.QueryRow(`SELECT `+safetyStatusCols+` FROM safety_statuses WHERE id = ?`, id)
	st, err := scanSafetyStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get safety status: %w", err)
	}
	return st, nil
}

func (s *SafetyStatusStore) ListByHousehold(householdID int64) ([]model.SafetyStatus, error) {
	rows, err := s.db.Query(
		`SELECT `+safetyStatusCols+` FROM safety_statuses WHERE household_id = ? ORDER BY updated_at DESC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list safety statuses: %w", err)
	}
	defer rows.Close()

	var statuses []model.SafetyStatus
	for rows.Next() {
		st, err := scanSafetyStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan safety status: %w", err)
		}
		statuses = append(statuses, *st)
	}
	return statuses, rows.Err()
}

func (s *SafetyStatusStore) Update(id, status, note string, lat, lng *float64) (*model.SafetyStatus, error) {
	_, err := s.db.Exec(
		`UPDATE safety_statuses
		 SET status = ?, note = ?, latitude = ?, longitude = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		status, note, lat, lng, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update safety status: %w", err)
	}
	return s.GetByID(id)
}

func (s *SafetyStatusStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM safety_statuses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete safety status: %w", err)
	}
	return nil
}

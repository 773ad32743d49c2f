package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tuckborough/haven/internal/model"
)

// RecalcRequest is one pending row in the recalculation outbox.
type RecalcRequest struct {
	ID          int64
	HouseholdID int64
}

// ReadinessStore holds computed readiness scores and the recalculation
// outbox that feeds the background worker. Membership transactions insert
// outbox rows themselves so the request commits or rolls back with the
// membership change; ScheduleRecalc covers callers outside those
// transactions, like profile edits.
type ReadinessStore struct {
	db *sql.DB
}

func NewReadinessStore(db *sql.DB) *ReadinessStore {
	return &ReadinessStore{db: db}
}

func (s *ReadinessStore) GetScore(householdID int64) (*model.ReadinessScore, error) {
	var sc model.ReadinessScore
	err := s.db.QueryRow(
		`SELECT household_id, score, computed_at FROM readiness_scores WHERE household_id = ?`,
		householdID,
	).Scan(&sc.HouseholdID, &sc.Score, &sc.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get readiness score: %w", err)
	}
	return &sc, nil
}

func (s *ReadinessStore) UpsertScore(householdID int64, score float64, computedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO readiness_scores (household_id, score, computed_at) VALUES (?, ?, ?)
		 ON CONFLICT(household_id) DO UPDATE SET score = excluded.score, computed_at = excluded.computed_at`,
		householdID, score, computedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert readiness score: %w", err)
	}
	return nil
}

func (s *ReadinessStore) ScheduleRecalc(householdID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO recalc_outbox (household_id) VALUES (?)`, householdID,
	)
	if err != nil {
		return fmt.Errorf("schedule recalc: %w", err)
	}
	return nil
}

// PendingRecalcs returns the oldest pending outbox rows, up to limit.
func (s *ReadinessStore) PendingRecalcs(limit int) ([]RecalcRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, household_id FROM recalc_outbox WHERE status = 'pending' ORDER BY scheduled_at ASC, id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending recalcs: %w", err)
	}
	defer rows.Close()

	var pending []RecalcRequest
	for rows.Next() {
		var r RecalcRequest
		if err := rows.Scan(&r.ID, &r.HouseholdID); err != nil {
			return nil, fmt.Errorf("scan recalc request: %w", err)
		}
		pending = append(pending, r)
	}
	return pending, rows.Err()
}

func (s *ReadinessStore) MarkRecalcsDone(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(
		`UPDATE recalc_outbox SET status = 'done' WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return fmt.Errorf("mark recalcs done: %w", err)
	}
	return nil
}

// DeleteDoneRecalcs clears completed outbox rows older than cutoff.
func (s *ReadinessStore) DeleteDoneRecalcs(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM recalc_outbox WHERE status = 'done' AND scheduled_at <= ?`, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete done recalcs: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

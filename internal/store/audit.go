package store

import (
	"database/sql"
	"fmt"

	"github.com/tuckborough/haven/internal/model"
)

// AuditStore reads the append-only audit log. Entries for membership
// transactions are written inside those transactions by
// internal/membership; Append exists for actions that happen outside one,
// like renames.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func scanAuditEntry(scanner interface{ Scan(...any) error }) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var detail sql.NullString
	err := scanner.Scan(
		&e.ID, &e.HouseholdID, &e.HouseholdName, &e.ActorID,
		&e.Action, &e.Target, &detail, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if detail.Valid {
		e.Detail = []byte(detail.String)
	}
	return &e, nil
}

const auditCols = `id, household_id, household_name, actor_id, action, target, detail, created_at`

func (s *AuditStore) Append(e *model.AuditEntry) error {
	var detail any
	if len(e.Detail) > 0 {
		detail = string(e.Detail)
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_entries (household_id, household_name, actor_id, action, target, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.HouseholdID, e.HouseholdName, e.ActorID, e.Action, e.Target, detail,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByHousehold returns the newest entries first. The log outlives the
// household, so this works for deleted households too.
func (s *AuditStore) ListByHousehold(householdID int64, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT `+auditCols+` FROM audit_entries WHERE household_id = ? ORDER BY id DESC LIMIT ?`,
		householdID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"

	"github.com/tuckborough/haven/internal/model"
)

type VulnerabilityProfileStore struct {
	db *sql.DB
}

func NewVulnerabilityProfileStore(db *sql.DB) *VulnerabilityProfileStore {
	return &VulnerabilityProfileStore{db: db}
}

func scanVulnerabilityProfile(scanner interface{ Scan(...any) error }) (*model.VulnerabilityProfile, error) {
	var p model.VulnerabilityProfile
	err := scanner.Scan(
		&p.HouseholdID, &p.HouseholdSize, &p.MedicationDependency, &p.InsulinDependency,
		&p.PoweredMedicalDevice, &p.MobilityLimitation, &p.TransportationAccess,
		&p.FinancialStrain, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const vulnerabilityProfileCols = `household_id, household_size, medication_dependency, insulin_dependency, powered_medical_device, mobility_limitation, transportation_access, financial_strain, updated_at`

func (s *VulnerabilityProfileStore) Get(householdID int64) (*model.VulnerabilityProfile, error) {
	row := s.db.QueryRow(
		`SELECT `+vulnerabilityProfileCols+` FROM vulnerability_profiles WHERE household_id = ?`,
		householdID,
	)
	p, err := scanVulnerabilityProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vulnerability profile: %w", err)
	}
	return p, nil
}

// Upsert writes the whole profile. The row is normally seeded when the
// household is created, but the upsert keeps profile edits working even if
// it is missing.
func (s *VulnerabilityProfileStore) Upsert(p *model.VulnerabilityProfile) (*model.VulnerabilityProfile, error) {
	_, err := s.db.Exec(
		`INSERT INTO vulnerability_profiles
		 (household_id, household_size, medication_dependency, insulin_dependency, powered_medical_device, mobility_limitation, transportation_access, financial_strain)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(household_id) DO UPDATE SET
		   household_size = excluded.household_size,
		   medication_dependency = excluded.medication_dependency,
		   insulin_dependency = excluded.insulin_dependency,
		   powered_medical_device = excluded.powered_medical_device,
		   mobility_limitation = excluded.mobility_limitation,
		   transportation_access = excluded.transportation_access,
		   financial_strain = excluded.financial_strain,
		   updated_at = CURRENT_TIMESTAMP`,
		p.HouseholdID, p.HouseholdSize, p.MedicationDependency, p.InsulinDependency,
		p.PoweredMedicalDevice, p.MobilityLimitation, p.TransportationAccess, p.FinancialStrain,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert vulnerability profile: %w", err)
	}
	return s.Get(p.HouseholdID)
}

package model

import "time"

// SafetyStatus is a member's check-in during an event. IDs are assigned by
// the reporting device so an interrupted upload can be retried without
// creating duplicates.
type SafetyStatus struct {
	ID          string    `json:"id"`
	HouseholdID int64     `json:"household_id"`
	UserID      int64     `json:"user_id"`
	Status      string    `json:"status"`
	Note        string    `json:"note"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Safety status values.
const (
	StatusSafe      = "safe"
	StatusNeedsHelp = "needs_help"
	StatusUnknown   = "unknown"
)

// HelpRequest asks neighbors or responders for assistance. Like check-ins,
// IDs come from the requesting device.
type HelpRequest struct {
	ID          string    `json:"id"`
	HouseholdID int64     `json:"household_id"`
	RequesterID int64     `json:"requester_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VulnerabilityProfile holds the household attributes the readiness scorer
// weighs. One row per household, created with the household.
type VulnerabilityProfile struct {
	HouseholdID          int64     `json:"household_id"`
	HouseholdSize        int       `json:"household_size"`
	MedicationDependency bool      `json:"medication_dependency"`
	InsulinDependency    bool      `json:"insulin_dependency"`
	PoweredMedicalDevice bool      `json:"powered_medical_device"`
	MobilityLimitation   bool      `json:"mobility_limitation"`
	TransportationAccess bool      `json:"transportation_access"`
	FinancialStrain      bool      `json:"financial_strain"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ReadinessScore is the stored output of the external scoring function.
type ReadinessScore struct {
	HouseholdID int64     `json:"household_id"`
	Score       float64   `json:"score"`
	ComputedAt  time.Time `json:"computed_at"`
}

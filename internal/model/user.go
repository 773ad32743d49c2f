package model

import "time"

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	// ActiveHouseholdID is the household the user's devices act against by
	// default. Cleared when the user leaves that household.
	ActiveHouseholdID *int64    `json:"active_household_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

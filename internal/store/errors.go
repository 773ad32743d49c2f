package store

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrAlreadyOwnsHousehold is returned by HouseholdStore.Create when the
	// identity already holds the owner role somewhere. One household per
	// owner keeps the leave and transfer rules unambiguous.
	ErrAlreadyOwnsHousehold = errors.New("user already owns a household")

	// ErrDuplicateID is returned when a device-assigned ID is already
	// present. Callers treat it as "this create already happened".
	ErrDuplicateID = errors.New("duplicate id")

	// ErrCodeExhausted is returned when repeated draws keep colliding with
	// existing codes.
	ErrCodeExhausted = errors.New("could not generate a unique code")
)

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure from the sqlite driver.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

package membership

import "errors"

// Invariant violations. Retrying without a state change would fail the same
// way, so callers surface these instead of retrying.
var (
	ErrNotFound          = errors.New("household not found")
	ErrNotOwner          = errors.New("not the household owner")
	ErrSameIdentity      = errors.New("new owner is already the current owner")
	ErrNotAMember        = errors.New("not a member of the household")
	ErrAlreadyMember     = errors.New("already a member of the household")
	ErrMustTransferFirst = errors.New("transfer ownership before leaving")
	ErrHouseholdRequired = errors.New("household id required")
)

// Race losses. Expected outcomes of concurrent use, not faults: a concurrent
// caller finished first and this caller gets told so deterministically.
var (
	ErrAlreadyProcessed = errors.New("already processed by a concurrent request")
	ErrRequestNotFound  = errors.New("join request not found")
)

// Invitation redemption failures.
var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationUsed     = errors.New("invitation already used")
	ErrInviteeMismatch    = errors.New("invitation is for someone else")
)

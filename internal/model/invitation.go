package model

import "time"

// InvitationStatus is the closed set of invitation states. PENDING moves to
// exactly one terminal status and never back.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID          int64  `json:"id"`
	HouseholdID int64  `json:"household_id"`
	InviterID   int64  `json:"inviter_id"`
	Code        string `json:"code"`
	// InviteePhone, when set, restricts acceptance to the identity holding
	// that phone number.
	InviteePhone *string          `json:"invitee_phone"`
	Status       InvitationStatus `json:"status"`
	ExpiresAt    time.Time        `json:"expires_at"`
	AcceptedBy   *int64           `json:"accepted_by"`
	AcceptedAt   *time.Time       `json:"accepted_at"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Expired reports whether the invitation's deadline has passed at now.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

package model

import (
	"encoding/json"
	"time"
)

// Audit actions recorded by membership transactions.
const (
	AuditHouseholdCreated  = "household_created"
	AuditHouseholdRenamed  = "household_renamed"
	AuditHouseholdDeleted  = "household_deleted"
	AuditInvitationCreated = "invitation_created"
	AuditInvitationRevoked = "invitation_revoked"
	AuditMemberJoined      = "member_joined"
	AuditMemberLeft        = "member_left"
	AuditOwnershipTransfer = "ownership_transferred"
)

// AuditEntry is an immutable record of a membership-affecting transaction.
// HouseholdID and HouseholdName are snapshots, not foreign keys, so entries
// survive household deletion.
type AuditEntry struct {
	ID            int64           `json:"id"`
	HouseholdID   int64           `json:"household_id"`
	HouseholdName string          `json:"household_name"`
	ActorID       int64           `json:"actor_id"`
	Action        string          `json:"action"`
	Target        string          `json:"target"`
	Detail        json.RawMessage `json:"detail,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

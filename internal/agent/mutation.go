package agent

import (
	"fmt"
	"time"
)

// Kind classifies a queued mutation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Strategy decides how a queued update that lost a race against the server
// is reconciled. It is declared per mutation at enqueue time, never inferred
// from the data.
type Strategy string

const (
	// StrategyServerWins discards the queued change.
	StrategyServerWins Strategy = "server-wins"

	// StrategyClientWins overwrites the server unconditionally. Used for
	// safety-critical fields like "I am safe", where the most recent human
	// action must never be dropped.
	StrategyClientWins Strategy = "client-wins"

	// StrategyMerge is a shallow field union with client values taking
	// precedence on overlapping keys.
	StrategyMerge Strategy = "merge"
)

// Status tracks a mutation through a sync pass.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusFailed   Status = "failed"
)

// Entities the queue can mutate. Statuses and help requests carry
// client-assigned UUIDs and support the full create/update/delete set;
// household renames and vulnerability profiles are update-only, keyed by
// household id.
const (
	EntityStatus      = "statuses"
	EntityHelpRequest = "help-requests"
	EntityHousehold   = "households"
	EntityProfile     = "profile"
)

// Mutation is one deferred write, captured while the device was offline or
// after a direct call failed with a retryable error.
type Mutation struct {
	ID         string         `json:"id"`
	Seq        uint64         `json:"seq"`
	Kind       Kind           `json:"kind"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	Strategy   Strategy       `json:"strategy"`
	Status     Status         `json:"status"`
	CapturedAt time.Time      `json:"captured_at"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
}

func (m *Mutation) validate() error {
	switch m.Kind {
	case KindCreate, KindUpdate, KindDelete:
	default:
		return fmt.Errorf("unknown kind %q", m.Kind)
	}
	switch m.Strategy {
	case StrategyServerWins, StrategyClientWins, StrategyMerge:
	default:
		return fmt.Errorf("unknown strategy %q", m.Strategy)
	}
	if m.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	switch m.Entity {
	case EntityStatus, EntityHelpRequest:
	case EntityHousehold, EntityProfile:
		if m.Kind != KindUpdate {
			return fmt.Errorf("%s only supports updates", m.Entity)
		}
	default:
		return fmt.Errorf("unknown entity %q", m.Entity)
	}
	if m.Kind != KindDelete && len(m.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}

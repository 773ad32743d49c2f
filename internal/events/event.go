package events

import "fmt"

// Event is a change notification scoped to one household. Agents use the
// stream to refresh local state and as their connectivity signal.
type Event struct {
	Type        string         `json:"type"`
	Entity      string         `json:"entity"`
	Action      string         `json:"action"`
	HouseholdID int64          `json:"household_id"`
	EntityID    string         `json:"entity_id,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// NewEvent creates an Event with the Type field derived from entity and action.
func NewEvent(entity, action string, householdID int64, entityID string) Event {
	return Event{
		Type:        fmt.Sprintf("%s_%s", entity, action),
		Entity:      entity,
		Action:      action,
		HouseholdID: householdID,
		EntityID:    entityID,
	}
}

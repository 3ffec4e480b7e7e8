package model

import (
	"fmt"
	"time"
)

// EntityType names the kind of entity an outbox entry refers to.
type EntityType string

// Entity types stored in the outbox.
const (
	EntityTransaction EntityType = "transaction"
	EntityAccount     EntityType = "account"
)

// Action is the mutation an outbox entry replays.
type Action string

// Outbox actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction converts a stored action string into an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionUpdate, ActionDelete:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown outbox action %q", s)
	}
}

// OutboxEntry is one mutation waiting for server confirmation.
// At most one entry exists per (ID, EntityType).
type OutboxEntry struct {
	Date           time.Time
	EntityType     EntityType
	Action         Action
	IdempotencyKey string
	Payload        []byte
	ID             int64
}

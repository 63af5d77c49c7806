// Package events announces allocation lifecycle changes to other systems.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	TypeAllocationCompleted   = "allocation.completed"
	TypeAllocationPublished   = "allocation.published"
	TypeAllocationUnpublished = "allocation.unpublished"
	TypeResultsDeleted        = "allocation.deleted"
)

// Event is the envelope written to the bus
type Event struct {
	Type    string          `json:"type"`
	RunID   string          `json:"run_id,omitempty"`
	Actor   string          `json:"actor,omitempty"`
	Ts      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CompletedPayload summarizes a finished allocation run
type CompletedPayload struct {
	Participants       int      `json:"participants"`
	TotalSlots         int      `json:"total_slots"`
	Assigned           int      `json:"assigned"`
	RelaxedCount       int      `json:"relaxed_count"`
	Shortfall          bool     `json:"shortfall"`
	SatisfactionScore  float64  `json:"satisfaction_score"`
	MaxDissatisfaction float64  `json:"max_participant_dissatisfaction"`
	UnassignedRoleIDs  []string `json:"unassigned_role_ids"`
}

// New builds an event, encoding payload when it is not nil
func New(eventType, runID, actor string, payload interface{}) (Event, error) {
	ev := Event{Type: eventType, RunID: runID, Actor: actor, Ts: time.Now().UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		ev.Payload = b
	}
	return ev, nil
}

// Publisher delivers events
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Package events defines the trigger lifecycle events published on the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every trigger lifecycle event.
const Topic = "triggers.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TriggerID string         `json:"trigger_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, triggerID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TriggerID: triggerID,
		Metadata:  make(map[string]any),
	}
}

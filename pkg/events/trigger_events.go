package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/triggers-frontend/pkg/models"
)

const (
	TriggerCreatedEventType          EventType = "trigger.created"
	TriggerStatusChangedEventType    EventType = "trigger.status_changed"
	TriggerWorkflowsUpdatedEventType EventType = "trigger.workflows_updated"
	TriggerDeletedEventType          EventType = "trigger.deleted"
)

// TriggerCreatedEvent is published once a trigger task was spawned.
type TriggerCreatedEvent struct {
	BaseEvent

	TriggerName string                  `json:"trigger_name"`
	TriggerType string                  `json:"trigger_type"`
	Workflows   []models.WorkflowTarget `json:"workflows"`
}

func (e TriggerCreatedEvent) GetType() EventType {
	return TriggerCreatedEventType
}

func NewTriggerCreatedEvent(triggerID, triggerName, triggerType string, workflows []models.WorkflowTarget) TriggerCreatedEvent {
	return TriggerCreatedEvent{
		BaseEvent:   NewBaseEvent(TriggerCreatedEventType, triggerID),
		TriggerName: triggerName,
		TriggerType: triggerType,
		Workflows:   workflows,
	}
}

// TriggerStatusChangedEvent mirrors a status report of a running trigger.
type TriggerStatusChangedEvent struct {
	BaseEvent

	Status  models.TriggerStatus `json:"status"`
	Message string               `json:"message,omitempty"`
}

func (e TriggerStatusChangedEvent) GetType() EventType {
	return TriggerStatusChangedEventType
}

func NewTriggerStatusChangedEvent(update models.StatusUpdate) TriggerStatusChangedEvent {
	return TriggerStatusChangedEvent{
		BaseEvent: NewBaseEvent(TriggerStatusChangedEventType, update.TriggerID),
		Status:    update.Status,
		Message:   update.Message,
	}
}

// TriggerWorkflowsUpdatedEvent is published after workflows were added to or removed from a trigger.
type TriggerWorkflowsUpdatedEvent struct {
	BaseEvent

	Added   []models.WorkflowTarget `json:"added,omitempty"`
	Removed []models.WorkflowTarget `json:"removed,omitempty"`
}

func (e TriggerWorkflowsUpdatedEvent) GetType() EventType {
	return TriggerWorkflowsUpdatedEventType
}

func NewTriggerWorkflowsUpdatedEvent(triggerID string, added, removed []models.WorkflowTarget) TriggerWorkflowsUpdatedEvent {
	return TriggerWorkflowsUpdatedEvent{
		BaseEvent: NewBaseEvent(TriggerWorkflowsUpdatedEventType, triggerID),
		Added:     added,
		Removed:   removed,
	}
}

type TriggerDeletedEvent struct {
	BaseEvent
}

func (e TriggerDeletedEvent) GetType() EventType {
	return TriggerDeletedEventType
}

func NewTriggerDeletedEvent(triggerID string) TriggerDeletedEvent {
	return TriggerDeletedEvent{BaseEvent: NewBaseEvent(TriggerDeletedEventType, triggerID)}
}

var ErrUnknownEventType = errors.New("unknown event type")

var constructors = map[EventType]func() any{
	TriggerCreatedEventType:          func() any { return &TriggerCreatedEvent{} },
	TriggerStatusChangedEventType:    func() any { return &TriggerStatusChangedEvent{} },
	TriggerWorkflowsUpdatedEventType: func() any { return &TriggerWorkflowsUpdatedEvent{} },
	TriggerDeletedEventType:          func() any { return &TriggerDeletedEvent{} },
}

// Decode unmarshals payload into a pointer to the event struct of eventType.
func Decode(eventType EventType, payload []byte) (any, error) {
	newEvent, ok := constructors[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	event := newEvent()

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", eventType, err)
	}

	return event, nil
}

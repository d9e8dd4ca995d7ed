package models

// TriggerStatus represents the lifecycle state of a trigger.
type TriggerStatus string

const (
	TriggerStatusStarting      TriggerStatus = "starting"       // Spawned, broker setup in progress
	TriggerStatusReady         TriggerStatus = "ready"          // Consuming
	TriggerStatusStoppedNormal TriggerStatus = "stopped_normal" // Stopped by command
	TriggerStatusStoppedError  TriggerStatus = "stopped_error"  // Terminated by a failure
)

// IsTerminal reports whether no further transitions can follow s.
func (s TriggerStatus) IsTerminal() bool {
	return s == TriggerStatusStoppedNormal || s == TriggerStatusStoppedError
}

// StatusUpdate is sent by a trigger to its manager on every lifecycle transition.
type StatusUpdate struct {
	TriggerID string        `json:"trigger_id"`
	Status    TriggerStatus `json:"status"`
	Message   string        `json:"message"`
}

package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/triggers-frontend/pkg/models"
)

// Trigger is the manager's handle on a running trigger.
type Trigger interface {
	// Send delivers a command and waits for its response.
	Send(ctx context.Context, cmd Command) (Response, error)
	// Close drops the command channel. A trigger that sees its channel dropped fails.
	Close()
	// Done is closed once the trigger task has returned.
	Done() <-chan struct{}
}

// CreateParams carries everything a factory needs to spawn a trigger.
type CreateParams struct {
	TriggerID   string
	TriggerName string
	Workflows   []models.WorkflowTarget
	Body        []byte
	Reporter    StatusReporter
}

// TriggerFactory validates creation requests and spawns triggers of one type.
type TriggerFactory interface {
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
	// Validate checks a raw creation request without spawning anything.
	Validate(body []byte) error
	Create(ctx context.Context, params CreateParams, logger *slog.Logger) (Trigger, error)
}

// Package web provides HTTP request and response types for the trigger API.
package web

import (
	"encoding/json"

	"github.com/dukex/triggers-frontend/pkg/models"
)

const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
)

// StatusResponse is the body of every successful mutating call.
type StatusResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	TriggerID string `json:"trigger_id,omitempty"`
}

// CreateTriggerRequest is the body of POST /create_trigger. trigger_info is left
// raw: the factory of trigger_type parses it.
type CreateTriggerRequest struct {
	TriggerID   string                  `json:"trigger_id"   validate:"omitempty,max=255"`
	TriggerName string                  `json:"trigger_name" validate:"required"`
	TriggerType string                  `json:"trigger_type" validate:"required"`
	TriggerInfo json.RawMessage         `json:"trigger_info"`
	Workflows   []models.WorkflowTarget `json:"workflows"    validate:"dive"`
}

// WorkflowsRequest is the body of POST /add_workflows and POST /remove_workflows.
type WorkflowsRequest struct {
	TriggerID string                  `json:"trigger_id" validate:"required"`
	Workflows []models.WorkflowTarget `json:"workflows"  validate:"required,min=1,dive"`
}

type DeleteTriggerRequest struct {
	TriggerID string `json:"trigger_id" validate:"required"`
}

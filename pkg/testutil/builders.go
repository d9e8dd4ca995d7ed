// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukex/triggers-frontend/pkg/models"
)

// CreateTestWorkflow creates a WorkflowTarget with a unique name that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.WorkflowTarget)) models.WorkflowTarget {
	name := "wf-" + uuid.New().String()[:8]

	workflow := models.WorkflowTarget{
		WorkflowName:  name,
		WorkflowURL:   "http://localhost:8080/" + name,
		WorkflowState: "start",
	}

	for _, override := range overrides {
		override(&workflow)
	}

	return workflow
}

func WithWorkflowName(name string) func(*models.WorkflowTarget) {
	return func(w *models.WorkflowTarget) {
		w.WorkflowName = name
	}
}

func WithWorkflowURL(url string) func(*models.WorkflowTarget) {
	return func(w *models.WorkflowTarget) {
		w.WorkflowURL = url
	}
}

func WithWorkflowState(state string) func(*models.WorkflowTarget) {
	return func(w *models.WorkflowTarget) {
		w.WorkflowState = state
	}
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

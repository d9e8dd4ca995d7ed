// Package web provides the HTTP API used to manage triggers.
package web

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/triggers-frontend/pkg/manager"
	"github.com/dukex/triggers-frontend/pkg/models"
)

// TriggerManager is the part of *manager.Manager the API drives.
type TriggerManager interface {
	Create(ctx context.Context, req manager.CreateTriggerRequest) (manager.TriggerState, error)
	Status(ctx context.Context, triggerID string) (manager.TriggerState, error)
	List() []manager.TriggerState
	AddWorkflows(ctx context.Context, triggerID string, workflows []models.WorkflowTarget) error
	RemoveWorkflows(ctx context.Context, triggerID string, workflows []models.WorkflowTarget) error
	Delete(ctx context.Context, triggerID string) error
}

type APIHandlers struct {
	manager   TriggerManager
	validator *validator.Validate
}

func NewAPIHandlers(manager TriggerManager, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		validator: validator,
	}
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	var req CreateTriggerRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	state, err := h.manager.Create(c.Context(), manager.CreateTriggerRequest{
		TriggerID:   req.TriggerID,
		TriggerName: req.TriggerName,
		TriggerType: req.TriggerType,
		Workflows:   req.Workflows,
		Body:        c.Body(),
	})
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(StatusResponse{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("Trigger %s created", state.TriggerID),
		TriggerID: state.TriggerID,
	})
}

func (h *APIHandlers) AddWorkflows(c fiber.Ctx) error {
	req, err := h.bindWorkflows(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.manager.AddWorkflows(c.Context(), req.TriggerID, req.Workflows)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(StatusResponse{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("%d workflow(s) added to trigger %s", len(req.Workflows), req.TriggerID),
		TriggerID: req.TriggerID,
	})
}

func (h *APIHandlers) RemoveWorkflows(c fiber.Ctx) error {
	req, err := h.bindWorkflows(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.manager.RemoveWorkflows(c.Context(), req.TriggerID, req.Workflows)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(StatusResponse{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("%d workflow(s) removed from trigger %s", len(req.Workflows), req.TriggerID),
		TriggerID: req.TriggerID,
	})
}

func (h *APIHandlers) bindWorkflows(c fiber.Ctx) (WorkflowsRequest, error) {
	var req WorkflowsRequest

	if err := c.Bind().JSON(&req); err != nil {
		return req, fmt.Errorf("invalid JSON format: %w", err)
	}

	if err := h.validator.Struct(req); err != nil {
		return req, err
	}

	return req, nil
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	var req DeleteTriggerRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.manager.Delete(c.Context(), req.TriggerID)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(StatusResponse{
		Status:    StatusSuccess,
		Message:   fmt.Sprintf("Trigger %s deleted", req.TriggerID),
		TriggerID: req.TriggerID,
	})
}

func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	triggers := h.manager.List()

	return c.JSON(fiber.Map{
		"triggers":    triggers,
		"total_count": len(triggers),
	})
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	state, err := h.manager.Status(c.Context(), id)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(state)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "healthy",
		"triggers": len(h.manager.List()),
	})
}

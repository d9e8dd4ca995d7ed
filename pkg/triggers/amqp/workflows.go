package amqp

import "github.com/dukex/triggers-frontend/pkg/models"

// WorkflowRegistry is the ordered list of workflows a trigger forwards to.
// It is owned by the trigger's event loop and never touched from another goroutine.
type WorkflowRegistry struct {
	workflows []models.WorkflowTarget
}

// NewWorkflowRegistry creates a registry holding initial, without duplicates.
func NewWorkflowRegistry(initial []models.WorkflowTarget) *WorkflowRegistry {
	registry := &WorkflowRegistry{workflows: make([]models.WorkflowTarget, 0, len(initial))}
	registry.Add(initial)

	return registry
}

// Add removes every existing target equal to an incoming one, then appends the
// incoming targets in their given order. Repeated incoming targets are appended once.
func (r *WorkflowRegistry) Add(targets []models.WorkflowTarget) {
	incoming := make([]models.WorkflowTarget, 0, len(targets))
	for _, target := range targets {
		if models.IndexOfWorkflow(target, incoming) < 0 {
			incoming = append(incoming, target)
		}
	}

	kept := r.workflows[:0]
	for _, existing := range r.workflows {
		if models.IndexOfWorkflow(existing, incoming) < 0 {
			kept = append(kept, existing)
		}
	}

	r.workflows = append(kept, incoming...)
}

// Remove drops the first occurrence of each target. Unknown targets are ignored.
func (r *WorkflowRegistry) Remove(targets []models.WorkflowTarget) {
	for _, target := range targets {
		idx := models.IndexOfWorkflow(target, r.workflows)
		if idx < 0 {
			continue
		}

		r.workflows = append(r.workflows[:idx], r.workflows[idx+1:]...)
	}
}

// List returns a copy of the registered workflows in registration order.
func (r *WorkflowRegistry) List() []models.WorkflowTarget {
	workflows := make([]models.WorkflowTarget, len(r.workflows))
	copy(workflows, r.workflows)

	return workflows
}

func (r *WorkflowRegistry) Len() int {
	return len(r.workflows)
}

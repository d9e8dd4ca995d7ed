// Package models defines the data shared between triggers, the manager and workflow endpoints.
package models

// WorkflowTarget identifies one downstream workflow that receives forwarded trigger messages.
// Two targets are the same target when all three fields are equal.
type WorkflowTarget struct {
	WorkflowName  string `json:"workflow_name"  yaml:"workflow_name"  validate:"required"`
	WorkflowURL   string `json:"workflow_url"   yaml:"workflow_url"   validate:"required,url"`
	WorkflowState string `json:"workflow_state" yaml:"workflow_state"`
}

// IndexOfWorkflow returns the index of the first target equal to target, or -1.
func IndexOfWorkflow(target WorkflowTarget, workflows []WorkflowTarget) int {
	for i, w := range workflows {
		if w == target {
			return i
		}
	}

	return -1
}

package protocol

import "context"

// Sender delivers one JSON document to a workflow endpoint.
// workflowState is passed along as call context for the workflow.
type Sender interface {
	Send(ctx context.Context, url string, body []byte, workflowState string) error
}

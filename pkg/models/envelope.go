package models

// OutboundEnvelope is the JSON document POSTed to a workflow for every received message.
type OutboundEnvelope struct {
	TriggerStatus string `json:"trigger_status"`
	TriggerType   string `json:"trigger_type"`
	TriggerName   string `json:"trigger_name"`
	WorkflowName  string `json:"workflow_name"`
	Source        string `json:"source"`
	Data          string `json:"data"`
}

// NewOutboundEnvelope builds the envelope a ready trigger sends to one workflow.
func NewOutboundEnvelope(triggerType, triggerName string, target WorkflowTarget, source, data string) OutboundEnvelope {
	return OutboundEnvelope{
		TriggerStatus: string(TriggerStatusReady),
		TriggerType:   triggerType,
		TriggerName:   triggerName,
		WorkflowName:  target.WorkflowName,
		Source:        source,
		Data:          data,
	}
}

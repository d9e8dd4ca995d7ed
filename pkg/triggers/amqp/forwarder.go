package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/triggers-frontend/pkg/models"
	"github.com/dukex/triggers-frontend/pkg/otelhelper"
	"github.com/dukex/triggers-frontend/pkg/protocol"
)

var (
	// ErrInvalidPayload is returned for a delivery whose body is not valid UTF-8.
	ErrInvalidPayload = errors.New("message received with invalid UTF-8 sequence")
)

// Forwarder relays one delivery to every workflow of a trigger, one workflow at a time.
type Forwarder struct {
	sender protocol.Sender
	tracer trace.Tracer
	logger *slog.Logger
}

func NewForwarder(sender protocol.Sender, tracer trace.Tracer, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		sender: sender,
		tracer: tracer,
		logger: logger,
	}
}

// Forward sends one envelope per workflow, in order, waiting for each send before the next.
// Send failures are logged and do not stop the remaining workflows.
// A payload that is not UTF-8 is dropped with ErrInvalidPayload and nothing is sent.
func (f *Forwarder) Forward(
	ctx context.Context,
	triggerID string,
	triggerName string,
	workflows []models.WorkflowTarget,
	payload []byte,
	source string,
) error {
	if !utf8.Valid(payload) {
		f.logger.WarnContext(ctx, "Dropping message",
			"trigger_id", triggerID,
			"source", source,
			"error", ErrInvalidPayload)

		return ErrInvalidPayload
	}

	data := string(payload)
	f.logger.DebugContext(ctx, "Forwarding message", "source", source, "data", data, "workflows", len(workflows))

	for _, workflow := range workflows {
		envelope := models.NewOutboundEnvelope(TriggerType, triggerName, workflow, source, data)

		body, err := json.Marshal(envelope)
		if err != nil {
			f.logger.ErrorContext(ctx, "Failed to serialize workflow message",
				"workflow_name", workflow.WorkflowName,
				"error", err)

			continue
		}

		f.send(ctx, triggerID, triggerName, workflow, body)
	}

	return nil
}

func (f *Forwarder) send(ctx context.Context, triggerID, triggerName string, workflow models.WorkflowTarget, body []byte) {
	ctx, span := otelhelper.StartSpan(ctx, f.tracer, "amqp.forward",
		attribute.String(otelhelper.TriggerIDKey, triggerID),
		attribute.String(otelhelper.TriggerNameKey, triggerName),
		attribute.String(otelhelper.TriggerTypeKey, TriggerType),
		attribute.String(otelhelper.WorkflowNameKey, workflow.WorkflowName),
		attribute.String(otelhelper.WorkflowURLKey, workflow.WorkflowURL),
	)
	defer span.End()

	f.logger.DebugContext(ctx, "Sending message",
		"workflow_name", workflow.WorkflowName,
		"workflow_url", workflow.WorkflowURL,
		"body", string(body))

	err := f.sender.Send(ctx, workflow.WorkflowURL, body, workflow.WorkflowState)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.WorkflowURLKey, workflow.WorkflowURL))
		f.logger.WarnContext(ctx, "Failed to forward message to workflow",
			"workflow_name", workflow.WorkflowName,
			"workflow_url", workflow.WorkflowURL,
			"error", err)
	}
}

// Package amqp implements a trigger that relays messages from an AMQP queue binding
// to a set of workflow endpoints.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dukex/triggers-frontend/pkg/models"
	"github.com/dukex/triggers-frontend/pkg/protocol"
)

var (
	// ErrCommandChannelClosed is returned by the loop when the manager dropped its handle.
	ErrCommandChannelClosed = errors.New("command channel closed")
	// ErrDeliveryStreamClosed is returned by the loop when the broker stopped delivering.
	ErrDeliveryStreamClosed = errors.New("delivery stream closed")
	// ErrDeliveryFailed is returned by the loop when the broker closed the channel with an error.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// StatusSnapshot is the GetStatus answer of an AMQP trigger.
type StatusSnapshot struct {
	TriggerName         string                  `json:"trigger_name"`
	TriggerStatus       string                  `json:"trigger_status"`
	TriggerType         string                  `json:"trigger_type"`
	TriggerID           string                  `json:"trigger_id"`
	StatusMsg           string                  `json:"status_msg"`
	TriggerCount        uint64                  `json:"trigger_count"`
	AssociatedWorkflows []models.WorkflowTarget `json:"associated_workflows"`
	TriggerInfo         SubscriberConfig        `json:"trigger_info"`
}

// Options are the collaborators shared by every trigger a factory spawns.
type Options struct {
	Dialer Dialer
	Sender protocol.Sender
	Tracer trace.Tracer
	Retry  RetryPolicy
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		o.Dialer = DialAMQP
	}

	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer(TriggerType)
	}

	o.Retry = o.Retry.normalize()

	return o
}

type actor struct {
	id           string
	name         string
	config       SubscriberConfig
	workflows    *WorkflowRegistry
	triggerCount uint64
	ready        bool

	requests  <-chan protocol.Request
	reporter  protocol.StatusReporter
	forwarder *Forwarder
	dial      Dialer
	retry     RetryPolicy
	logger    *slog.Logger
}

// HandleCreateRequest parses a raw creation request and spawns a trigger for it.
// Parse and validation errors are returned here and never reach the trigger.
func HandleCreateRequest(
	ctx context.Context,
	params protocol.CreateParams,
	opts Options,
	logger *slog.Logger,
) (*Handle, error) {
	config, err := ParseCreateRequest(params.Body)
	if err != nil {
		return nil, err
	}

	return Spawn(ctx, params.TriggerID, params.TriggerName, config, params.Workflows, params.Reporter, opts, logger), nil
}

// Spawn starts a trigger task and returns the handle used to control it.
// The task outlives ctx cancellation.
func Spawn(
	ctx context.Context,
	triggerID string,
	triggerName string,
	config SubscriberConfig,
	workflows []models.WorkflowTarget,
	reporter protocol.StatusReporter,
	opts Options,
	logger *slog.Logger,
) *Handle {
	opts = opts.withDefaults()
	requests := make(chan protocol.Request, protocol.CommandChannelCapacity)
	handle := newHandle(triggerID, requests)

	logger = logger.With(
		"module", "amqp_trigger",
		"trigger_id", triggerID,
		"trigger_name", triggerName,
	)

	a := &actor{
		id:        triggerID,
		name:      triggerName,
		config:    config,
		workflows: NewWorkflowRegistry(workflows),
		requests:  requests,
		reporter:  reporter,
		forwarder: NewForwarder(opts.Sender, opts.Tracer, logger),
		dial:      opts.Dialer,
		retry:     opts.Retry,
		logger:    logger,
	}

	go func() {
		defer close(handle.done)

		a.supervise(context.WithoutCancel(ctx))
	}()

	return handle
}

func (a *actor) run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "Starting AMQP trigger")

	session, err := OpenSession(ctx, a.dial, a.id, a.config, a.logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = session.Close()
	}()

	a.ready = true

	a.logger.InfoContext(ctx, "Ready to consume")
	a.reporter.ReportStatus(ctx, models.StatusUpdate{
		TriggerID: a.id,
		Status:    models.TriggerStatusReady,
	})

	return a.loop(ctx, session)
}

func (a *actor) loop(ctx context.Context, session *Session) error {
	deliveries := session.Deliveries()
	closed := session.Closed()

	for {
		select {
		case req, ok := <-a.requests:
			if !ok {
				a.logger.WarnContext(ctx, "Command channel closed by manager")

				return fmt.Errorf("trigger %s: %w", a.id, ErrCommandChannelClosed)
			}

			if a.handleCommand(ctx, req, session) {
				return nil
			}

		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				// Graceful close, the delivery stream ends next.
				closed = nil

				continue
			}

			return a.brokerClosed(ctx, amqpErr)

		case delivery, ok := <-deliveries:
			if !ok {
				// A broker-forced close also ends the stream; its error is the one to report.
				select {
				case amqpErr := <-closed:
					if amqpErr != nil {
						return a.brokerClosed(ctx, amqpErr)
					}
				default:
				}

				a.logger.WarnContext(ctx, "Delivery stream closed")

				return fmt.Errorf("trigger %s: %w", a.id, ErrDeliveryStreamClosed)
			}

			a.handleDelivery(ctx, delivery)
		}
	}
}

func (a *actor) brokerClosed(ctx context.Context, amqpErr *amqp091.Error) error {
	a.logger.WarnContext(ctx, "Broker closed the channel", "error", amqpErr)

	return fmt.Errorf("trigger %s: %w: %w", a.id, ErrDeliveryFailed, amqpErr)
}

// handleCommand answers req and reports whether the loop must end.
func (a *actor) handleCommand(ctx context.Context, req protocol.Request, session *Session) bool {
	a.logger.DebugContext(ctx, "Command received", "command", req.Command.Name())

	switch cmd := req.Command.(type) {
	case protocol.GetStatus:
		status, err := json.Marshal(a.snapshot())
		if err != nil {
			req.Respond(false, err.Error())

			return false
		}

		req.Respond(true, string(status))

	case protocol.AddWorkflows:
		a.workflows.Add(cmd.Workflows)
		req.Respond(true, protocol.ResponseOK)

	case protocol.RemoveWorkflows:
		a.workflows.Remove(cmd.Workflows)
		req.Respond(true, protocol.ResponseOK)

	case protocol.Stop:
		a.logger.InfoContext(ctx, "Stop command received")
		req.Respond(true, protocol.ResponseOK)

		err := session.Close()
		if err != nil {
			a.logger.WarnContext(ctx, "Error closing broker connection", "error", err)
		}

		a.reporter.ReportStatus(ctx, models.StatusUpdate{
			TriggerID: a.id,
			Status:    models.TriggerStatusStoppedNormal,
		})

		return true

	default:
		req.Respond(false, fmt.Sprintf("unsupported command %q", req.Command.Name()))
	}

	return false
}

func (a *actor) handleDelivery(ctx context.Context, delivery amqp091.Delivery) {
	a.triggerCount++

	a.logger.DebugContext(ctx, "Message received",
		"routing_key", delivery.RoutingKey,
		"delivery_tag", delivery.DeliveryTag,
		"trigger_count", a.triggerCount)

	var err error

	switch {
	case !utf8.Valid(delivery.Body):
		err = ErrInvalidPayload
		a.logger.WarnContext(ctx, "Dropping message",
			"routing_key", delivery.RoutingKey,
			"delivery_tag", delivery.DeliveryTag,
			"error", err)
	case a.workflows.Len() > 0:
		err = a.forwarder.Forward(ctx, a.id, a.name, a.workflows.List(), delivery.Body, delivery.RoutingKey)
	}

	if !a.config.WithAck {
		return
	}

	if errors.Is(err, ErrInvalidPayload) {
		err = delivery.Reject(false)
	} else {
		err = delivery.Ack(false)
	}

	if err != nil {
		a.logger.WarnContext(ctx, "Failed to settle delivery", "delivery_tag", delivery.DeliveryTag, "error", err)
	}
}

func (a *actor) snapshot() StatusSnapshot {
	return StatusSnapshot{
		TriggerName:         a.name,
		TriggerStatus:       string(models.TriggerStatusReady),
		TriggerType:         TriggerType,
		TriggerID:           a.id,
		StatusMsg:           "",
		TriggerCount:        a.triggerCount,
		AssociatedWorkflows: a.workflows.List(),
		TriggerInfo:         a.config,
	}
}

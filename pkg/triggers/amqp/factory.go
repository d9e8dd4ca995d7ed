package amqp

import (
	"context"
	"log/slog"

	"github.com/dukex/triggers-frontend/pkg/protocol"
)

// Factory creates AMQP triggers from raw creation requests.
type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts.withDefaults()}
}

func (f *Factory) ID() string {
	return TriggerType
}

func (f *Factory) Name() string {
	return "AMQP"
}

func (f *Factory) Description() string {
	return "Consumes messages from an AMQP exchange by routing key and forwards them to workflows"
}

func (f *Factory) Schema() map[string]any {
	return Schema()
}

func (f *Factory) Validate(body []byte) error {
	_, err := ParseCreateRequest(body)

	return err
}

func (f *Factory) Create(ctx context.Context, params protocol.CreateParams, logger *slog.Logger) (protocol.Trigger, error) {
	handle, err := HandleCreateRequest(ctx, params, f.opts, logger)
	if err != nil {
		return nil, err
	}

	return handle, nil
}

package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/triggers-frontend/pkg/channels/gochannel"
	"github.com/dukex/triggers-frontend/pkg/channels/kafka"
	"github.com/dukex/triggers-frontend/pkg/eventbus"
)

const serviceName = "triggers-frontend"

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus builds the event bus for provider: "gochannel" (in process) or "kafka".
func NewEventBus(provider string, kafkaBrokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub := gochannel.CreateChannel(watermillLogger)

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, kafka.ParseBrokers(kafkaBrokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}

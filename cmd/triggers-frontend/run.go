package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/triggers-frontend/pkg/cmd"
	"github.com/dukex/triggers-frontend/pkg/config"
	"github.com/dukex/triggers-frontend/pkg/eventbus"
	"github.com/dukex/triggers-frontend/pkg/events"
	"github.com/dukex/triggers-frontend/pkg/log"
	"github.com/dukex/triggers-frontend/pkg/manager"
	"github.com/dukex/triggers-frontend/pkg/otelhelper"
	"github.com/dukex/triggers-frontend/pkg/sender"
	"github.com/dukex/triggers-frontend/pkg/triggers/amqp"
	"github.com/dukex/triggers-frontend/pkg/web"
)

const serviceName = "triggers-frontend"

func RunFrontend(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule("triggers-frontend").With("action", "run")

	ctx, stop := signal.NotifyContext(log.NewContext(ctx, logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer, err := setupTracer(ctx, command.Bool("tracing"))
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}

	workflowSender := sender.NewHTTPSender(sender.Config{
		Timeout: command.Duration("forward-timeout"),
	}, logger)

	retry := amqp.DefaultRetryPolicy()
	retry.MaxAttempts = command.Uint("retry-max-attempts")
	retry.InitialInterval = command.Duration("retry-initial-interval")

	registry, err := cmd.NewRegistry(logger, command.String("plugins-path"), amqp.Options{
		Sender: workflowSender,
		Tracer: tracer,
		Retry:  retry,
	})
	if err != nil {
		return fmt.Errorf("failed to setup trigger registry: %w", err)
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return fmt.Errorf("failed to setup event bus: %w", err)
	}
	defer bus.Close()

	err = logTriggerEvents(ctx, bus)
	if err != nil {
		return fmt.Errorf("failed to subscribe to trigger events: %w", err)
	}

	triggers := manager.NewManager(registry, bus, logger)

	stopTriggers := runTriggers(ctx, triggers)

	err = bootstrapTriggers(ctx, triggers, command.String("bootstrap-file"))
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), command.Duration("shutdown-timeout"))
		defer cancel()

		return errors.Join(err, stopTriggers(shutdownCtx), shutdownTracer(shutdownCtx))
	}

	app := web.NewApp(triggers, logger)

	listenErr := make(chan error, 1)

	go func() {
		listenErr <- app.Listen(command.String("listen"), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	logger.InfoContext(ctx, "Triggers frontend started", "listen", command.String("listen"))

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-listenErr:
		logger.Error("API server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), command.Duration("shutdown-timeout"))
	defer cancel()

	errs := []error{err}

	errs = append(errs, app.ShutdownWithContext(shutdownCtx))
	errs = append(errs, stopTriggers(shutdownCtx))
	errs = append(errs, shutdownTracer(shutdownCtx))

	return errors.Join(errs...)
}

func setupTracer(ctx context.Context, enabled bool) (trace.Tracer, otelhelper.ShutdownFunc, error) {
	if !enabled {
		return otelhelper.NewNoopTracer(serviceName), func(context.Context) error { return nil }, nil
	}

	return otelhelper.NewTracer(ctx, serviceName)
}

// runTriggers starts the manager loop. The returned func stops every trigger
// and waits for the loop to end.
func runTriggers(ctx context.Context, triggers *manager.Manager) func(context.Context) error {
	done := make(chan error, 1)

	go func() {
		done <- triggers.Run(context.WithoutCancel(ctx))
	}()

	return func(ctx context.Context) error {
		return errors.Join(triggers.Shutdown(ctx), <-done)
	}
}

// bootstrapTriggers creates the triggers of the bootstrap file. An entry that
// fails is logged and skipped.
func bootstrapTriggers(ctx context.Context, triggers *manager.Manager, path string) error {
	if path == "" {
		return nil
	}

	logger := log.FromContext(ctx)

	file, err := config.LoadBootstrap(path)
	if err != nil {
		return err
	}

	for _, trigger := range file.Triggers {
		req, err := trigger.CreateRequest()
		if err != nil {
			return err
		}

		_, err = triggers.Create(ctx, req)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to create bootstrap trigger", "trigger_id", trigger.TriggerID, "error", err)

			continue
		}
	}

	logger.InfoContext(ctx, "Bootstrap triggers loaded", "path", path, "count", len(file.Triggers))

	return nil
}

func logTriggerEvents(ctx context.Context, bus eventbus.EventBus) error {
	handler := func(ctx context.Context, event any) error {
		log.FromContext(ctx).DebugContext(ctx, "Trigger event", "event", event)

		return nil
	}

	for _, eventType := range []events.EventType{
		events.TriggerCreatedEventType,
		events.TriggerStatusChangedEventType,
		events.TriggerWorkflowsUpdatedEventType,
		events.TriggerDeletedEventType,
	} {
		err := bus.Handle(eventType, handler)
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(ctx)
}

package amqp

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dukex/triggers-frontend/pkg/models"
)

// RetryPolicy controls how often a trigger retries broker setup before giving up.
// Only failures before the trigger reported Ready are retried.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy makes a single attempt: one failure ends the trigger.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     1,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	defaults := DefaultRetryPolicy()

	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}

	if p.InitialInterval <= 0 {
		p.InitialInterval = defaults.InitialInterval
	}

	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}

	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	return b
}

// supervise runs the trigger until it ends and converts a terminal error into
// a single StoppedError report.
func (a *actor) supervise(ctx context.Context) {
	attempt := 0

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++

		err := a.run(ctx)
		if err != nil && a.ready {
			return struct{}{}, backoff.Permanent(err)
		}

		return struct{}{}, err
	},
		backoff.WithBackOff(a.retry.backOff()),
		backoff.WithMaxTries(a.retry.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.logger.WarnContext(ctx, "Broker setup failed, retrying",
				"attempt", attempt,
				"max_attempts", a.retry.MaxAttempts,
				"retry_in", next,
				"error", err)
		}),
	)
	if err == nil {
		a.logger.InfoContext(ctx, "AMQP trigger finished without errors")

		return
	}

	a.logger.WarnContext(ctx, "AMQP trigger finished with an error", "attempts", attempt, "error", err)
	a.reporter.ReportStatus(ctx, models.StatusUpdate{
		TriggerID: a.id,
		Status:    models.TriggerStatusStoppedError,
		Message:   "Error: " + err.Error(),
	})
}

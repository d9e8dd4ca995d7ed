// Package sender delivers trigger envelopes to workflow endpoints over HTTP.
package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second

	HeaderAction     = "x-mfn-action"
	HeaderActionData = "x-mfn-action-data"
	ActionTrigger    = "trigger-event"
)

var (
	// ErrUnexpectedStatus is returned when a workflow answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected workflow response status")
	// ErrCircuitOpen is returned while the breaker of an endpoint is open.
	ErrCircuitOpen = errors.New("workflow endpoint circuit open")
)

// Config tunes the HTTP sender.
type Config struct {
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens an endpoint's breaker.
	FailureThreshold uint32
	// ResetTimeout is how long a breaker stays open before letting a probe through.
	ResetTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}

	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}

	return c
}

// HTTPSender POSTs envelopes to workflow URLs, with one circuit breaker per URL.
type HTTPSender struct {
	config Config
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewHTTPSender(config Config, logger *slog.Logger) *HTTPSender {
	config = config.withDefaults()

	return &HTTPSender{
		config: config,
		client: &http.Client{
			Transport:     nil,
			CheckRedirect: nil,
			Jar:           nil,
			Timeout:       config.Timeout,
		},
		logger:   logger.With("module", "http_sender"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Send POSTs body to url. The workflow state travels in the x-mfn-action-data header.
func (s *HTTPSender) Send(ctx context.Context, url string, body []byte, workflowState string) error {
	breaker := s.breaker(url)

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, s.post(ctx, url, body, workflowState)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, url)
	}

	return err
}

func (s *HTTPSender) post(ctx context.Context, url string, body []byte, workflowState string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAction, ActionTrigger)
	req.Header.Set(HeaderActionData, workflowState)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s answered %d", ErrUnexpectedStatus, url, resp.StatusCode)
	}

	s.logger.DebugContext(ctx, "Workflow accepted message", "url", url, "status", resp.StatusCode)

	return nil
}

func (s *HTTPSender) breaker(url string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	breaker, ok := s.breakers[url]
	if ok {
		return breaker
	}

	threshold := s.config.FailureThreshold
	breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        url,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     s.config.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.logger.Warn("Workflow circuit breaker state changed",
				"url", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	s.breakers[url] = breaker

	return breaker
}

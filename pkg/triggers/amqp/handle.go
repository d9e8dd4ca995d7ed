package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/triggers-frontend/pkg/models"
	"github.com/dukex/triggers-frontend/pkg/protocol"
)

var (
	// ErrTriggerStopped is returned when the trigger ended before answering.
	ErrTriggerStopped = errors.New("trigger stopped")
	// ErrHandleClosed is returned by Send after Close.
	ErrHandleClosed = errors.New("trigger handle closed")
)

// Handle is the command side of a running trigger. It is safe for concurrent use.
type Handle struct {
	triggerID string
	requests  chan protocol.Request
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newHandle(triggerID string, requests chan protocol.Request) *Handle {
	return &Handle{
		triggerID: triggerID,
		requests:  requests,
		done:      make(chan struct{}),
	}
}

// Send enqueues cmd and waits for the reply. Enqueueing blocks while the
// command queue is full.
func (h *Handle) Send(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	req, reply := protocol.NewRequest(cmd)

	err := h.enqueue(ctx, req)
	if err != nil {
		return protocol.Response{}, err
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-h.done:
		// The reply may have been sent right before the task ended.
		select {
		case resp := <-reply:
			return resp, nil
		default:
			return protocol.Response{}, fmt.Errorf("%s %s: %w", cmd.Name(), h.triggerID, ErrTriggerStopped)
		}
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}

func (h *Handle) enqueue(ctx context.Context, req protocol.Request) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return fmt.Errorf("%s %s: %w", req.Command.Name(), h.triggerID, ErrHandleClosed)
	}

	select {
	case h.requests <- req:
		return nil
	case <-h.done:
		return fmt.Errorf("%s %s: %w", req.Command.Name(), h.triggerID, ErrTriggerStopped)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops the command side of the trigger. A running trigger observes the
// closed queue and stops with ErrCommandChannelClosed.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true
	close(h.requests)
}

// Done is closed once the trigger task has ended.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// GetStatus asks the trigger for its status snapshot.
func (h *Handle) GetStatus(ctx context.Context) (StatusSnapshot, error) {
	resp, err := h.Send(ctx, protocol.GetStatus{})
	if err != nil {
		return StatusSnapshot{}, err
	}

	if !resp.Success {
		return StatusSnapshot{}, fmt.Errorf("get_status %s: %s", h.triggerID, resp.Message)
	}

	var snapshot StatusSnapshot

	err = json.Unmarshal([]byte(resp.Message), &snapshot)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("decoding status of %s: %w", h.triggerID, err)
	}

	return snapshot, nil
}

// AddWorkflows registers workflows with the trigger. Known workflows are kept once.
func (h *Handle) AddWorkflows(ctx context.Context, workflows []models.WorkflowTarget) error {
	return h.expectOK(ctx, protocol.AddWorkflows{Workflows: workflows})
}

// RemoveWorkflows unregisters workflows from the trigger.
func (h *Handle) RemoveWorkflows(ctx context.Context, workflows []models.WorkflowTarget) error {
	return h.expectOK(ctx, protocol.RemoveWorkflows{Workflows: workflows})
}

// Stop asks the trigger to release the broker and end.
func (h *Handle) Stop(ctx context.Context) error {
	return h.expectOK(ctx, protocol.Stop{})
}

func (h *Handle) expectOK(ctx context.Context, cmd protocol.Command) error {
	resp, err := h.Send(ctx, cmd)
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("%s %s: %s", cmd.Name(), h.triggerID, resp.Message)
	}

	return nil
}

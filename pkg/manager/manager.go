// Package manager keeps track of running triggers and routes commands to them.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/triggers-frontend/pkg/eventbus"
	"github.com/dukex/triggers-frontend/pkg/events"
	"github.com/dukex/triggers-frontend/pkg/models"
	"github.com/dukex/triggers-frontend/pkg/protocol"
	"github.com/dukex/triggers-frontend/pkg/registry"
)

const statusBuffer = 64

var (
	ErrTriggerExists     = errors.New("trigger already exists")
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrTriggerNotRunning = errors.New("trigger is not running")
	ErrCommandFailed     = errors.New("trigger command failed")
	// ErrInvalidTrigger wraps the factory's rejection of a creation request.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrUnknownTriggerType is returned when no factory handles the requested trigger type.
	ErrUnknownTriggerType = registry.ErrUnknownTriggerType
)

// CreateTriggerRequest asks the manager to spawn a trigger. Body is the raw creation
// request handed to the trigger factory.
type CreateTriggerRequest struct {
	TriggerID   string
	TriggerName string
	TriggerType string
	Workflows   []models.WorkflowTarget
	Body        []byte
}

// TriggerState is what the manager knows about one trigger.
type TriggerState struct {
	TriggerID   string               `json:"trigger_id"`
	TriggerName string               `json:"trigger_name"`
	TriggerType string               `json:"trigger_type"`
	Status      models.TriggerStatus `json:"status"`
	Message     string               `json:"message,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	// Details is the trigger's own status snapshot, present while it runs.
	Details json.RawMessage `json:"details,omitempty"`
}

type entry struct {
	state   TriggerState
	trigger protocol.Trigger
}

// statusReport is a status update tagged with the entry its trigger was spawned for.
type statusReport struct {
	source *entry
	update models.StatusUpdate
}

// entryReporter is the StatusReporter handed to one spawned trigger.
type entryReporter struct {
	manager *Manager
	source  *entry
}

func (r entryReporter) ReportStatus(ctx context.Context, update models.StatusUpdate) {
	r.manager.report(ctx, statusReport{source: r.source, update: update})
}

type Manager struct {
	id       string
	registry *registry.Registry
	bus      eventbus.EventPublisher
	logger   *slog.Logger

	mu       sync.RWMutex
	triggers map[string]*entry

	updates   chan statusReport
	closed    chan struct{}
	closeOnce sync.Once
}

func NewManager(registry *registry.Registry, bus eventbus.EventPublisher, logger *slog.Logger) *Manager {
	id := uuid.NewString()

	return &Manager{
		id:       id,
		registry: registry,
		bus:      bus,
		logger:   logger.With("module", "trigger_manager", "manager_id", id),
		triggers: make(map[string]*entry),
		updates:  make(chan statusReport, statusBuffer),
		closed:   make(chan struct{}),
	}
}

// report queues a status update for Run. It is called from trigger tasks.
func (m *Manager) report(ctx context.Context, report statusReport) {
	select {
	case m.updates <- report:
	case <-m.closed:
		m.logger.DebugContext(ctx, "Status update after shutdown",
			"trigger_id", report.update.TriggerID, "status", report.update.Status)
	}
}

// Run applies status updates until ctx is done or the manager is shut down.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Trigger manager started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			m.drain(ctx)

			return nil
		case report := <-m.updates:
			m.apply(ctx, report)
		}
	}
}

func (m *Manager) drain(ctx context.Context) {
	for {
		select {
		case report := <-m.updates:
			m.apply(ctx, report)
		default:
			return
		}
	}
}

func (m *Manager) apply(ctx context.Context, report statusReport) {
	update := report.update
	logger := m.logger.With("trigger_id", update.TriggerID, "status", update.Status)

	m.mu.Lock()

	source := report.source
	if update.Status.IsTerminal() && source.trigger != nil {
		source.trigger.Close()
		source.trigger = nil
	}

	// Updates from a deleted or replaced trigger must not touch the entry now under its ID.
	current, ok := m.triggers[update.TriggerID]
	if !ok || current != source {
		m.mu.Unlock()
		logger.DebugContext(ctx, "Stale status update ignored")

		return
	}

	source.state.Status = update.Status
	source.state.Message = update.Message
	source.state.UpdatedAt = time.Now().UTC()

	m.mu.Unlock()

	if update.Status == models.TriggerStatusStoppedError {
		logger.WarnContext(ctx, "Trigger failed", "message", update.Message)
	} else {
		logger.InfoContext(ctx, "Trigger status changed")
	}

	m.publish(ctx, update.TriggerID, events.NewTriggerStatusChangedEvent(update))
}

// Create spawns a trigger. A missing TriggerID is generated. A stopped trigger
// with the same ID is replaced.
func (m *Manager) Create(ctx context.Context, req CreateTriggerRequest) (TriggerState, error) {
	if req.TriggerID == "" {
		req.TriggerID = uuid.NewString()
	}

	req.TriggerType = strings.ToLower(req.TriggerType)

	factory, err := m.registry.Factory(req.TriggerType)
	if err != nil {
		return TriggerState{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.triggers[req.TriggerID]
	if ok && existing.trigger != nil {
		return TriggerState{}, fmt.Errorf("%w: %s", ErrTriggerExists, req.TriggerID)
	}

	e := &entry{}

	trigger, err := factory.Create(ctx, protocol.CreateParams{
		TriggerID:   req.TriggerID,
		TriggerName: req.TriggerName,
		Workflows:   req.Workflows,
		Body:        req.Body,
		Reporter:    entryReporter{manager: m, source: e},
	}, m.logger)
	if err != nil {
		return TriggerState{}, fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}

	now := time.Now().UTC()
	e.state = TriggerState{
		TriggerID:   req.TriggerID,
		TriggerName: req.TriggerName,
		TriggerType: req.TriggerType,
		Status:      models.TriggerStatusStarting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.trigger = trigger
	m.triggers[req.TriggerID] = e

	m.logger.InfoContext(ctx, "Trigger created",
		"trigger_id", req.TriggerID,
		"trigger_name", req.TriggerName,
		"trigger_type", req.TriggerType,
		"workflows", len(req.Workflows))

	m.publish(ctx, req.TriggerID, events.NewTriggerCreatedEvent(req.TriggerID, req.TriggerName, req.TriggerType, req.Workflows))

	return e.state, nil
}

// Status returns the state of one trigger, with the trigger's own snapshot while it runs.
func (m *Manager) Status(ctx context.Context, triggerID string) (TriggerState, error) {
	m.mu.RLock()

	e, ok := m.triggers[triggerID]
	if !ok {
		m.mu.RUnlock()

		return TriggerState{}, fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}

	state, trigger := e.state, e.trigger
	m.mu.RUnlock()

	if trigger == nil {
		return state, nil
	}

	resp, err := trigger.Send(ctx, protocol.GetStatus{})
	if err != nil {
		m.logger.DebugContext(ctx, "Status unavailable", "trigger_id", triggerID, "error", err)

		return state, nil
	}

	if resp.Success && json.Valid([]byte(resp.Message)) {
		state.Details = json.RawMessage(resp.Message)
	}

	return state, nil
}

// List returns the state of every known trigger, ordered by ID.
func (m *Manager) List() []TriggerState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]TriggerState, 0, len(m.triggers))
	for _, e := range m.triggers {
		states = append(states, e.state)
	}

	slices.SortFunc(states, func(a, b TriggerState) int {
		return strings.Compare(a.TriggerID, b.TriggerID)
	})

	return states
}

func (m *Manager) AddWorkflows(ctx context.Context, triggerID string, workflows []models.WorkflowTarget) error {
	err := m.command(ctx, triggerID, protocol.AddWorkflows{Workflows: workflows})
	if err != nil {
		return err
	}

	m.publish(ctx, triggerID, events.NewTriggerWorkflowsUpdatedEvent(triggerID, workflows, nil))

	return nil
}

func (m *Manager) RemoveWorkflows(ctx context.Context, triggerID string, workflows []models.WorkflowTarget) error {
	err := m.command(ctx, triggerID, protocol.RemoveWorkflows{Workflows: workflows})
	if err != nil {
		return err
	}

	m.publish(ctx, triggerID, events.NewTriggerWorkflowsUpdatedEvent(triggerID, nil, workflows))

	return nil
}

// Delete stops a running trigger, waits for it to end and forgets it.
func (m *Manager) Delete(ctx context.Context, triggerID string) error {
	m.mu.RLock()
	e, ok := m.triggers[triggerID]

	var trigger protocol.Trigger
	if ok {
		trigger = e.trigger
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}

	if trigger != nil {
		err := m.stop(ctx, trigger)
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.triggers, triggerID)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Trigger deleted", "trigger_id", triggerID)
	m.publish(ctx, triggerID, events.NewTriggerDeletedEvent(triggerID))

	return nil
}

// Shutdown stops every running trigger and ends Run.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()

	running := make([]protocol.Trigger, 0, len(m.triggers))
	for _, e := range m.triggers {
		if e.trigger != nil {
			running = append(running, e.trigger)
		}
	}
	m.mu.RUnlock()

	m.logger.InfoContext(ctx, "Stopping triggers", "count", len(running))

	var wg sync.WaitGroup

	errs := make([]error, len(running))
	for i, trigger := range running {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errs[i] = m.stop(ctx, trigger)
		}()
	}

	wg.Wait()

	m.closeOnce.Do(func() {
		close(m.closed)
	})

	return errors.Join(errs...)
}

func (m *Manager) stop(ctx context.Context, trigger protocol.Trigger) error {
	_, err := trigger.Send(ctx, protocol.Stop{})
	if err != nil && ctx.Err() != nil {
		return err
	}

	// A trigger that already ended answers with an error and is done anyway.
	select {
	case <-trigger.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) command(ctx context.Context, triggerID string, cmd protocol.Command) error {
	m.mu.RLock()
	e, ok := m.triggers[triggerID]

	var trigger protocol.Trigger
	if ok {
		trigger = e.trigger
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}

	if trigger == nil {
		return fmt.Errorf("%w: %s", ErrTriggerNotRunning, triggerID)
	}

	resp, err := trigger.Send(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Name(), triggerID, err)
	}

	if !resp.Success {
		return fmt.Errorf("%w: %s %s: %s", ErrCommandFailed, cmd.Name(), triggerID, resp.Message)
	}

	return nil
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.bus == nil {
		return
	}

	err := m.bus.Publish(ctx, key, event)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to publish trigger event", "event_type", event.GetType(), "trigger_id", key, "error", err)
	}
}

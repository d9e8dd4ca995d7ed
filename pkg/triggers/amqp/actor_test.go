package amqp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/triggers-frontend/pkg/mocks"
	"github.com/dukex/triggers-frontend/pkg/models"
	"github.com/dukex/triggers-frontend/pkg/protocol"
)

var (
	wf1 = models.WorkflowTarget{WorkflowName: "wf1", WorkflowURL: "http://localhost/x", WorkflowState: "state-1"}
	wf2 = models.WorkflowTarget{WorkflowName: "wf2", WorkflowURL: "http://localhost/y"}
)

func testConfig() SubscriberConfig {
	config := DefaultSubscriberConfig()
	config.AMQPAddr = "broker://test"
	config.RoutingKey = "rk1"

	return config
}

type harness struct {
	broker   *fakeBroker
	sender   *recordingSender
	reporter *recordingReporter
	handle   *Handle
}

func spawnTrigger(t *testing.T, config SubscriberConfig, workflows []models.WorkflowTarget, mutate func(*fakeBroker, *Options)) *harness {
	t.Helper()

	h := &harness{
		broker:   newFakeBroker(),
		sender:   newRecordingSender(),
		reporter: newRecordingReporter(),
	}

	opts := Options{Dialer: h.broker.Dial, Sender: h.sender}
	if mutate != nil {
		mutate(h.broker, &opts)
	}

	h.handle = Spawn(t.Context(), "trigger-1", "orders", config, workflows, h.reporter, opts, discardLogger())

	t.Cleanup(func() {
		h.handle.Close()
	})

	return h
}

func (h *harness) waitReady(t *testing.T) {
	t.Helper()

	update := h.reporter.next(t)
	require.Equal(t, models.TriggerStatusReady, update.Status)
	require.Equal(t, "trigger-1", update.TriggerID)
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()

	select {
	case <-h.handle.Done():
	case <-time.After(waitFor):
		require.FailNow(t, "trigger did not stop")
	}
}

func decodeEnvelope(t *testing.T, body []byte) models.OutboundEnvelope {
	t.Helper()

	var envelope models.OutboundEnvelope
	require.NoError(t, json.Unmarshal(body, &envelope))

	return envelope
}

func TestTrigger_ForwardsDeliveryToWorkflow(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), []models.WorkflowTarget{wf1}, nil)
	h.waitReady(t)

	h.broker.deliver("hello", "rk1", nil, 1)

	msg := h.sender.next(t)
	assert.Equal(t, "http://localhost/x", msg.URL)
	assert.Equal(t, "state-1", msg.WorkflowState)

	envelope := decodeEnvelope(t, msg.Body)
	assert.Equal(t, models.OutboundEnvelope{
		TriggerStatus: "ready",
		TriggerType:   "amqp",
		TriggerName:   "orders",
		WorkflowName:  "wf1",
		Source:        "rk1",
		Data:          "hello",
	}, envelope)

	status, err := h.handle.GetStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.TriggerCount)
	h.sender.requireNone(t)
}

func TestTrigger_ForwardsInRegistrationOrder(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), []models.WorkflowTarget{wf1, wf2}, nil)
	h.waitReady(t)

	h.broker.deliver("first", "rk1", nil, 1)
	h.broker.deliver("second", "rk1", nil, 2)

	var got []string
	for range 4 {
		msg := h.sender.next(t)
		envelope := decodeEnvelope(t, msg.Body)
		got = append(got, envelope.Data+"->"+envelope.WorkflowName)
	}

	assert.Equal(t, []string{"first->wf1", "first->wf2", "second->wf1", "second->wf2"}, got)
}

func TestTrigger_SetupUsesQueueNamedAfterTrigger(t *testing.T) {
	t.Parallel()

	config := testConfig()
	config.Exchange = "orders_exchange"
	config.Durable = true
	config.WithAck = true

	h := spawnTrigger(t, config, nil, nil)
	h.waitReady(t)

	h.broker.mu.Lock()
	defer h.broker.mu.Unlock()

	assert.Equal(t, []string{"broker://test"}, h.broker.addrs)
	assert.Equal(t, []queueDeclare{{Name: "trigger-1", Durable: true, AutoDelete: true, NoWait: true}}, h.broker.declares)
	assert.Equal(t, []queueBind{{Name: "trigger-1", Key: "rk1", Exchange: "orders_exchange"}}, h.broker.binds)
	assert.Equal(t, []consume{{Queue: "trigger-1", AutoAck: false}}, h.broker.consumes)
}

func TestTrigger_Workflows(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), nil, nil)
	h.waitReady(t)

	require.NoError(t, h.handle.AddWorkflows(t.Context(), []models.WorkflowTarget{wf1}))
	require.NoError(t, h.handle.AddWorkflows(t.Context(), []models.WorkflowTarget{wf1}))

	status, err := h.handle.GetStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []models.WorkflowTarget{wf1}, status.AssociatedWorkflows)

	require.NoError(t, h.handle.AddWorkflows(t.Context(), []models.WorkflowTarget{wf2}))
	require.NoError(t, h.handle.RemoveWorkflows(t.Context(), []models.WorkflowTarget{wf1, {WorkflowName: "unknown"}}))

	status, err = h.handle.GetStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []models.WorkflowTarget{wf2}, status.AssociatedWorkflows)
}

func TestTrigger_GetStatusSnapshot(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), nil, nil)
	h.waitReady(t)

	resp, err := h.handle.Send(t.Context(), protocol.GetStatus{})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Message), &raw))

	assert.Equal(t, "orders", raw["trigger_name"])
	assert.Equal(t, "ready", raw["trigger_status"])
	assert.Equal(t, "amqp", raw["trigger_type"])
	assert.Equal(t, "trigger-1", raw["trigger_id"])
	assert.Equal(t, "", raw["status_msg"])
	assert.InDelta(t, 0, raw["trigger_count"], 0)
	assert.Equal(t, []any{}, raw["associated_workflows"])

	info, ok := raw["trigger_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "broker://test", info["amqp_addr"])
	assert.Equal(t, "rk1", info["routing_key"])
	assert.Equal(t, DefaultExchange, info["exchange"])
}

func TestTrigger_MessagesWithoutWorkflowsAreCounted(t *testing.T) {
	t.Parallel()

	config := testConfig()
	config.WithAck = true
	ack := &fakeAcknowledger{}

	h := spawnTrigger(t, config, nil, nil)
	h.waitReady(t)

	h.broker.deliver("nobody listens", "rk1", ack, 7)

	require.Eventually(t, func() bool {
		acks, _ := ack.settled()

		return len(acks) == 1
	}, waitFor, 5*time.Millisecond)

	status, err := h.handle.GetStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.TriggerCount)
	h.sender.requireNone(t)
}

func TestTrigger_InvalidUTF8IsSkipped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		withAck     bool
		wantRejects []uint64
		wantAcks    []uint64
	}{
		{name: "auto ack", withAck: false},
		{name: "manual ack", withAck: true, wantRejects: []uint64{1}, wantAcks: []uint64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := testConfig()
			config.WithAck = tt.withAck
			ack := &fakeAcknowledger{}

			h := spawnTrigger(t, config, []models.WorkflowTarget{wf1}, nil)
			h.waitReady(t)

			h.broker.deliver(string([]byte{0xff, 0xfe, 0xfd}), "rk1", ack, 1)
			h.broker.deliver("valid", "rk1", ack, 2)

			msg := h.sender.next(t)
			assert.Equal(t, "valid", decodeEnvelope(t, msg.Body).Data)

			status, err := h.handle.GetStatus(t.Context())
			require.NoError(t, err)
			assert.Equal(t, uint64(2), status.TriggerCount)
			h.sender.requireNone(t)

			acks, rejects := ack.settled()
			assert.Equal(t, tt.wantAcks, acks)
			assert.Equal(t, tt.wantRejects, rejects)
		})
	}
}

func TestTrigger_InvalidUTF8WithoutWorkflowsIsRejected(t *testing.T) {
	t.Parallel()

	config := testConfig()
	config.WithAck = true
	ack := &fakeAcknowledger{}

	h := spawnTrigger(t, config, nil, nil)
	h.waitReady(t)

	h.broker.deliver(string([]byte{0xc3, 0x28}), "rk1", ack, 3)

	require.Eventually(t, func() bool {
		_, rejects := ack.settled()

		return len(rejects) == 1
	}, waitFor, 5*time.Millisecond)

	acks, rejects := ack.settled()
	assert.Empty(t, acks)
	assert.Equal(t, []uint64{3}, rejects)
	h.sender.requireNone(t)
}

func TestTrigger_SendFailureDoesNotStopTrigger(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), []models.WorkflowTarget{wf1, wf2}, nil)
	h.sender.err = errBrokerDown
	h.waitReady(t)

	h.broker.deliver("hello", "rk1", nil, 1)

	assert.Equal(t, "http://localhost/x", h.sender.next(t).URL)
	assert.Equal(t, "http://localhost/y", h.sender.next(t).URL)

	status, err := h.handle.GetStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.TriggerCount)
}

func TestTrigger_StopReportsStoppedNormalOnce(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), []models.WorkflowTarget{wf1}, nil)
	h.waitReady(t)

	require.NoError(t, h.handle.Stop(t.Context()))

	update := h.reporter.next(t)
	assert.Equal(t, models.TriggerStatusStoppedNormal, update.Status)
	assert.Empty(t, update.Message)

	h.waitDone(t)
	h.reporter.requireNone(t)
	assert.Equal(t, 1, h.broker.closedCount())

	_, err := h.handle.GetStatus(t.Context())
	require.ErrorIs(t, err, ErrTriggerStopped)
}

func TestTrigger_SetupFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*fakeBroker, *Options)
		wantInMsg string
	}{
		{
			name:      "dial",
			mutate:    func(b *fakeBroker, _ *Options) { b.dialErr = errBrokerDown },
			wantInMsg: "connect: connection refused",
		},
		{
			name:      "declare",
			mutate:    func(b *fakeBroker, _ *Options) { b.declareErr = amqp091.ErrClosed },
			wantInMsg: "queue declare",
		},
		{
			name:      "bind",
			mutate:    func(b *fakeBroker, _ *Options) { b.bindErr = amqp091.ErrClosed },
			wantInMsg: "queue bind",
		},
		{
			name:      "consume",
			mutate:    func(b *fakeBroker, _ *Options) { b.consumeErr = amqp091.ErrClosed },
			wantInMsg: "consume",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := spawnTrigger(t, testConfig(), nil, tt.mutate)

			update := h.reporter.next(t)
			assert.Equal(t, models.TriggerStatusStoppedError, update.Status)
			assert.Contains(t, update.Message, "Error: ")
			assert.Contains(t, update.Message, tt.wantInMsg)

			h.waitDone(t)
			h.reporter.requireNone(t)
			assert.Equal(t, 1, h.broker.dialCount())
		})
	}
}

func TestTrigger_SetupIsRetried(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), nil, func(b *fakeBroker, opts *Options) {
		b.failDials = 2
		opts.Retry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond}
	})

	h.waitReady(t)
	assert.Equal(t, 3, h.broker.dialCount())
}

func TestTrigger_RetriesAreBounded(t *testing.T) {
	t.Parallel()

	h := spawnTrigger(t, testConfig(), nil, func(b *fakeBroker, opts *Options) {
		b.dialErr = errBrokerDown
		opts.Retry = RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond}
	})

	update := h.reporter.next(t)
	assert.Equal(t, models.TriggerStatusStoppedError, update.Status)

	h.waitDone(t)
	h.reporter.requireNone(t)
	assert.Equal(t, 2, h.broker.dialCount())
}

func TestTrigger_FailuresAfterReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trigger func(h *harness)
		wantErr string
	}{
		{
			name:    "command channel closed",
			trigger: func(h *harness) { h.handle.Close() },
			wantErr: ErrCommandChannelClosed.Error(),
		},
		{
			name:    "delivery stream closed",
			trigger: func(h *harness) { close(h.broker.deliveries) },
			wantErr: ErrDeliveryStreamClosed.Error(),
		},
		{
			name: "channel closed by broker",
			trigger: func(h *harness) {
				h.broker.closeWithError(&amqp091.Error{Code: amqp091.ConnectionForced, Reason: "CONNECTION_FORCED"})
			},
			wantErr: ErrDeliveryFailed.Error(),
		},
		{
			name: "broker close ends the stream too",
			trigger: func(h *harness) {
				h.broker.closeWithError(&amqp091.Error{Code: amqp091.ConnectionForced, Reason: "CONNECTION_FORCED"})
				close(h.broker.deliveries)
			},
			wantErr: ErrDeliveryFailed.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := spawnTrigger(t, testConfig(), nil, func(_ *fakeBroker, opts *Options) {
				opts.Retry = RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond}
			})
			h.waitReady(t)

			tt.trigger(h)

			update := h.reporter.next(t)
			assert.Equal(t, models.TriggerStatusStoppedError, update.Status)
			assert.Contains(t, update.Message, tt.wantErr)

			h.waitDone(t)
			h.reporter.requireNone(t)
			assert.Equal(t, 1, h.broker.dialCount())
			assert.Equal(t, 1, h.broker.closedCount())
		})
	}
}

func TestTrigger_OutlivesCreationContext(t *testing.T) {
	t.Parallel()

	broker := newFakeBroker()
	reporter := newRecordingReporter()

	ctx, cancel := context.WithCancel(t.Context())
	handle := Spawn(ctx, "trigger-1", "orders", testConfig(), nil, reporter,
		Options{Dialer: broker.Dial, Sender: newRecordingSender()}, discardLogger())
	t.Cleanup(handle.Close)

	assert.Equal(t, models.TriggerStatusReady, reporter.next(t).Status)
	cancel()

	status, err := handle.GetStatus(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "trigger-1", status.TriggerID)
}

func TestTrigger_SetupFailureReportsOnlyStoppedError(t *testing.T) {
	t.Parallel()

	broker := newFakeBroker()
	broker.dialErr = errBrokerDown

	reporter := &mocks.MockStatusReporter{}
	reporter.On("ReportStatus", mock.Anything, mock.MatchedBy(func(update models.StatusUpdate) bool {
		return update.TriggerID == "trigger-1" && update.Status == models.TriggerStatusStoppedError
	})).Once()

	handle := Spawn(t.Context(), "trigger-1", "orders", testConfig(), nil, reporter,
		Options{Dialer: broker.Dial, Sender: newRecordingSender()}, discardLogger())
	t.Cleanup(handle.Close)

	select {
	case <-handle.Done():
	case <-time.After(waitFor):
		require.FailNow(t, "trigger did not stop")
	}

	reporter.AssertExpectations(t)
	reporter.AssertNumberOfCalls(t, "ReportStatus", 1)
}

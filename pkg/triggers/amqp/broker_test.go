package amqp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/dukex/triggers-frontend/pkg/models"
)

const waitFor = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type queueDeclare struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
}

type queueBind struct {
	Name     string
	Key      string
	Exchange string
	NoWait   bool
}

type consume struct {
	Queue    string
	Consumer string
	AutoAck  bool
}

// fakeBroker is an in-memory Dialer. Every dial creates a new connection whose
// channel hands out the broker's deliveries channel.
type fakeBroker struct {
	mu sync.Mutex

	dialErr    error
	failDials  int
	declareErr error
	bindErr    error
	consumeErr error

	dials       int
	addrs       []string
	declares    []queueDeclare
	binds       []queueBind
	consumes    []consume
	closedConns int

	deliveries chan amqp091.Delivery
	notify     chan *amqp091.Error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{deliveries: make(chan amqp091.Delivery, 16)}
}

func (b *fakeBroker) Dial(addr string) (Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	b.addrs = append(b.addrs, addr)

	if b.failDials > 0 {
		b.failDials--

		return nil, errBrokerDown
	}

	if b.dialErr != nil {
		return nil, b.dialErr
	}

	return &fakeConnection{broker: b}, nil
}

func (b *fakeBroker) deliver(body string, routingKey string, ack amqp091.Acknowledger, tag uint64) {
	b.deliveries <- amqp091.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		RoutingKey:   routingKey,
		Body:         []byte(body),
	}
}

func (b *fakeBroker) closeWithError(err *amqp091.Error) {
	b.mu.Lock()
	notify := b.notify
	b.mu.Unlock()

	notify <- err
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dials
}

func (b *fakeBroker) closedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closedConns
}

type fakeConnection struct {
	broker *fakeBroker
}

func (c *fakeConnection) Channel() (Channel, error) {
	return &fakeChannel{broker: c.broker}, nil
}

func (c *fakeConnection) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	c.broker.closedConns++

	return nil
}

type fakeChannel struct {
	broker *fakeBroker
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, _ amqp091.Table) (amqp091.Queue, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	c.broker.declares = append(c.broker.declares, queueDeclare{
		Name:       name,
		Durable:    durable,
		AutoDelete: autoDelete,
		Exclusive:  exclusive,
		NoWait:     noWait,
	})

	return amqp091.Queue{Name: name}, c.broker.declareErr
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, _ amqp091.Table) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	c.broker.binds = append(c.broker.binds, queueBind{Name: name, Key: key, Exchange: exchange, NoWait: noWait})

	return c.broker.bindErr
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, _, _, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	c.broker.consumes = append(c.broker.consumes, consume{Queue: queue, Consumer: consumer, AutoAck: autoAck})
	if c.broker.consumeErr != nil {
		return nil, c.broker.consumeErr
	}

	return c.broker.deliveries, nil
}

func (c *fakeChannel) NotifyClose(ch chan *amqp091.Error) chan *amqp091.Error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	c.broker.notify = ch

	return ch
}

// fakeAcknowledger records how deliveries were settled.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     []uint64
	rejects  []uint64
	requeued []bool
	err      error
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acks = append(a.acks, tag)

	return a.err
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	return a.Reject(tag, requeue)
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rejects = append(a.rejects, tag)
	a.requeued = append(a.requeued, requeue)

	return a.err
}

func (a *fakeAcknowledger) settled() ([]uint64, []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]uint64(nil), a.acks...), append([]uint64(nil), a.rejects...)
}

type sentMessage struct {
	URL           string
	Body          []byte
	WorkflowState string
}

// recordingSender captures every outbound workflow call.
type recordingSender struct {
	sent chan sentMessage
	err  error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(chan sentMessage, 64)}
}

func (s *recordingSender) Send(_ context.Context, url string, body []byte, workflowState string) error {
	s.sent <- sentMessage{URL: url, Body: body, WorkflowState: workflowState}

	return s.err
}

func (s *recordingSender) next(t *testing.T) sentMessage {
	t.Helper()

	select {
	case msg := <-s.sent:
		return msg
	case <-time.After(waitFor):
		require.FailNow(t, "timed out waiting for an outbound message")

		return sentMessage{}
	}
}

func (s *recordingSender) requireNone(t *testing.T) {
	t.Helper()

	select {
	case msg := <-s.sent:
		require.FailNow(t, "unexpected outbound message", "url=%s body=%s", msg.URL, msg.Body)
	default:
	}
}

// recordingReporter captures status updates in order.
type recordingReporter struct {
	updates chan models.StatusUpdate
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{updates: make(chan models.StatusUpdate, 16)}
}

func (r *recordingReporter) ReportStatus(_ context.Context, update models.StatusUpdate) {
	r.updates <- update
}

func (r *recordingReporter) next(t *testing.T) models.StatusUpdate {
	t.Helper()

	select {
	case update := <-r.updates:
		return update
	case <-time.After(waitFor):
		require.FailNow(t, "timed out waiting for a status update")

		return models.StatusUpdate{}
	}
}

func (r *recordingReporter) requireNone(t *testing.T) {
	t.Helper()

	select {
	case update := <-r.updates:
		require.FailNow(t, "unexpected status update", "%+v", update)
	default:
	}
}

var errBrokerDown = errors.New("connection refused")

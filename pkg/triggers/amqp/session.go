package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp091 "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrSetup wraps every failure of the connect, channel, declare, bind and consume sequence.
	ErrSetup = errors.New("amqp session setup failed")
)

// Dialer opens a broker connection.
type Dialer func(addr string) (Connection, error)

// Connection is the subset of *amqp091.Connection a trigger uses.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Channel is the subset of *amqp091.Channel a trigger uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	NotifyClose(c chan *amqp091.Error) chan *amqp091.Error
}

type amqpConnection struct {
	conn *amqp091.Connection
}

// DialAMQP connects to a real broker.
func DialAMQP(addr string) (Connection, error) {
	conn, err := amqp091.Dial(addr)
	if err != nil {
		return nil, err
	}

	return &amqpConnection{conn: conn}, nil
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

// Session is an open subscription: a connection, a channel and a running consumer.
type Session struct {
	conn       Connection
	deliveries <-chan amqp091.Delivery
	closed     <-chan *amqp091.Error
	closeOnce  sync.Once
	closeErr   error
}

// OpenSession connects to the broker, declares a queue named queue, binds it to the
// configured exchange and starts consuming. Any failed step closes what was opened.
func OpenSession(ctx context.Context, dial Dialer, queue string, config SubscriberConfig, logger *slog.Logger) (*Session, error) {
	logger.InfoContext(ctx, "Before connect", "addr", config.AMQPAddr)

	conn, err := dial(config.AMQPAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrSetup, err)
	}

	logger.InfoContext(ctx, "After connect")

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: create channel: %w", ErrSetup, err)
	}

	closed := ch.NotifyClose(make(chan *amqp091.Error, 1))

	logger.InfoContext(ctx, "Before queue declare",
		"queue", queue,
		"durable", config.Durable,
		"exclusive", config.Exclusive,
		"auto_delete", config.AutoDelete,
		"no_wait", config.NoWait)

	_, err = ch.QueueDeclare(queue, config.Durable, config.AutoDelete, config.Exclusive, config.NoWait, nil)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: queue declare %q: %w", ErrSetup, queue, err)
	}

	logger.InfoContext(ctx, "Before queue bind",
		"queue", queue,
		"exchange", config.Exchange,
		"routing_key", config.RoutingKey)

	err = ch.QueueBind(queue, config.RoutingKey, config.Exchange, false, nil)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: queue bind %q to %q: %w", ErrSetup, queue, config.Exchange, err)
	}

	autoAck := !config.WithAck
	logger.InfoContext(ctx, "Before consume", "queue", queue, "auto_ack", autoAck)

	deliveries, err := ch.Consume(queue, "", autoAck, false, false, false, nil)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("%w: consume %q: %w", ErrSetup, queue, err)
	}

	logger.InfoContext(ctx, "After consume", "queue", queue)

	return &Session{
		conn:       conn,
		deliveries: deliveries,
		closed:     closed,
	}, nil
}

// Deliveries is closed when the broker connection or channel goes away.
func (s *Session) Deliveries() <-chan amqp091.Delivery {
	return s.deliveries
}

// Closed yields the broker error that closed the channel, if any.
func (s *Session) Closed() <-chan *amqp091.Error {
	return s.closed
}

// Close closes the broker connection. Only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})

	return s.closeErr
}

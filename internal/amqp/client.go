// Package amqp publishes and consumes ledger events on RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"fxledger/internal/core"
	applog "fxledger/internal/log"
)

const (
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Handler processes one decoded event. Returning an error requeues it.
type Handler func(ctx context.Context, e *Event) error

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *applog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	closed  bool

	breaker *breaker
}

// NewClient dials the broker and declares the exchange and queue.
func NewClient(url, exchangeName, queueName string, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Default(applog.ComponentAMQP)
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(applog.ComponentAMQP),
		breaker:      newBreaker(maxFailures, openTimeout),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.closed {
		return errors.New("amqp client is closed")
	}
	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp091.Dial(c.url)
		if err != nil {
			return fmt.Errorf("dial AMQP: %w", err)
		}
		c.conn = conn
	}

	channel, err := c.conn.Channel()
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("open channel: %w", err)
	}
	c.channel = channel

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.channel = nil
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on a direct exchange
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// reconnect retries connect with exponential backoff until it succeeds or ctx
// is done.
func (c *Client) reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := c.connect()
		if err == nil {
			c.logger.InfoContext(ctx, "Reconnected to AMQP broker", applog.FieldAttempt, attempt+1)
			return nil
		}
		delay := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP reconnect failed",
			applog.FieldAttempt, attempt+1,
			applog.FieldDelay, delay.Milliseconds(),
			applog.FieldError, err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PublishTransactionCreated implements services.EventPublisher.
func (c *Client) PublishTransactionCreated(ctx context.Context, tx core.Transaction) error {
	return c.Publish(ctx, NewEvent(EventTransactionCreated, tx))
}

// PublishTransactionDeleted implements services.EventPublisher.
func (c *Client) PublishTransactionDeleted(ctx context.Context, tx core.Transaction) error {
	return c.Publish(ctx, NewEvent(EventTransactionDeleted, tx))
}

// Publish sends e as a persistent message. It fails fast while the circuit
// breaker is open.
func (c *Client) Publish(ctx context.Context, e *Event) error {
	if !c.breaker.allow() {
		return fmt.Errorf("publish %s: %w", e.Type, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, body); err != nil {
		if c.breaker.recordFailure() {
			c.logger.ErrorContext(ctx, "Circuit breaker opened",
				applog.FieldOperation, applog.OpPublish,
				applog.FieldError, err)
		}
		return err
	}
	c.breaker.recordSuccess()

	c.logger.InfoContext(ctx, "Published ledger event",
		"type", string(e.Type),
		applog.FieldTransactionID, e.ID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			// force a fresh channel on the next call
			c.channel = nil
		}
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Consume delivers events to handler until ctx is done. A closed delivery
// channel triggers a reconnect.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	for {
		msgs, err := c.startConsuming()
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to start consuming", applog.FieldError, err)
			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.InfoContext(ctx, "Started consuming ledger events", "queue", c.queueName)

		if err := c.drain(ctx, msgs, handler); err != nil {
			return err
		}

		c.logger.WarnContext(ctx, "Delivery channel closed, reconnecting")
		c.mu.Lock()
		c.channel = nil
		c.mu.Unlock()
		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) startConsuming() (<-chan amqp091.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	// one unacked message at a time keeps sheet writes ordered
	if err := c.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return msgs, nil
}

// drain returns nil when msgs closes and ctx.Err() when ctx is done.
func (c *Client) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, d, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler) {
	e, err := EventFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode ledger event",
			"message_id", d.MessageId,
			applog.FieldError, err)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, e); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle ledger event",
			"type", string(e.Type),
			applog.FieldTransactionID, e.ID,
			applog.FieldError, err)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
	c.logger.DebugContext(ctx, "Processed ledger event",
		"type", string(e.Type),
		applog.FieldTransactionID, e.ID)
}

// Ping reports whether the broker connection is usable.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("amqp connection is closed")
	}
	return nil
}

// CircuitState exposes the publisher breaker state.
func (c *Client) CircuitState() State {
	return c.breaker.State()
}

// Check is the readiness probe: the connection must be up and the publisher
// circuit must not be open.
func (c *Client) Check(context.Context) error {
	if state := c.CircuitState(); state == StateOpen {
		return fmt.Errorf("publisher circuit %s: %w", state, ErrCircuitOpen)
	}
	return c.Ping()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"channel/connection is not open",
		"unexpected eof",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

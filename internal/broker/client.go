// Package broker implements the RPC-over-AMQP correlation engine. A single
// shared connection carries every in-flight request: each call publishes a
// message tagged with a fresh correlation id and the client's private reply
// queue, then suspends until the reply dispatcher matches an inbound message
// back to it, the call times out, or the connection is torn down.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of the AMQP channel API the client uses. It exists
// so tests can substitute an in-memory transport.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Close() error
}

// Connection is the subset of the AMQP connection API the client uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer establishes a broker connection. The default dials over amqp091;
// tests inject fakes.
type Dialer func(cfg Config) (Connection, error)

// amqpConnection adapts *amqp.Connection to the Connection interface.
type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	return c.Connection.Channel()
}

// DefaultDialer opens a real AMQP connection with the configured identity.
func DefaultDialer(cfg Config) (Connection, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Properties: amqp.Table{
			"connection_name": cfg.ConnectionName,
		},
	})
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Config holds broker connection and call settings.
type Config struct {
	URL            string
	Exchange       string
	ConnectionName string
	Heartbeat      time.Duration

	// CallTimeout bounds every publish-and-await; it is also stamped on the
	// message as its per-message expiration so dead requests do not pile up
	// in worker queues.
	CallTimeout time.Duration

	// Reconnect backoff for recoverable connection loss.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Client is the broker RPC client. Safe for concurrent use; all in-flight
// calls share one connection and one private reply queue.
type Client struct {
	cfg    Config
	logger *slog.Logger
	dial   Dialer

	mu         sync.Mutex
	conn       Connection
	ch         Channel
	replyQueue string

	calls *callTable

	closed   chan struct{}
	closeOne sync.Once
}

// NewClient builds an unconnected client. Pass nil for dialer to use the
// real AMQP transport.
func NewClient(cfg Config, logger *slog.Logger, dialer Dialer) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if dialer == nil {
		dialer = DefaultDialer
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		dial:   dialer,
		calls:  newCallTable(),
		closed: make(chan struct{}),
	}
}

// Connect dials the broker, declares the exchange and the exclusive reply
// queue, and starts the reply dispatcher. A failure here is fatal for the
// process: the gateway cannot serve traffic without a working broker.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(c.cfg)
	if err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	if err := c.setup(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

// setup opens a channel, declares destinations, and starts the dispatcher
// and close watcher for one connection generation.
func (c *Client) setup(ctx context.Context, conn Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "direct", false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", c.cfg.Exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, false, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare reply queue: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume reply queue: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.replyQueue = queue.Name
	c.mu.Unlock()

	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go c.dispatch(deliveries)
	go c.watch(ctx, notify)

	c.logger.Info("broker connected",
		"exchange", c.cfg.Exchange,
		"reply_queue", queue.Name)
	return nil
}

// dispatch routes inbound replies to their pending calls. Correlation is by
// identifier, never by order: out-of-order worker completion is expected.
func (c *Client) dispatch(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		call, ok := c.calls.remove(d.CorrelationId)
		if !ok {
			// Late reply after timeout, or a foreign message. Drop it.
			c.logger.Warn("dropping unmatched reply", "correlation_id", d.CorrelationId)
			_ = d.Ack(false)
			continue
		}
		_ = d.Ack(false)
		call.resolve(d.Body, nil)
		c.logger.Info("received response", "correlation_id", d.CorrelationId)
	}
}

// watch handles connection loss. Outstanding calls are failed, not replayed,
// and the client keeps redialing with exponential backoff until it succeeds
// or is closed.
func (c *Client) watch(ctx context.Context, notify chan *amqp.Error) {
	amqpErr, ok := <-notify
	if !ok || amqpErr == nil {
		// Graceful shutdown path; Close already failed the outstanding calls.
		return
	}
	c.logger.Error("broker connection lost", "error", amqpErr)
	c.failOutstanding(ErrConnectionLost)

	backoff := c.cfg.ReconnectInitial
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := c.dial(c.cfg)
		if err == nil {
			if err = c.setup(ctx, conn); err == nil {
				c.logger.Info("broker reconnected")
				return
			}
			_ = conn.Close()
		}
		c.logger.Warn("broker reconnect failed", "error", err, "retry_in", backoff)
		if backoff *= 2; backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// Call publishes the body under the routing key and suspends until the
// correlated reply arrives, the timeout elapses, the context is cancelled,
// or the connection is torn down. A zero timeout uses the configured default.
func (c *Client) Call(ctx context.Context, body []byte, routingKey string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.cfg.CallTimeout
	}

	c.mu.Lock()
	ch := c.ch
	replyQueue := c.replyQueue
	c.mu.Unlock()
	if ch == nil {
		return nil, ErrNotConnected
	}

	correlationID := uuid.NewString()
	call := newPendingCall(correlationID)
	c.calls.add(call)

	msg := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       replyQueue,
		Expiration:    strconv.FormatInt(timeout.Milliseconds(), 10),
		Body:          body,
	}
	if err := c.publishWithRetry(ctx, ch, routingKey, msg); err != nil {
		c.calls.remove(correlationID)
		return nil, fmt.Errorf("publish request: %w", err)
	}
	c.logger.Info("sent request",
		"correlation_id", correlationID,
		"routing_key", routingKey)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-call.done:
		return res.body, res.err
	case <-timer.C:
		// Release the entry so the table cannot grow under a dead backend.
		// The in-flight message is not retracted; a late reply is dropped by
		// the dispatcher.
		if _, removed := c.calls.remove(correlationID); !removed {
			// The dispatcher won the race; its result is already buffered.
			res := <-call.done
			return res.body, res.err
		}
		call.resolve(nil, ErrCallTimeout)
		return nil, ErrCallTimeout
	case <-ctx.Done():
		// Caller went away before a reply or timeout. Clean up reactively.
		if _, removed := c.calls.remove(correlationID); !removed {
			res := <-call.done
			return res.body, res.err
		}
		call.resolve(nil, ctx.Err())
		return nil, ctx.Err()
	}
}

// publishWithRetry publishes the message, reopening the channel once on a
// transport error before giving up. Bounded on purpose: a second failure
// surfaces to the caller instead of stalling it behind an endless retry loop.
func (c *Client) publishWithRetry(ctx context.Context, ch Channel, routingKey string, msg amqp.Publishing) error {
	err := ch.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	c.logger.Warn("publish failed, reopening channel", "error", err)

	fresh, reopenErr := c.reopenChannel()
	if reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return fresh.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, msg)
}

// reopenChannel replaces the shared channel after a publish failure.
func (c *Client) reopenChannel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("reopen channel: %w", err)
	}
	c.ch = ch
	return ch, nil
}

// Pending returns the number of outstanding calls in the correlation table.
func (c *Client) Pending() int { return c.calls.size() }

// failOutstanding resolves every outstanding call with err and empties the
// table.
func (c *Client) failOutstanding(err error) {
	for _, call := range c.calls.drain() {
		call.resolve(nil, err)
	}
}

// Close deletes the private reply queue, closes the connection, and fails
// any calls still outstanding with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOne.Do(func() {
		close(c.closed)
		c.failOutstanding(ErrClosed)

		c.mu.Lock()
		ch, conn, queue := c.ch, c.conn, c.replyQueue
		c.ch, c.conn, c.replyQueue = nil, nil, ""
		c.mu.Unlock()

		if ch != nil && queue != "" {
			if _, delErr := ch.QueueDelete(queue, false, false, false); delErr != nil {
				c.logger.Warn("delete reply queue", "error", delErr)
			}
		}
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}

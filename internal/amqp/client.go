package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures        = 5
	openTimeout        = 30 * time.Second
	maxBackoff         = 30 * time.Second
	maxConnectAttempts = 3
	publishTimeout     = 5 * time.Second
	dialTimeout        = 5 * time.Second
	heartbeat          = 10 * time.Second
)

var (
	ErrCircuitOpen  = errors.New("circuit breaker is open")
	errReconnecting = errors.New("AMQP reconnect already in progress")
)

// Client publishes entry events to a durable direct exchange. A lost
// connection is re-dialled lazily on the next publish.
type Client struct {
	url          string
	exchangeName string
	routingKey   string

	// mu guards conn and channel and is never held across network I/O.
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	// dialing admits a single reconnect at a time.
	dialing sync.Mutex

	failureCount int64
	state        int32
	lastFailure  time.Time
}

// NewClient dials url, retrying with exponential backoff, and declares the exchange.
func NewClient(ctx context.Context, url, exchangeName, routingKey string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
	}

	var lastErr error
	for attempt := 0; attempt < maxConnectAttempts; attempt++ {
		if attempt > 0 {
			wait := exponentialBackoff(attempt - 1)
			slog.WarnContext(ctx, "Retrying AMQP connection", "attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		conn, channel, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			c.conn, c.channel = conn, channel
			c.mu.Unlock()
			return c, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("connect AMQP after %d attempts: %w", maxConnectAttempts, lastErr)
}

// dial opens a connection and channel and declares the exchange. The TCP
// connect and the AMQP handshake are bounded by dialTimeout or the ctx
// deadline, whichever is sooner.
func (c *Client) dial(ctx context.Context) (*amqp091.Connection, *amqp091.Channel, error) {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil, fmt.Errorf("dial AMQP: %w", context.DeadlineExceeded)
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := amqp091.DialConfig(c.url, amqp091.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp091.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, channel, nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel
	}
	return nil
}

// ensureChannel returns the open channel, reconnecting when it is gone.
// Callers that find a reconnect already running fail fast instead of queueing.
func (c *Client) ensureChannel(ctx context.Context) (*amqp091.Channel, error) {
	if ch := c.currentChannel(); ch != nil {
		return ch, nil
	}

	if !c.dialing.TryLock() {
		return nil, errReconnecting
	}
	defer c.dialing.Unlock()

	// Another caller may have finished reconnecting in the meantime.
	if ch := c.currentChannel(); ch != nil {
		return ch, nil
	}
	closeQuietly(c.detach())

	conn, channel, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()

	slog.InfoContext(ctx, "Reconnected to AMQP", "exchange", c.exchangeName)
	return channel, nil
}

// PublishEntryEvent publishes msg as a persistent JSON message. Reconnecting
// and publishing together take at most publishTimeout.
func (c *Client) PublishEntryEvent(ctx context.Context, msg *EntryEventMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s event for %s: %w", msg.Type, msg.ID, ErrCircuitOpen)
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	channel, err := c.ensureChannel(ctx)
	if err != nil {
		if !errors.Is(err, errReconnecting) {
			c.recordFailure()
		}
		return err
	}

	err = channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    msg.Timestamp,
			Type:         string(msg.Type),
			MessageId:    msg.ID,
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			closeQuietly(c.detach())
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published entry event",
		"type", msg.Type,
		"id", msg.ID,
		"exchange", c.exchangeName,
		"routing_key", c.routingKey)

	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
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
	for _, s := range []string{"connection", "eof", "broken pipe", "closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// detach clears the current connection and channel and hands them back
// for closing outside the lock.
func (c *Client) detach() (*amqp091.Connection, *amqp091.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, channel := c.conn, c.channel
	c.conn, c.channel = nil, nil
	return conn, channel
}

func closeQuietly(conn *amqp091.Connection, channel *amqp091.Channel) {
	if channel != nil {
		channel.Close()
	}
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) Close() error {
	conn, channel := c.detach()
	if channel != nil {
		channel.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

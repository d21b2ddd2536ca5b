package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Client wraps one AMQP connection with a direct exchange and a durable
// queue for usage-sync and expiry-reminder messages.
type Client struct {
	url          string
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	if err := c.setup(); err != nil {
		c.Close()
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

	// Routing key matches the queue name on a direct exchange.
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// reconnect re-establishes the connection with exponential backoff. Gives
// up when ctx is cancelled.
func (c *Client) reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}

		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}
		slog.InfoContext(ctx, "AMQP reconnected", "attempt", attempt+1)
		return nil
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	const cap = 30 * time.Second
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return cap
	}
	d := time.Second << uint(attempt)
	if d > cap || d <= 0 {
		return cap
	}
	return d
}

// isConnectionError reports whether an error looks like a broken transport
// rather than a protocol or application failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"channel/connection is not open",
		"broken pipe",
		"EOF",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// PublishUsageSync publishes a usage sync message for one history row.
func (c *Client) PublishUsageSync(ctx context.Context, historyID int64, operation string) error {
	body, err := NewUsageSyncMessage(historyID, operation).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published usage sync message",
		"history_id", historyID,
		"operation", operation,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishExpiryReminder publishes an expiring-credit reminder.
func (c *Client) PublishExpiryReminder(ctx context.Context, msg *ExpiryReminderMessage) error {
	msg.Timestamp = time.Now()
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}
	if err := c.publish(ctx, body); err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}

	slog.InfoContext(ctx, "Published expiry reminder",
		"card_id", msg.CardID,
		"credit_id", msg.CreditID,
		"period", msg.PeriodLabel,
		"remaining_cents", msg.RemainingCents)
	return nil
}

// ConsumeUsageSync consumes usage sync messages until ctx is cancelled.
// Handler errors nack with requeue; malformed payloads are dropped. A
// broken transport triggers reconnection with backoff.
func (c *Client) ConsumeUsageSync(ctx context.Context, handler func(*UsageSyncMessage) error) error {
	for {
		err := c.consumeLoop(ctx, handler)
		switch {
		case err == nil || ctx.Err() != nil:
			return ctx.Err()
		case isConnectionError(err):
			slog.WarnContext(ctx, "AMQP consume interrupted, reconnecting", "error", err)
			if rerr := c.reconnect(ctx); rerr != nil {
				return rerr
			}
		default:
			return err
		}
	}
}

func (c *Client) consumeLoop(ctx context.Context, handler func(*UsageSyncMessage) error) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming usage sync messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return nil
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: %w", amqp091.ErrClosed)
			}

			msg, err := UsageSyncMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject, don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"history_id", msg.HistoryID,
					"operation", msg.Operation)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Package messaging publishes and consumes selection change events over AMQP.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"bmidash/internal/config"
	apierrors "bmidash/internal/errors"
	"bmidash/internal/infrastructure"
	"bmidash/pkg/contracts/events"
)

const publishTimeout = 5 * time.Second

// ErrConsumerClosed is returned when the broker closes the delivery channel
var ErrConsumerClosed = errors.New("message channel closed")

// Channel is the subset of *amqp091.Channel the client uses
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

// Client publishes to a direct exchange bound to one durable queue
type Client struct {
	conn       *amqp091.Connection
	channel    Channel
	exchange   string
	queue      string
	routingKey string
	logger     *slog.Logger
}

// Dial connects to the broker described by cfg and declares the topology
func Dial(cfg config.MessagingConfig, logger *slog.Logger) (*Client, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, apierrors.NewMessagingError("dial AMQP", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, apierrors.NewMessagingError("open channel", err)
	}

	client, err := NewClient(ch, cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

// NewClient wraps an open channel and declares the exchange and queue
func NewClient(ch Channel, cfg config.MessagingConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	routingKey := cfg.RoutingKey
	if routingKey == "" {
		routingKey = cfg.Queue
	}

	c := &Client{
		channel:    ch,
		exchange:   cfg.Exchange,
		queue:      cfg.Queue,
		routingKey: routingKey,
		logger:     logger.With(slog.String("component", "amqp")),
	}
	if err := c.setup(); err != nil {
		c.Close()
		return nil, apierrors.NewMessagingError("setup exchange and queue", err)
	}
	return c, nil
}

func (c *Client) setup() error {
	if err := c.channel.ExchangeDeclare(c.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.channel.QueueBind(c.queue, c.routingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishSelectionChanged sends evt as a persistent JSON message
func (c *Client) PublishSelectionChanged(ctx context.Context, evt events.SelectionChanged) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(ctx, c.exchange, c.routingKey, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		Timestamp:     evt.OccurredAt,
		MessageId:     evt.ID,
		CorrelationId: evt.TraceID,
		Type:          "selection.changed",
		Body:          body,
	})
	if err != nil {
		return apierrors.NewMessagingError("publish message", err).
			WithContext("exchange", c.exchange)
	}

	c.logger.InfoContext(ctx, "published selection change",
		slog.String("event_id", evt.ID),
		slog.String("sex", string(evt.Current.Sex)),
		slog.String("exchange", c.exchange))
	return nil
}

// ConsumeSelectionChanged feeds each event to handler until ctx ends.
// Undecodable messages are dropped; handler failures are requeued.
func (c *Client) ConsumeSelectionChanged(ctx context.Context, handler func(context.Context, events.SelectionChanged) error) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "consuming selection changes", slog.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "stopping message consumption", slog.String("reason", ctx.Err().Error()))
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrConsumerClosed
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, events.SelectionChanged) error) {
	var evt events.SelectionChanged
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode message",
			slog.String("message_id", d.MessageId),
			slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	msgCtx := ctx
	if evt.TraceID != "" {
		msgCtx = infrastructure.WithTraceID(ctx, evt.TraceID)
	}
	if err := handler(msgCtx, evt); err != nil {
		c.logger.ErrorContext(msgCtx, "failed to handle message",
			slog.String("event_id", evt.ID),
			slog.String("error", err.Error()))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close closes the channel and connection
func (c *Client) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

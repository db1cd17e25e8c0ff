// Package consumer runs the broker consumption loop: receive a daemon
// plugin message, translate it, publish the resulting domain event, then
// acknowledge. Acknowledgment is the durability boundary; every delivery
// resolves to exactly one ack or nack before the next is processed.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"lnbridge/internal/events"
	"lnbridge/internal/platform/metrics"
)

// Delivery outcomes reported to metrics.
const (
	outcomeAcked     = "acked"
	outcomeIgnored   = "ignored"
	outcomeNacked    = "nacked"
	outcomeDuplicate = "duplicate"
)

// Translator decodes one delivery into a domain event, nil when the
// routing key is not consumed here.
type Translator interface {
	Translate(routingKey string, payload []byte, deliveredAt time.Time) (events.Event, error)
}

// Channel is the subset of the AMQP channel the loop uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Consumer is the receive-translate-publish-ack loop.
type Consumer struct {
	channel    Channel
	translator Translator
	bus        events.Bus
	processed  ProcessedStore
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Consumer.
type Option func(*Consumer)

// WithLogger sets a logger for per-message failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// WithProcessedStore enables dedupe of redelivered messages by event
// identity.
func WithProcessedStore(store ProcessedStore) Option {
	return func(c *Consumer) {
		c.processed = store
	}
}

// New constructs a Consumer.
func New(channel Channel, translator Translator, bus events.Bus, opts ...Option) (*Consumer, error) {
	if channel == nil {
		return nil, fmt.Errorf("amqp channel is required")
	}
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	c := &Consumer{channel: channel, translator: translator, bus: bus}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run consumes the named queue until the subscription is lost or ctx is
// cancelled. Prefetch is one, so deliveries are processed strictly one at
// a time and a message is only outstanding while it is being handled.
func (c *Consumer) Run(ctx context.Context, queue string) error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := c.channel.Consume(queue, "lnbridge", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				// Subscription gone; only this ends the loop.
				if c.logger != nil {
					c.logger.Info("delivery channel closed, stopping consumer", "queue", queue)
				}
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

// handle resolves one delivery to an ack or nack. A bad message never
// propagates out of here: any failure, panics included, becomes a nack
// and the loop moves on.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.reject(d, fmt.Errorf("panic: %v", r))
		}
	}()

	event, err := c.translator.Translate(d.RoutingKey, d.Body, d.Timestamp)
	if err != nil {
		c.reject(d, err)
		return
	}
	if event == nil {
		// Validly ignored routing key.
		_ = d.Ack(false)
		c.observe(outcomeIgnored)
		return
	}

	if c.processed != nil {
		seen, err := c.processed.HasProcessed(ctx, event.Name()+":"+event.Key())
		if err != nil {
			// Dedupe is best effort; treat an unreachable store as unseen.
			if c.logger != nil {
				c.logger.Warn("processed store lookup failed", "key", event.Key(), "error", err)
			}
		} else if seen {
			_ = d.Ack(false)
			c.observe(outcomeDuplicate)
			return
		}
	}

	if err := c.bus.Publish(ctx, event); err != nil {
		c.reject(d, err)
		return
	}

	if c.processed != nil {
		if err := c.processed.MarkProcessed(ctx, event.Name()+":"+event.Key()); err != nil && c.logger != nil {
			c.logger.Warn("processed store mark failed", "key", event.Key(), "error", err)
		}
	}

	_ = d.Ack(false)
	c.observe(outcomeAcked)
	if c.metrics != nil {
		c.metrics.ObservePublish(event.Name())
	}
}

// reject logs the failure with an opaque trace reference and requeues the
// delivery.
func (c *Consumer) reject(d amqp.Delivery, err error) {
	if c.logger != nil {
		c.logger.Error("delivery failed, requeueing",
			"routing_key", d.RoutingKey,
			"trace", uuid.NewString(),
			"error", err,
		)
	}
	_ = d.Nack(false, true)
	c.observe(outcomeNacked)
}

func (c *Consumer) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveDelivery(outcome)
	}
}

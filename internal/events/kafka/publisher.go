// Package kafka publishes normalized domain events to the platform's
// Kafka event bus for consumers outside this process.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"lnbridge/internal/events"
)

// envelope is the wire shape of a published event.
type envelope struct {
	EventID    string       `json:"event_id"`
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Payload    events.Event `json:"payload"`
}

// Publisher implements events.Bus on top of Kafka. Writes are synchronous:
// the consumption loop must not ack a delivery before its event is
// durably on the bus.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for publish failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects a producer to the given brokers.
func New(brokers []string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &Publisher{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish writes the event to the topic named after the event, keyed by
// the event's identity so per-invoice ordering is preserved.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(envelope{
		EventID:    uuid.NewString(),
		Type:       event.Name(),
		OccurredAt: time.Now().UTC(),
		Payload:    event,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Name(), err)
	}

	record := &kgo.Record{
		Topic: event.Name(),
		Key:   []byte(event.Key()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if p.logger != nil {
			p.logger.Error("event publish failed",
				"event", event.Name(),
				"key", event.Key(),
				"error", err,
			)
		}
		return fmt.Errorf("publish %s event: %w", event.Name(), err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}

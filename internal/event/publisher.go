package event

import (
	"context"
	"fmt"

	"github.com/Klasique-art/cafa-tickets-backend/pkg/telemetry"
)

// Publisher sends events to the message bus
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
	Close() error
}

// Producer is the subset of the Kafka producer the publisher needs
type Producer interface {
	ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error
}

// KafkaPublisher implements Publisher using Kafka
type KafkaPublisher struct {
	producer    Producer
	serviceName string
	closeFn     func()
}

// NewKafkaPublisher creates a publisher on top of producer. closeFn may be nil.
func NewKafkaPublisher(producer Producer, serviceName string, closeFn func()) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if serviceName == "" {
		serviceName = "cafa-tickets"
	}
	return &KafkaPublisher{producer: producer, serviceName: serviceName, closeFn: closeFn}, nil
}

// Publish produces evt to its topic, keyed by aggregate id
func (p *KafkaPublisher) Publish(ctx context.Context, evt *Event) error {
	headers := map[string]string{
		"event_type":   string(evt.Type),
		"event_id":     evt.ID,
		"source":       p.serviceName,
		"content_type": "application/json",
	}
	telemetry.InjectMap(ctx, headers)

	if err := p.producer.ProduceJSON(ctx, evt.Type.Topic(), evt.Key(), evt, headers); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", evt.Type, err)
	}
	return nil
}

// Close closes the underlying producer
func (p *KafkaPublisher) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

// NoOpPublisher drops events, used when Kafka is disabled
type NoOpPublisher struct{}

// Publish does nothing
func (NoOpPublisher) Publish(ctx context.Context, evt *Event) error { return nil }

// Close does nothing
func (NoOpPublisher) Close() error { return nil }

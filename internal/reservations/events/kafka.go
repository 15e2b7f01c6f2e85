package events

import (
	"context"
	"fmt"

	"parkline/pkg/clock"
	"parkline/pkg/kafka"
)

type KafkaPublisher struct {
	producer *kafka.Producer
	source   string
	clock    clock.Clock
}

func NewKafkaPublisher(producer *kafka.Producer, source string, clk clock.Clock) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source, clock: clk}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, aggregateType, aggregateID string, version int64, payload any) (string, error) {
	msg, err := kafka.NewMessage().
		WithEventType(eventType).
		WithAggregate(aggregateType, aggregateID, version).
		WithSource(p.source).
		WithTimestamp(p.clock.Now()).
		WithValue(payload).
		Build()
	if err != nil {
		return "", fmt.Errorf("build %s event: %w", eventType, err)
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("publish %s event for %s: %w", eventType, aggregateID, err)
	}
	return msg.EventID(), nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// DecodeMessage rebuilds an Event from a bus message.
func DecodeMessage(msg kafka.Message) (Event, error) {
	version, ok := msg.AggregateVersion()
	if !ok || msg.AggregateID() == "" || msg.EventType() == "" {
		return Event{}, kafka.NewPermanentError("event headers incomplete", kafka.ErrInvalidMessage)
	}
	aggregateType, _ := msg.Header(kafka.HeaderAggregateType)
	return Event{
		ID:            msg.EventID(),
		Type:          msg.EventType(),
		AggregateType: aggregateType,
		AggregateID:   msg.AggregateID(),
		Version:       version,
		OccurredAt:    msg.Timestamp,
		Payload:       msg.Value,
	}, nil
}

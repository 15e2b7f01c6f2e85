package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"parkline/internal/reservations/events"
	"parkline/pkg/config"
	"parkline/pkg/kafka"
	kafka_config "parkline/pkg/kafka/config"
	kafkamw "parkline/pkg/kafka/middleware"
	"parkline/pkg/logger"
)

const ServiceName = "reservation-events"

func main() {
	cfg := config.Load(ServiceName)
	log := cfg.Log.Component("events-consumer")

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(log)

	dedup := events.NewDeduplicator(events.DefaultDedupWindow)
	consumer, err := kafka.NewConsumer(
		kafkaCfg,
		cfg.Log,
		kafkaCfg.EventsTopic,
		kafkaCfg.ConsumerGroup,
		kafkaCfg.EventsDLQTopic,
		dedup.Handler(outcomeLogger(log)),
	)
	if err != nil {
		log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(kafkamw.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafkamw.MetricsConsumerMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Consuming reservation events", "topic", kafkaCfg.EventsTopic, "group", kafkaCfg.ConsumerGroup)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Consumer stopped", "error", err)
	}

	if err := consumer.Close(); err != nil {
		log.Warn("Failed to close Kafka consumer", "error", err)
	}
	log.Info("Consumer stopped gracefully")
}

func outcomeLogger(log *logger.Logger) func(ctx context.Context, ev events.Event) error {
	return func(ctx context.Context, ev events.Event) error {
		log.Info("event received",
			"event_id", ev.ID,
			"event_type", ev.Type,
			"aggregate_type", ev.AggregateType,
			"aggregate_id", ev.AggregateID,
			"version", ev.Version,
			"occurred_at", ev.OccurredAt,
		)
		return nil
	}
}

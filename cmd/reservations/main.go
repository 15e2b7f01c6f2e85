package main

import (
	"context"

	bookinghandler "parkline/internal/bookings/handler"
	bookingrepo "parkline/internal/bookings/repository"
	bookingservice "parkline/internal/bookings/service"
	bookingvalidator "parkline/internal/bookings/validator"
	"parkline/internal/reservations/allocator"
	"parkline/internal/reservations/events"
	"parkline/internal/reservations/handler"
	"parkline/internal/reservations/lock"
	"parkline/internal/reservations/queue"
	"parkline/internal/reservations/repository"
	"parkline/internal/reservations/service"
	"parkline/internal/reservations/status"
	"parkline/internal/reservations/validator"
	unithandler "parkline/internal/units/handler"
	unitrepo "parkline/internal/units/repository"
	unitservice "parkline/internal/units/service"
	unitvalidator "parkline/internal/units/validator"
	"parkline/pkg/app"
	"parkline/pkg/clock"
	"parkline/pkg/config"
	"parkline/pkg/kafka"
	kafka_config "parkline/pkg/kafka/config"
	kafkamw "parkline/pkg/kafka/middleware"
)

const ServiceName = "reservations"

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Reservations service")

	connectClients(cfg)

	serverApp := app.NewApplication(cfg)
	clk := clock.Real{}

	locker := newLocker(cfg)
	statuses := newStatusStore(cfg)
	publisher := newPublisher(cfg, serverApp, clk)

	units := unitrepo.NewPostgresUnitRepository(cfg.Client.Postgres, cfg.RequestTimeout)
	bookings := bookingrepo.NewPostgresBookingRepository(cfg.Client.Postgres, cfg.RequestTimeout)
	ledger := repository.NewPostgresLedger(cfg.Client.Postgres, units, bookings)

	alloc := allocator.New(locker, ledger, clk, cfg.Log, allocator.Config{
		LockTimeout: cfg.LockAcquireTimeout,
		LockTTL:     cfg.LockTTL,
		BatchSize:   cfg.CandidateBatchSize,
	})
	admission := queue.New(statuses, queue.WithClock(clk), queue.WithStatusGrace(cfg.StatusGrace))

	reservationService := service.NewReservationService(service.Dependencies{
		Queue:     admission,
		Statuses:  statuses,
		Allocator: alloc,
		Validator: validator.NewReservationValidator(cfg.Log, clk, cfg.MaxBookingDuration),
		Publisher: publisher,
		Clock:     clk,
		Log:       cfg.Log,
	}, service.Settings{
		Workers:          cfg.WorkerCount,
		FastPathPriority: cfg.FastPathPriority,
		LockRetryBudget:  cfg.LockRetryBudget,
		LockRetryBackoff: cfg.LockRetryBackoff,
		DefaultMaxWait:   cfg.DefaultMaxWait,
		ResultTTL:        cfg.ResultTTL,
		IdlePollInterval: cfg.IdlePollInterval,
	})

	unitService := unitservice.NewUnitService(units, unitvalidator.NewUnitValidator(cfg.Log), cfg.Log)
	bookingService := bookingservice.NewBookingService(
		bookings,
		units,
		bookingvalidator.NewBookingValidator(cfg.Log),
		publisher,
		clk,
		cfg.Log,
	)
	sweeper := bookingservice.NewNoShowSweeper(bookingService, cfg.NoShowSweepInterval, clk, cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	reservationService.Start(ctx)
	sweeper.Start(ctx)

	serverApp.OnShutdown(func(context.Context) {
		cancel()
		sweeper.Stop()
		reservationService.Stop()
	})

	checks := map[string]app.Check{
		"postgres": cfg.Client.Postgres.Ping,
		"lock":     locker.(pinger).Ping,
		"status":   statuses.(pinger).Ping,
	}
	serverApp.SetApp(checks,
		handler.NewReservationHandler(reservationService, cfg.Log),
		unithandler.NewUnitHandler(unitService, cfg.Log),
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
	)
	serverApp.Run()
}

func connectClients(cfg *config.Config) {
	cfg.SetPostgres()
	if cfg.LockBackend == config.BackendRedis || cfg.StatusBackend == config.BackendRedis {
		cfg.SetRedis()
	}
	if cfg.LockBackend == config.BackendMongo {
		cfg.SetMongo()
	}
}

func newLocker(cfg *config.Config) lock.Locker {
	switch cfg.LockBackend {
	case config.BackendMongo:
		cfg.Log.Info("Using Mongo pool locks", "database", cfg.MongoDatabaseName)
		return lock.NewMongoLocker(cfg.Client.Mongo.Database(cfg.MongoDatabaseName))
	case config.BackendMemory:
		cfg.Log.Warn("Using in-process pool locks, allocation is only serialised within this instance")
		return lock.NewMemoryLocker()
	default:
		cfg.Log.Info("Using Redis pool locks", "addr", cfg.RedisAddr)
		return lock.NewRedisLocker(cfg.Client.Redis)
	}
}

func newStatusStore(cfg *config.Config) status.Store {
	if cfg.StatusBackend == config.BackendMemory {
		cfg.Log.Warn("Using in-process status store, request status is lost on restart")
		return status.NewMemoryStore(cfg.ResultTTL, cfg.ResultTTL/2)
	}
	return status.NewRedisStore(cfg.Client.Redis)
}

func newPublisher(cfg *config.Config, serverApp *app.Application, clk clock.Clock) events.Publisher {
	if cfg.EventsBackend != config.BackendKafka {
		return events.NewLogPublisher(cfg.Log)
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log, kafkaCfg.EventsTopic, kafkaCfg.EventsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafkamw.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafkamw.MetricsProducerMiddleware())

	publisher := events.NewKafkaPublisher(producer, kafkaCfg.Source, clk)
	serverApp.OnShutdown(func(context.Context) {
		if err := publisher.Close(); err != nil {
			cfg.Log.Warn("Failed to close Kafka producer", "error", err)
		}
	})
	return publisher
}

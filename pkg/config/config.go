package config

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strconv"
	"time"

	"parkline/pkg/client"
	"parkline/pkg/logger"
	"parkline/pkg/model"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresURL         string
	PostgresMaxConns    int
	PostgresConnTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	LockBackend   string
	StatusBackend string
	EventsBackend string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	WorkerCount         int
	LockAcquireTimeout  time.Duration
	LockTTL             time.Duration
	LockRetryBudget     int
	LockRetryBackoff    time.Duration
	CandidateBatchSize  int
	DefaultMaxWait      time.Duration
	StatusGrace         time.Duration
	ResultTTL           time.Duration
	MaxBookingDuration  time.Duration
	FastPathPriority    model.Priority
	IdlePollInterval    time.Duration
	NoShowSweepInterval time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	log := logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})

	if envFile := os.Getenv(EnvFile); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Fatal("failed to load env file", "path", envFile, "error", err)
		}
	}

	cfg := FromEnv()
	cfg.Log = log

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from the process environment without validating or logging it.
func FromEnv() *Config {
	return &Config{
		PostgresURL:         getEnvStr(EnvPostgresURL, DefaultPostgresURL),
		PostgresMaxConns:    getEnvNum(EnvPostgresMaxConns, DefaultPostgresMaxConns),
		PostgresConnTimeout: getEnvDuration(EnvPostgresConnTimeout, DefaultPostgresConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		LockBackend:   getEnvStr(EnvLockBackend, DefaultLockBackend),
		StatusBackend: getEnvStr(EnvStatusBackend, DefaultStatusBackend),
		EventsBackend: getEnvStr(EnvEventsBackend, DefaultEventsBackend),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),
		RateLimitBurst:    getEnvNum(EnvRateLimitBurst, DefaultRateLimitBurst),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		WorkerCount:         getEnvNum(EnvWorkerCount, DefaultWorkerCount),
		LockAcquireTimeout:  getEnvDuration(EnvLockAcquireTimeout, DefaultLockAcquireTimeout),
		LockTTL:             getEnvDuration(EnvLockTTL, DefaultLockTTL),
		LockRetryBudget:     getEnvNum(EnvLockRetryBudget, DefaultLockRetryBudget),
		LockRetryBackoff:    getEnvDuration(EnvLockRetryBackoff, DefaultLockRetryBackoff),
		CandidateBatchSize:  getEnvNum(EnvCandidateBatchSize, DefaultCandidateBatchSize),
		DefaultMaxWait:      getEnvDuration(EnvDefaultMaxWait, DefaultMaxWait),
		StatusGrace:         getEnvDuration(EnvStatusGrace, DefaultStatusGrace),
		ResultTTL:           getEnvDuration(EnvResultTTL, DefaultResultTTL),
		MaxBookingDuration:  getEnvDuration(EnvMaxBookingDuration, DefaultMaxBookingDuration),
		FastPathPriority:    getEnvPriority(EnvFastPathPriority, DefaultFastPathPriority),
		IdlePollInterval:    getEnvDuration(EnvIdlePollInterval, DefaultIdlePollInterval),
		NoShowSweepInterval: getEnvDuration(EnvNoShowSweepInterval, DefaultNoShowSweepInterval),

		Client: client.NewClient(),
	}
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresURL, int32(cfg.PostgresMaxConns), cfg.PostgresConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresURL) {
		errors = append(errors, fmt.Sprintf("PostgresURL must start with 'postgres://' or 'postgresql://', got: %s", redactURL(cfg.PostgresURL)))
	}
	if cfg.PostgresMaxConns <= 0 {
		errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
	}
	if cfg.PostgresConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("PostgresConnTimeout must be positive, got: %s", cfg.PostgresConnTimeout))
	}

	switch cfg.LockBackend {
	case BackendRedis, BackendMemory:
	case BackendMongo:
		if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURL(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	default:
		errors = append(errors, fmt.Sprintf("LockBackend must be one of redis, mongo, memory, got: %s", cfg.LockBackend))
	}
	if cfg.StatusBackend != BackendRedis && cfg.StatusBackend != BackendMemory {
		errors = append(errors, fmt.Sprintf("StatusBackend must be one of redis, memory, got: %s", cfg.StatusBackend))
	}
	if cfg.EventsBackend != BackendKafka && cfg.EventsBackend != BackendLog {
		errors = append(errors, fmt.Sprintf("EventsBackend must be one of kafka, log, got: %s", cfg.EventsBackend))
	}
	if (cfg.LockBackend == BackendRedis || cfg.StatusBackend == BackendRedis) && cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty when a redis backend is selected")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	positive := map[string]time.Duration{
		"RateLimitWindow":     cfg.RateLimitWindow,
		"RequestTimeout":      cfg.RequestTimeout,
		"ReadTimeout":         cfg.ReadTimeout,
		"WriteTimeout":        cfg.WriteTimeout,
		"IdleTimeout":         cfg.IdleTimeout,
		"ShutdownTimeout":     cfg.ShutdownTimeout,
		"LockAcquireTimeout":  cfg.LockAcquireTimeout,
		"LockTTL":             cfg.LockTTL,
		"LockRetryBackoff":    cfg.LockRetryBackoff,
		"DefaultMaxWait":      cfg.DefaultMaxWait,
		"ResultTTL":           cfg.ResultTTL,
		"MaxBookingDuration":  cfg.MaxBookingDuration,
		"IdlePollInterval":    cfg.IdlePollInterval,
		"NoShowSweepInterval": cfg.NoShowSweepInterval,
	}
	for _, name := range slices.Sorted(maps.Keys(positive)) {
		if positive[name] <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", name, positive[name]))
		}
	}
	if cfg.StatusGrace < 0 {
		errors = append(errors, fmt.Sprintf("StatusGrace cannot be negative, got: %s", cfg.StatusGrace))
	}
	if cfg.LockTTL > 0 && cfg.LockAcquireTimeout > 0 && cfg.LockTTL < cfg.LockAcquireTimeout/2 {
		errors = append(errors, fmt.Sprintf("LockTTL (%s) is too short for LockAcquireTimeout (%s)", cfg.LockTTL, cfg.LockAcquireTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitBurst <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitBurst must be positive, got: %d", cfg.RateLimitBurst))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.WorkerCount <= 0 {
		errors = append(errors, fmt.Sprintf("WorkerCount must be positive, got: %d", cfg.WorkerCount))
	}
	if cfg.LockRetryBudget < 1 {
		errors = append(errors, fmt.Sprintf("LockRetryBudget must be at least 1, got: %d", cfg.LockRetryBudget))
	}
	if cfg.CandidateBatchSize <= 0 || cfg.CandidateBatchSize > 100 {
		errors = append(errors, fmt.Sprintf("CandidateBatchSize must be between 1 and 100, got: %d", cfg.CandidateBatchSize))
	}
	if !cfg.FastPathPriority.Valid() {
		errors = append(errors, fmt.Sprintf("FastPathPriority must be one of low, normal, high, vip, emergency, got: %s", cfg.FastPathPriority))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"postgres_url", redactURL(cfg.PostgresURL),
		"postgres_max_conns", cfg.PostgresMaxConns,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"redis_db", cfg.RedisDB,
		"mongo_uri", redactURL(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"lock_backend", cfg.LockBackend,
		"status_backend", cfg.StatusBackend,
		"events_backend", cfg.EventsBackend,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"rate_limit_burst", cfg.RateLimitBurst,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"workers", cfg.WorkerCount,
		"lock_acquire_timeout", cfg.LockAcquireTimeout,
		"lock_ttl", cfg.LockTTL,
		"lock_retry_budget", cfg.LockRetryBudget,
		"candidate_batch_size", cfg.CandidateBatchSize,
		"default_max_wait", cfg.DefaultMaxWait,
		"status_grace", cfg.StatusGrace,
		"result_ttl", cfg.ResultTTL,
		"max_booking_duration", cfg.MaxBookingDuration,
		"fast_path_priority", cfg.FastPathPriority,
		"no_show_sweep_interval", cfg.NoShowSweepInterval,
	)
}

func redactURL(uri string) string {
	credentialRegex := regexp.MustCompile(`([a-z+]+://)[^:/@]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvPriority keeps an unrecognised value as-is so Validate can report it.
func getEnvPriority(key, fallback string) model.Priority {
	value := getEnvStr(key, fallback)
	if p, err := model.ParsePriority(value); err == nil {
		return p
	}
	return model.Priority(value)
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

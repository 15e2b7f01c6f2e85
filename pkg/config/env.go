package config

const (
	EnvFile = "ENV_FILE"

	EnvPostgresURL         = "POSTGRES_URL"
	EnvPostgresMaxConns    = "POSTGRES_MAX_CONNS"
	EnvPostgresConnTimeout = "POSTGRES_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvLockBackend   = "LOCK_BACKEND"
	EnvStatusBackend = "STATUS_BACKEND"
	EnvEventsBackend = "EVENTS_BACKEND"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"
	EnvRateLimitBurst    = "RATE_LIMIT_BURST"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvWorkerCount         = "RESERVATION_WORKERS"
	EnvLockAcquireTimeout  = "LOCK_ACQUIRE_TIMEOUT"
	EnvLockTTL             = "LOCK_TTL"
	EnvLockRetryBudget     = "LOCK_RETRY_BUDGET"
	EnvLockRetryBackoff    = "LOCK_RETRY_BACKOFF"
	EnvCandidateBatchSize  = "CANDIDATE_BATCH_SIZE"
	EnvDefaultMaxWait      = "DEFAULT_MAX_WAIT"
	EnvStatusGrace         = "STATUS_GRACE"
	EnvResultTTL           = "RESULT_TTL"
	EnvMaxBookingDuration  = "MAX_BOOKING_DURATION"
	EnvFastPathPriority    = "FAST_PATH_PRIORITY"
	EnvIdlePollInterval    = "IDLE_POLL_INTERVAL"
	EnvNoShowSweepInterval = "NO_SHOW_SWEEP_INTERVAL"
)

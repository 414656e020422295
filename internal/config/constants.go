package config

import "time"

// SQLite storage file, created inside DATA_DIR
const SQLiteFileName = "storage.db"

// Database connection pool settings (Postgres only; SQLite is held to one connection)
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
	SQLiteBusyTimeout = 5000
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 10 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const (
	CleanupJobInterval  = 1 * time.Hour
	MetricsPollInterval = 30 * time.Second
)

// Long polling
const (
	PollTimeoutSeconds = 30
	UpdateBufferSize   = 256
)

// Mapping cache TTL when REDIS_URL is set
const MappingCacheTTL = 10 * time.Minute

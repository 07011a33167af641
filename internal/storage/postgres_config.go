package storage

import (
	"log/slog"
	"time"
)

// PostgresConfig describes how the Postgres repository initialises its
// connection pool. Logger receives query failures that the lookup-shaped
// Repository methods cannot return; nil means slog.Default.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	ApplicationName     string
	Logger              *slog.Logger
}

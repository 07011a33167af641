// Command server starts the Galleria API HTTP service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"galleria/internal/api"
	"galleria/internal/auth"
	"galleria/internal/files"
	"galleria/internal/observability/logging"
	"galleria/internal/observability/metrics"
	"galleria/internal/server"
	"galleria/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when establishing a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	uploadsDir := flag.String("uploads-dir", "", "directory for uploaded files")
	tokenSecret := flag.String("token-secret", "", "HMAC secret for access tokens (at least 32 characters)")
	tokenIssuer := flag.String("token-issuer", "", "issuer claim stamped on access tokens")
	tokenTTL := flag.Duration("token-ttl", 0, "lifetime of issued access tokens")
	adminUsername := flag.String("admin-username", "", "username for the seeded administrator account")
	adminEmail := flag.String("admin-email", "", "email for the seeded administrator account")
	adminPassword := flag.String("admin-password", "", "password for the seeded administrator account")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated browser origins allowed to call the API")
	sweepInterval := flag.Duration("sweep-interval", 0, "interval between orphan file sweeps (0 disables the sweep)")
	sweepMinAge := flag.Duration("sweep-min-age", 0, "minimum age before an unreferenced file may be removed")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("GALLERIA_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("GALLERIA_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	driver := resolveStorageDriver(*storageDriver, os.Getenv("GALLERIA_STORAGE_DRIVER"), resolvePostgresDSN(*postgresDSN))

	var (
		store storage.Repository
		err   error
	)
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("GALLERIA_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		dsn := resolvePostgresDSN(*postgresDSN)
		if dsn == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		store, err = storage.NewPostgresRepository(storage.PostgresConfig{
			DSN:                 dsn,
			MaxConnections:      int32(resolveInt(*postgresMaxConns, "GALLERIA_POSTGRES_MAX_CONNS")),
			MinConnections:      int32(resolveInt(*postgresMinConns, "GALLERIA_POSTGRES_MIN_CONNS")),
			MaxConnLifetime:     resolveDuration(*postgresMaxConnLifetime, "GALLERIA_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdleTime:     resolveDuration(*postgresMaxConnIdle, "GALLERIA_POSTGRES_MAX_CONN_IDLE", 0),
			HealthCheckInterval: resolveDuration(*postgresHealthInterval, "GALLERIA_POSTGRES_HEALTH_INTERVAL", 0),
			ConnectTimeout:      resolveDuration(*postgresConnectTimeout, "GALLERIA_POSTGRES_CONNECT_TIMEOUT", 0),
			ApplicationName:     firstNonEmpty(*postgresAppName, os.Getenv("GALLERIA_POSTGRES_APP_NAME")),
			Logger:              logging.WithComponent(logger, "storage"),
		})
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	if err := store.EnsureRoles(auth.RoleNames()); err != nil {
		logger.Error("failed to seed roles", "error", err)
		os.Exit(1)
	}
	seedAdmin(logger, store, *adminUsername, *adminEmail, *adminPassword)

	tokens, err := auth.NewTokenManager(
		firstNonEmpty(*tokenSecret, os.Getenv("GALLERIA_TOKEN_SECRET")),
		firstNonEmpty(*tokenIssuer, os.Getenv("GALLERIA_TOKEN_ISSUER")),
		resolveDuration(*tokenTTL, "GALLERIA_TOKEN_TTL", 0),
	)
	if err != nil {
		logger.Error("failed to configure token manager", "error", err)
		os.Exit(1)
	}

	fileManager, err := files.NewManager(
		resolveUploadsDir(*uploadsDir, os.Getenv("GALLERIA_UPLOADS_DIR")),
		logging.WithComponent(logger, "files"),
	)
	if err != nil {
		logger.Error("failed to open uploads directory", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(store, tokens, fileManager)
	handler.Metrics = recorder

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	sweepStop := startOrphanSweepWorker(workerCtx, orphanSweepConfig{
		Logger:   logging.WithComponent(logger, "orphan-sweeper"),
		Store:    store,
		Files:    fileManager,
		Metrics:  recorder,
		Interval: resolveDuration(*sweepInterval, "GALLERIA_SWEEP_INTERVAL", 0),
		MinAge:   resolveDuration(*sweepMinAge, "GALLERIA_SWEEP_MIN_AGE", time.Hour),
	})
	defer sweepStop()

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("GALLERIA_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("GALLERIA_TLS_KEY"))

	srv := server.New(handler, server.Config{
		Addr: firstNonEmpty(*addr, os.Getenv("GALLERIA_ADDR"), ":8080"),
		TLS: server.TLSConfig{
			Enabled:  tlsCertPath != "" && tlsKeyPath != "",
			CertFile: tlsCertPath,
			KeyFile:  tlsKeyPath,
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "GALLERIA_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "GALLERIA_RATE_GLOBAL_BURST"),
			LoginLimit:    resolveInt(*loginLimit, "GALLERIA_RATE_LOGIN_LIMIT"),
			LoginWindow:   resolveDuration(*loginWindow, "GALLERIA_RATE_LOGIN_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("GALLERIA_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("GALLERIA_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "GALLERIA_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			Origins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("GALLERIA_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})

	errs := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sweepStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if closer, ok := store.(interface{ Close() }); ok {
		closer.Close()
	}

	logger.Info("server stopped")
}

func seedAdmin(logger *slog.Logger, store storage.Repository, username, email, password string) {
	username = firstNonEmpty(username, os.Getenv("GALLERIA_ADMIN_USERNAME"))
	email = firstNonEmpty(email, os.Getenv("GALLERIA_ADMIN_EMAIL"))
	if password == "" {
		password = os.Getenv("GALLERIA_ADMIN_PASSWORD")
	}
	if email == "" || password == "" {
		return
	}
	if username == "" {
		username = "admin"
	}
	user, created, err := store.EnsureAdminUser(username, email, password)
	if err != nil {
		logger.Error("failed to seed admin account", "error", err)
		os.Exit(1)
	}
	if created {
		logger.Info("seeded admin account", "username", user.Username, "email", user.Email)
	}
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) string {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres"
	}
	return "json"
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolveUploadsDir(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/uploads"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("GALLERIA_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return fallback
}

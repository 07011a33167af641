package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"galleria/internal/api"
	"galleria/internal/observability/logging"
	"galleria/internal/observability/metrics"
)

// TLSConfig controls optional HTTPS serving.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// Config bundles the listener and middleware settings for the server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	TLS             TLSConfig
	RateLimit       RateLimitConfig
	Security        SecurityConfig
	CORS            CORSConfig
	Logger          *slog.Logger
	AuditLogger     *slog.Logger
	Metrics         *metrics.Recorder
}

// Server wires the API handler into an http.Server with the middleware chain.
type Server struct {
	httpServer *http.Server
	handler    *api.Handler
	cfg        Config
	logger     *slog.Logger
	audit      *slog.Logger
	metrics    *metrics.Recorder
	limiter    *rateLimiter
}

// New constructs a Server around the provided API handler.
func New(handler *api.Handler, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.Config{})
	}
	logger = logging.WithComponent(logger, "server")
	audit := cfg.AuditLogger
	if audit == nil {
		audit = logging.WithComponent(logger, "audit")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	srv := &Server{
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		audit:   audit,
		metrics: recorder,
	}
	srv.limiter = newRateLimiter(cfg.RateLimit, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/auth/register", handler.Register)
	mux.HandleFunc("/api/auth/login", handler.Login)
	mux.HandleFunc("/api/auth/session", handler.Session)
	mux.HandleFunc("/api/users", handler.Users)
	mux.HandleFunc("/api/users/", handler.UserByID)
	mux.HandleFunc("/api/roles", handler.Roles)
	mux.HandleFunc("/api/themes", handler.Themes)
	mux.HandleFunc("/api/themes/", handler.ThemeByID)
	mux.HandleFunc("/api/categories", handler.Categories)
	mux.HandleFunc("/api/categories/", handler.CategoryByID)
	mux.HandleFunc("/api/contents", handler.Contents)
	mux.HandleFunc("/api/contents/", handler.ContentByID)
	mux.HandleFunc("/uploads/", handler.UploadFile)

	corsPolicy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		logger.Warn("invalid CORS configuration, allowing same-origin only", "error", err)
		corsPolicy, _ = newCORSPolicy(CORSConfig{})
	}

	chain := srv.authMiddleware(mux)
	chain = corsMiddleware(corsPolicy, logger, chain)
	chain = securityHeadersMiddleware(cfg.Security, chain)
	chain = requestIDMiddleware(chain)
	chain = srv.limiter.middleware(chain)
	chain = metrics.HTTPMiddleware(recorder, chain)
	chain = srv.auditMiddleware(chain)
	chain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(chain)

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           chain,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.cfg.Addr, "tls", s.cfg.TLS.Enabled)
	var err error
	if s.cfg.TLS.Enabled {
		err = s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	s.limiter.stop()
	return s.httpServer.Shutdown(ctx)
}

// authExempt reports whether a path is reachable without a token.
func authExempt(path string) bool {
	if path == "/healthz" || path == "/metrics" {
		return true
	}
	if strings.HasPrefix(path, "/api/auth/") {
		return true
	}
	if strings.HasPrefix(path, "/uploads/") {
		return true
	}
	return !strings.HasPrefix(path, "/api/")
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token := api.ExtractToken(r)
		if token == "" {
			s.metrics.ObserveAuthEvent("missing_token")
			api.WriteError(w, http.StatusForbidden, fmt.Errorf("no token provided"))
			return
		}
		user, err := s.handler.AuthenticateRequest(r)
		if err != nil {
			s.metrics.ObserveAuthEvent("invalid_token")
			api.WriteAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(api.ContextWithUser(r.Context(), user)))
	})
}

// shouldAudit keeps the audit log to mutating API calls.
func shouldAudit(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return strings.HasPrefix(r.URL.Path, "/api/")
	default:
		return false
	}
}

func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldAudit(r) {
			next.ServeHTTP(w, r)
			return
		}
		rec := metrics.NewResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", extractClientIP(r),
		}
		if id, ok := logging.RequestIDFromContext(r.Context()); ok {
			attrs = append(attrs, "request_id", id)
		}
		s.audit.Info("api mutation", attrs...)
	})
}

// extractClientIP prefers proxy headers and falls back to the socket address.
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		candidate := strings.TrimSpace(parts[0])
		if candidate != "" {
			return candidate
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"galleria/internal/api"
	"galleria/internal/auth"
	"galleria/internal/files"
	"galleria/internal/observability/metrics"
	"galleria/internal/storage"
)

const testTokenSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T, cfg Config) (*Server, *storage.Storage, *auth.TokenManager) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	if err := store.EnsureRoles(auth.RoleNames()); err != nil {
		t.Fatalf("EnsureRoles error: %v", err)
	}
	manager, err := files.NewManager(filepath.Join(dir, "uploads"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	tokens, err := auth.NewTokenManager(testTokenSecret, "galleria", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager error: %v", err)
	}
	handler := api.NewHandler(store, tokens, manager)
	handler.Metrics = metrics.New()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = handler.Metrics
	}
	srv := New(handler, cfg)
	t.Cleanup(srv.limiter.stop)
	return srv, store, tokens
}

func serveRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthExempt(t *testing.T) {
	tests := []struct {
		path   string
		exempt bool
	}{
		{path: "/healthz", exempt: true},
		{path: "/metrics", exempt: true},
		{path: "/api/auth/login", exempt: true},
		{path: "/api/auth/register", exempt: true},
		{path: "/uploads/cover.png", exempt: true},
		{path: "/favicon.ico", exempt: true},
		{path: "/api/themes", exempt: false},
		{path: "/api/users/abc", exempt: false},
	}
	for _, tc := range tests {
		if got := authExempt(tc.path); got != tc.exempt {
			t.Errorf("authExempt(%q) = %v, want %v", tc.path, got, tc.exempt)
		}
	}
}

func TestMissingTokenIsForbidden(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/api/themes", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if body["error"] != "no token provided" {
		t.Fatalf("error = %q, want %q", body["error"], "no token provided")
	}
}

func TestInvalidTokenIsUnauthorized(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/themes", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := serveRequest(srv, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticatedRequestReachesHandler(t *testing.T) {
	srv, store, tokens := newTestServer(t, Config{})
	user, err := store.CreateUser(storage.CreateUserParams{
		Username: "reader",
		Email:    "reader@example.com",
		Password: "secret-pass",
		Roles:    []string{"reader"},
	})
	if err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	token, _, err := tokens.Issue(user)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/themes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serveRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthzBypassesAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})
	rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})
	rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header missing")
	}
}

func TestSecurityHeadersSet(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})
	rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", rec.Header().Get("X-Content-Type-Options"))
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("Content-Security-Policy missing")
	}
}

func TestCORSBlocksUnknownOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{CORS: CORSConfig{Origins: []string{"https://app.example.com"}}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := serveRequest(srv, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{CORS: CORSConfig{Origins: []string{"https://app.example.com"}}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := serveRequest(srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{CORS: CORSConfig{Origins: []string{"https://app.example.com"}}})

	req := httptest.NewRequest(http.MethodOptions, "/api/themes", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serveRequest(srv, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("allow methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestGlobalRateLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{RateLimit: RateLimitConfig{GlobalRPS: 1, GlobalBurst: 1}})

	if rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := serveRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	srv, store, _ := newTestServer(t, Config{RateLimit: RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute}})
	if _, err := store.CreateUser(storage.CreateUserParams{
		Username: "alice", Email: "alice@example.com", Password: "secret-pass",
	}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.9:1234"
		return serveRequest(srv, req).Code
	}

	if code := login(); code != http.StatusUnauthorized {
		t.Fatalf("first attempt = %d, want 401", code)
	}
	if code := login(); code != http.StatusUnauthorized {
		t.Fatalf("second attempt = %d, want 401", code)
	}
	if code := login(); code != http.StatusTooManyRequests {
		t.Fatalf("third attempt = %d, want 429", code)
	}
}

func TestRequestIDHonorsIncomingHeader(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(requestIDHeader)
	})
	handler := requestIDMiddlewareWithGenerator(func() string { return "generated" }, inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "proxy-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "proxy-supplied" {
		t.Fatalf("request id = %q, want proxy-supplied", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", 200))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "generated" {
		t.Fatalf("request id = %q, want generated for oversized header", seen)
	}
}

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://App.Example.com", want: "https://app.example.com"},
		{in: "  http://localhost:3000  ", want: "http://localhost:3000"},
		{in: "", want: ""},
		{in: "app.example.com", wantErr: true},
	}
	for _, tc := range tests {
		got, err := normalizeOrigin(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("normalizeOrigin(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeOrigin(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("normalizeOrigin(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{name: "socket address", remoteAddr: "203.0.113.9:1234", want: "203.0.113.9"},
		{name: "forwarded header wins", remoteAddr: "10.0.0.1:1", forwarded: "198.51.100.7, 10.0.0.2", want: "198.51.100.7"},
		{name: "real ip fallback", remoteAddr: "10.0.0.1:1", realIP: "198.51.100.8", want: "198.51.100.8"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := extractClientIP(req); got != tc.want {
				t.Fatalf("extractClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

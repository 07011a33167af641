package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig tunes the global throttle and the per-client login
// limiter. When RedisAddr is set, login attempts are counted in Redis so
// multiple replicas share one budget; otherwise counting is in-process.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	LoginLimit    int
	LoginWindow   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

// tokenStore counts login attempts per key within a window.
type tokenStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
	Close() error
}

type rateLimiter struct {
	global      *tokenBucket
	loginLimit  int
	loginWindow time.Duration
	store       tokenStore
	logger      *slog.Logger

	loginMu      sync.Mutex
	loginBuckets map[string]*loginBucket
}

type loginBucket struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *rateLimiter {
	rl := &rateLimiter{
		loginLimit:   max(cfg.LoginLimit, 0),
		loginWindow:  cfg.LoginWindow,
		loginBuckets: make(map[string]*loginBucket),
		logger:       logger,
	}
	if rl.loginWindow <= 0 {
		rl.loginWindow = time.Minute
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = max(int(cfg.GlobalRPS), 1)
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if cfg.RedisAddr != "" && rl.loginLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (r *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.AllowRequest() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if req.Method == http.MethodPost && req.URL.Path == "/api/auth/login" {
			allowed, retryAfter, err := r.AllowLogin(extractClientIP(req))
			switch {
			case err != nil:
				// The shared store being down must not lock everyone out.
				if r.logger != nil {
					r.logger.Warn("login limiter unavailable", "error", err)
				}
			case !allowed:
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.5)))
				}
				http.Error(w, "too many login attempts", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, req)
	})
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowLogin charges one login attempt to the client key. The duration
// tells blocked clients how long to wait.
func (r *rateLimiter) AllowLogin(key string) (bool, time.Duration, error) {
	if r == nil || r.loginLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(fmt.Sprintf("galleria:login:%s", key), r.loginLimit, r.loginWindow)
	}
	if key == "" {
		key = "unknown"
	}

	r.loginMu.Lock()
	entry, ok := r.loginBuckets[key]
	if !ok {
		rate := float64(r.loginLimit) / r.loginWindow.Seconds()
		entry = &loginBucket{bucket: newTokenBucket(rate, r.loginLimit)}
		r.loginBuckets[key] = entry
	}
	entry.lastSeen = time.Now()
	r.evictStaleLocked()
	r.loginMu.Unlock()

	if entry.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

// evictStaleLocked drops buckets idle for two full windows so the map does
// not grow with every client ever seen. Caller holds loginMu.
func (r *rateLimiter) evictStaleLocked() {
	cutoff := time.Now().Add(-2 * r.loginWindow)
	for key, entry := range r.loginBuckets {
		if entry.lastSeen.Before(cutoff) {
			delete(r.loginBuckets, key)
		}
	}
}

func (r *rateLimiter) stop() {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil && r.logger != nil {
		r.logger.Warn("closing login limiter store", "error", err)
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	tb.tokens += now.Sub(tb.lastCheck).Seconds() * tb.rate
	tb.lastCheck = now
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for a specific rate limit
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	KeyFn  func(*http.Request) string
}

// RateLimit creates a rate limiting middleware. Counters live in Redis when
// it is configured so limits hold across instances; otherwise each process
// keeps its own token buckets.
func (m *Middleware) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.KeyFn == nil {
		cfg.KeyFn = IPKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.cfg.Security.RateLimiting.Enabled || cfg.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, cfg.KeyFn(r))

			var allowed bool
			if m.rdb != nil {
				var ok bool
				allowed, ok = m.allowRedis(w, r, key, cfg)
				if !ok {
					next.ServeHTTP(w, r)
					return
				}
			} else {
				allowed = m.local.allow(key, cfg)
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
				if !allowed {
					w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				}
			}

			if !allowed {
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allowRedis counts the request in a fixed window. ok is false when Redis is
// unavailable, in which case the request is let through.
func (m *Middleware) allowRedis(w http.ResponseWriter, r *http.Request, key string, cfg RateLimitConfig) (allowed, ok bool) {
	ctx := r.Context()

	count, err := m.rdb.Incr(ctx, key)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to increment rate limit counter")
		return false, false
	}
	if count == 1 {
		if err := m.rdb.Expire(ctx, key, cfg.Window); err != nil {
			m.log.Warn().Err(err).Msg("failed to set rate limit expiry")
		}
	}

	ttl, _ := m.rdb.TTL(ctx, key).Result()
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, cfg.Limit-int(count))))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

	if int(count) > cfg.Limit {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
		return false, true
	}
	return true, true
}

type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLocalLimiter() *localLimiter {
	return &localLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (l *localLimiter) allow(key string, cfg RateLimitConfig) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.Limit)), cfg.Limit)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// IPKey returns the client IP address as the rate limit key
func IPKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

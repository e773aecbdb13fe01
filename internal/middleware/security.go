package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxBodyBytes bounds request bodies. Board writes are a few hundred bytes of
// JSON at most.
const MaxBodyBytes = 64 << 10

// SecurityHeadersMiddleware sets response headers appropriate for a JSON API.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// LimitBodyMiddleware caps the size of request bodies.
func LimitBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type visitor struct {
	count       int
	windowStart time.Time
}

// RateLimiter is a fixed-window request counter keyed by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	cleanup  time.Duration
	lastGC   time.Time
}

// NewRateLimiter allows rate requests per window per key.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		cleanup:  2 * window,
	}
}

// Allow records a request for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastGC) > rl.cleanup {
		for k, v := range rl.visitors {
			if now.Sub(v.windowStart) > rl.cleanup {
				delete(rl.visitors, k)
			}
		}
		rl.lastGC = now
	}

	v, ok := rl.visitors[key]
	if !ok || now.Sub(v.windowStart) >= rl.window {
		rl.visitors[key] = &visitor{count: 1, windowStart: now}
		return true
	}
	if v.count >= rl.rate {
		return false
	}
	v.count++
	return true
}

// RateLimitConfig picks a limiter per request class.
type RateLimitConfig struct {
	WriteLimiter  *RateLimiter // POST, PUT, DELETE under /api/
	APILimiter    *RateLimiter // reads under /api/
	GlobalLimiter *RateLimiter // everything else
}

// NewDefaultRateLimitConfig returns limits suited to a public board.
func NewDefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		WriteLimiter:  NewRateLimiter(30, time.Minute),
		APILimiter:    NewRateLimiter(300, time.Minute),
		GlobalLimiter: NewRateLimiter(120, time.Minute),
	}
}

// RateLimitMiddleware rejects clients over their limit with 429.
func RateLimitMiddleware(config *RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := config.GlobalLimiter
			if strings.HasPrefix(r.URL.Path, "/api/") {
				limiter = config.APILimiter
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					limiter = config.WriteLimiter
				}
			}

			ip := GetClientIP(r)
			if !limiter.Allow(ip) {
				log.Warn().Str("client_ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

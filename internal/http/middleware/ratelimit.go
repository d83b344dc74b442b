package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter throttles webhook callers per client IP with a token
// bucket. LINE retries aggressively on slow acks, so the limiter keeps
// a burst allowance rather than a hard requests-per-second cap.
type RateLimiter struct {
	mu    sync.Mutex
	perIP map[string]*tokenBucket

	refillPerSec float64
	burst        float64
}

type tokenBucket struct {
	tokens   float64
	refilled time.Time
}

// NewRateLimiter allows refillPerSec sustained requests per second with
// the given burst per IP. Stale buckets are evicted in the background.
func NewRateLimiter(refillPerSec float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		perIP:        make(map[string]*tokenBucket),
		refillPerSec: refillPerSec,
		burst:        float64(burst),
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether a request from ip fits in its bucket, and
// consumes a token when it does.
func (rl *RateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	tb := rl.perIP[ip]
	if tb == nil {
		tb = &tokenBucket{tokens: rl.burst, refilled: now}
		rl.perIP[ip] = tb
	}

	tb.tokens += now.Sub(tb.refilled).Seconds() * rl.refillPerSec
	if tb.tokens > rl.burst {
		tb.tokens = rl.burst
	}
	tb.refilled = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.mu.Lock()
		for ip, tb := range rl.perIP {
			if tb.refilled.Before(cutoff) {
				delete(rl.perIP, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit answers 429 when a caller exceeds the configured rate.
func RateLimit(refillPerSec float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(refillPerSec, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// chi's RealIP middleware rewrites RemoteAddr upstream, but
			// X-Real-Ip survives handler chains that skip it.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

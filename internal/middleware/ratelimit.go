package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// RateLimiter caps requests per caller over a fixed window. It fronts the
// generation endpoints, where every accepted request eventually spends
// external provider quota.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
	}

	go rl.evictStale()

	return rl
}

func (rl *RateLimiter) evictStale() {
	for {
		time.Sleep(rl.window)
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if time.Since(b.windowStart) > rl.window {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RealIP runs earlier in the chain, so RemoteAddr is usable as
		// the caller key.
		key := r.RemoteAddr

		rl.mu.Lock()
		b, ok := rl.buckets[key]
		if !ok || time.Since(b.windowStart) > rl.window {
			rl.buckets[key] = &bucket{count: 1, windowStart: time.Now()}
			rl.mu.Unlock()
			next.ServeHTTP(w, r)
			return
		}

		b.count++
		over := b.count > rl.limit
		retryAfter := rl.window - time.Since(b.windowStart)
		rl.mu.Unlock()

		if over {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many generation requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package ratelimit

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limiter is a fixed-window counter keyed by an arbitrary string (client IP
// or wallet address). Windows are independent and live in process memory
// only; multi-instance deployments need a shared store instead.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	size    time.Duration
	max     int
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

func New(size time.Duration, max int) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		size:    size,
		max:     max,
		now:     time.Now,
	}
}

// Allow consumes one slot for key in the current window and reports whether
// the request is under the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.size {
		if len(l.windows) > 4096 {
			l.prune(now)
		}
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.max {
		return false
	}
	w.count++
	return true
}

// prune drops expired windows; callers hold the mutex.
func (l *Limiter) prune(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.size {
			delete(l.windows, key)
		}
	}
}

// Middleware rejects over-limit requests with the standard 429 envelope.
// keyFn derives the counter key from the request.
func (l *Limiter) Middleware(keyFn func(*http.Request) string, message string, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if !l.Allow(key) {
				if logger != nil {
					logger.Warnw("rate limit exceeded", "key", key, "path", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": message,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

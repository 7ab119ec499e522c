package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/casilisto/sync/internal/models"
)

// RateLimiter enforces a sliding-window request budget per client IP.
// The window state is bounded: idle clients are evicted by a janitor
// so the map cannot grow without bound under address churn.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string][]int64

	limit  int
	window time.Duration

	stopChan chan struct{}
	stopOnce sync.Once

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window
// per client and starts its eviction janitor.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:  make(map[string][]int64),
		limit:    limit,
		window:   window,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	go rl.janitor()
	return rl
}

// Allow reports whether the client may proceed and records the request
// if so.
func (rl *RateLimiter) Allow(clientKey string) bool {
	nowMillis := rl.now().UnixMilli()
	cutoff := nowMillis - rl.window.Milliseconds()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	stamps := rl.clients[clientKey]

	// drop entries that slid out of the window
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.clients[clientKey] = kept
		return false
	}

	rl.clients[clientKey] = append(kept, nowMillis)
	return true
}

// Stop terminates the janitor.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evict()
		case <-rl.stopChan:
			return
		}
	}
}

func (rl *RateLimiter) evict() {
	cutoff := rl.now().UnixMilli() - rl.window.Milliseconds()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, stamps := range rl.clients {
		live := false
		for _, ts := range stamps {
			if ts > cutoff {
				live = true
				break
			}
		}
		if !live {
			delete(rl.clients, key)
		}
	}
}

// Middleware rejects over-budget requests with 429 and a Retry-After
// hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(models.ErrorResponse{
				Success: false,
				Error:   "Too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

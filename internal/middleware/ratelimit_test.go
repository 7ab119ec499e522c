package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(limit, window)
	clock := time.Now()
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestAllowWithinLimit(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow("1.2.3.4"), "request over the limit must be rejected")
}

func TestClientsIsolated(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "a different client has its own budget")
}

func TestWindowSlides(t *testing.T) {
	rl, clock := newTestLimiter(2, time.Minute)
	defer rl.Stop()

	require.True(t, rl.Allow("1.2.3.4"))
	require.True(t, rl.Allow("1.2.3.4"))
	require.False(t, rl.Allow("1.2.3.4"))

	*clock = clock.Add(61 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"), "budget refills once the window slides past")
}

func TestEvictDropsIdleClients(t *testing.T) {
	rl, clock := newTestLimiter(5, time.Minute)
	defer rl.Stop()

	rl.Allow("1.2.3.4")
	rl.Allow("5.6.7.8")

	*clock = clock.Add(2 * time.Minute)
	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.clients, "idle clients are evicted after the window")
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "1.2.3.4:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"error":"Too many requests"}`, rec.Body.String())
}

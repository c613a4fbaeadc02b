package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowIsPerClient(t *testing.T) {
	l := NewLimiter(RateLimitConfig{RPS: 0.001, Burst: 2})

	allowed, _ := l.Allow("10.0.0.1")
	assert.True(t, allowed)
	allowed, _ = l.Allow("10.0.0.1")
	assert.True(t, allowed)
	allowed, remaining := l.Allow("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, _ = l.Allow("10.0.0.2")
	assert.True(t, allowed, "buckets are independent per client")
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	l := NewLimiter(RateLimitConfig{RPS: 1, Burst: 1, MaxAge: time.Minute})
	l.Allow("10.0.0.1")

	l.evictIdle(time.Now().Add(2 * time.Minute))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.limiters)
}

func TestRunCleanupStopsWithContext(t *testing.T) {
	l := NewLimiter(RateLimitConfig{RPS: 1, Burst: 1, CleanupInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.RunCleanup(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancellation")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewLimiter(RateLimitConfig{RPS: 0.001, Burst: 1}).Middleware())
	router.GET("/oauth/install", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/oauth/install", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/oauth/install", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"ok":false,"error":"rate_limited"}`, second.Body.String())
}

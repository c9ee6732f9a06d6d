package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
)

type limiterClock struct {
	t time.Time
}

func newLimiterClock() *limiterClock {
	return &limiterClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *limiterClock) now() time.Time { return c.t }

func (c *limiterClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAuthLimiter(rpm int, clock *limiterClock) *AuthRateLimiter {
	limiter := NewAuthRateLimiter(rpm)
	limiter.now = clock.now
	return limiter
}

func loginRouter(limiter *AuthRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limiter.Limit())
	router.POST("/auth/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func postLogin(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthRateLimiter_DefaultsNonPositiveRate(t *testing.T) {
	clock := newLimiterClock()
	router := loginRouter(newTestAuthLimiter(0, clock))

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, postLogin(router, "10.0.0.1").Code, "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "10.0.0.1").Code)
}

func TestAuthRateLimiter_RejectionCarriesRetryAfter(t *testing.T) {
	clock := newLimiterClock()
	router := loginRouter(newTestAuthLimiter(2, clock))

	postLogin(router, "10.0.0.1")
	postLogin(router, "10.0.0.1")
	w := postLogin(router, "10.0.0.1")

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body entities.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Code)
	assert.EqualValues(t, 60, body.Details["retry_after"])
}

func TestAuthRateLimiter_RefillsWithClock(t *testing.T) {
	clock := newLimiterClock()
	router := loginRouter(newTestAuthLimiter(3, clock))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, postLogin(router, "10.0.0.1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "10.0.0.1").Code)

	// 3 per minute refills one attempt every 20s
	clock.advance(10 * time.Second)
	assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "10.0.0.1").Code)

	clock.advance(10 * time.Second)
	assert.Equal(t, http.StatusOK, postLogin(router, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "10.0.0.1").Code)

	clock.advance(time.Minute)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, postLogin(router, "10.0.0.1").Code, "attempt %d after a full minute", i+1)
	}
}

func TestAuthRateLimiter_SeparateBucketsPerIP(t *testing.T) {
	clock := newLimiterClock()
	router := loginRouter(newTestAuthLimiter(1, clock))

	assert.Equal(t, http.StatusOK, postLogin(router, "192.168.1.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "192.168.1.1").Code)
	assert.Equal(t, http.StatusOK, postLogin(router, "192.168.1.2").Code)
}

func TestAuthRateLimiter_Cleanup(t *testing.T) {
	tests := []struct {
		name     string
		idle     map[string]time.Duration
		maxIdle  time.Duration
		removed  int
		remained []string
	}{
		{
			name:     "removes only idle clients",
			idle:     map[string]time.Duration{"10.0.0.1": 11 * time.Minute, "10.0.0.2": time.Minute},
			maxIdle:  10 * time.Minute,
			removed:  1,
			remained: []string{"10.0.0.2"},
		},
		{
			name:     "keeps a client seen exactly at the cutoff",
			idle:     map[string]time.Duration{"10.0.0.1": 10 * time.Minute},
			maxIdle:  10 * time.Minute,
			removed:  0,
			remained: []string{"10.0.0.1"},
		},
		{
			name:    "empty limiter",
			idle:    map[string]time.Duration{},
			maxIdle: time.Minute,
			removed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newLimiterClock()
			limiter := newTestAuthLimiter(5, clock)
			base := clock.t
			for ip, idle := range tt.idle {
				clock.t = base.Add(-idle)
				limiter.allow(ip)
			}
			clock.t = base

			assert.Equal(t, tt.removed, limiter.Cleanup(tt.maxIdle))
			assert.Len(t, limiter.visitors, len(tt.remained))
			for _, ip := range tt.remained {
				assert.Contains(t, limiter.visitors, ip)
			}
		})
	}
}

func TestAuthRateLimiter_PrunedClientStartsFresh(t *testing.T) {
	clock := newLimiterClock()
	limiter := newTestAuthLimiter(1, clock)
	router := loginRouter(limiter)

	assert.Equal(t, http.StatusOK, postLogin(router, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "10.0.0.1").Code)

	clock.advance(30 * time.Second)
	require.Equal(t, 0, limiter.Cleanup(time.Minute))
	assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "10.0.0.1").Code)

	clock.advance(2 * time.Minute)
	require.Equal(t, 1, limiter.Cleanup(time.Minute))
	assert.NotContains(t, limiter.visitors, "10.0.0.1")
	assert.Equal(t, http.StatusOK, postLogin(router, "10.0.0.1").Code)
}

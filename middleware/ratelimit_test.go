package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitRouter(r rate.Limit, burst int) *gin.Engine {
	eng := gin.New()
	eng.Use(RateLimit(r, burst))
	eng.GET("/api/apparatus", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func limitedGet(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/apparatus", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_UnderLimit(t *testing.T) {
	r := newRateLimitRouter(100, 5)
	assert.Equal(t, http.StatusOK, limitedGet(r, "10.0.0.1"))
}

func TestRateLimit_BurstExhaustion(t *testing.T) {
	// Near-zero refill so the bucket never recovers within the test.
	r := newRateLimitRouter(0.001, 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, limitedGet(r, "10.0.1.1"), "request %d within burst", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, limitedGet(r, "10.0.1.1"))
}

func TestRateLimit_BucketsArePerIP(t *testing.T) {
	r := newRateLimitRouter(0.001, 1)

	// Each station tablet gets its own bucket.
	assert.Equal(t, http.StatusOK, limitedGet(r, "10.1.1.1"))
	assert.Equal(t, http.StatusOK, limitedGet(r, "10.1.1.2"))

	// The first IP's bucket is spent; the second is untouched by it.
	assert.Equal(t, http.StatusTooManyRequests, limitedGet(r, "10.1.1.1"))
}

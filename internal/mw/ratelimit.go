package mw

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ClientRateLimiter keeps one token bucket per client key.
type ClientRateLimiter struct {
	buckets map[string]*rate.Limiter
	mu      sync.RWMutex
	r       rate.Limit
	b       int
}

func NewClientRateLimiter(r rate.Limit, b int) *ClientRateLimiter {
	return &ClientRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		r:       r,
		b:       b,
	}
}

// Limiter returns the bucket for key, creating it on first use.
func (l *ClientRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.buckets[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.r, l.b)
	l.buckets[key] = limiter
	return limiter
}

// clientKey identifies who is spending the budget: the authenticated caller
// when Authenticate ran earlier in the chain, the client IP otherwise.
func clientKey(c *gin.Context) string {
	if caller := Caller(c); caller != "" {
		return "caller:" + caller
	}
	return "ip:" + c.ClientIP()
}

// RateLimiter limits requests per client key. Rejected requests get a 429
// with a Retry-After hint.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewClientRateLimiter(r, b)
	retryAfter := 1
	if r > 0 {
		retryAfter = int(time.Duration(float64(time.Second)/float64(r)).Round(time.Second) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
	}

	return func(c *gin.Context) {
		if !limiter.Limiter(clientKey(c)).Allow() {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "RATE_LIMITED"})
			return
		}
		c.Next()
	}
}

package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"studiobook/internal/api"
	"studiobook/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	maxRateLimitClients = 10000
	rateLimitIdle       = 3 * time.Minute
)

// RateLimiter keeps one token bucket per client. Buckets idle for longer
// than the idle window fall out of a bounded LRU and start full again.
type RateLimiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func NewRateLimiter(rps float64, burst, maxClients int, idle time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, idle),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

func (rl *RateLimiter) bucket(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.buckets.Get(client)
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
	}
	// Re-adding refreshes the idle deadline.
	rl.buckets.Add(client, lim)
	return lim
}

// Allow takes a token for client. When none is left it reports how long
// until the next one.
func (rl *RateLimiter) Allow(client string) (bool, time.Duration) {
	now := time.Now()
	r := rl.bucket(client).ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// RateLimitMiddleware limits each client IP. A non-positive rps disables it.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := NewRateLimiter(rps, burst, maxRateLimitClients, rateLimitIdle)

	return func(c *gin.Context) {
		ok, wait := limiter.Allow(c.ClientIP())
		if ok {
			c.Next()
			return
		}

		metrics.RecordRateLimited(c.FullPath())
		retry := int(math.Ceil(wait.Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{Error: "rate limit exceeded"})
	}
}

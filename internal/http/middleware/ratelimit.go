// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the gateway's token-bucket limiters. Two run in
// production: a "client" limiter keyed by user or IP on every route, and a
// "session" limiter keyed by the messaging session on the provider-bound
// routes, so one chatty session cannot spend the provider quota of the rest.
//
// Buckets live in process memory and idle ones are swept periodically.
// Idempotent replays (flagged by IdempotencyValidator) bypass limiting.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys by the authenticated user id stored under "userID" in
// the Gin context and falls back to the client IP. The caller-supplied
// X-User-ID header is deliberately not used: it is free to rotate.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyBySession keys by the :id session path parameter exactly as routed.
// Routes without one fall back to KeyByUserOrIP.
func KeyBySession() keyFunc {
	fallback := KeyByUserOrIP()
	return func(c *gin.Context) string {
		if id := c.Param("id"); id != "" {
			return "session:" + id
		}
		return fallback(c)
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a set of per-key token buckets. It is safe for concurrent
// use.
type RateLimiter struct {
	name  string
	rps   rate.Limit
	burst int
	keyFn keyFunc
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (values <= 0 become 1). name labels gateway_rate_limited_total.
func NewRateLimiter(name string, rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		name:      name,
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		idle:      10 * time.Minute,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// limiterFor returns the bucket for key, creating it on first use. Buckets
// idle for longer than rl.idle are dropped at most once per idle period,
// before the requested key is touched.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idle {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// admit takes one token for key. When none is available it reports how long
// until one will be (zero if the bucket can never refill).
func (rl *RateLimiter) admit(key string) (retryAfter time.Duration, ok bool) {
	now := rl.now()
	res := rl.limiterFor(key, now).ReserveN(now, 1)
	if !res.OK() {
		return 0, false
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d, false
	}
	return 0, true
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler enforces the limit. Rejected requests get 429 with the standard
// error envelope and a Retry-After in whole seconds (at least 1).
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		wait, ok := rl.admit(rl.keyFn(c))
		if ok {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(rl.name).Inc()
		secs := int(math.Ceil(wait.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		abortError(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}

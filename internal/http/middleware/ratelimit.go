// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Per-identity token buckets. The router installs them per route, after
// Authenticate: "identity", keyed by caller, and "claim", keyed by caller
// plus campaign so a client hammering one campaign is turned away before it
// queues on that campaign's row lock. The unauthenticated token endpoint has
// a "public" limiter keyed by client IP. Idempotent replays are never
// limited, so the limiter must run after IdempotencyValidator.
//
// Buckets live in process memory. The limiter is abuse control only and has
// no say in whether a claim succeeds.
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

// KeyFunc maps a request to the identity whose bucket it draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys by authenticated subject ("user:<id>") and falls back
// to "ip:<addr>" for anonymous traffic.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByUserAndRoute gives every (caller, route, :id) its own bucket.
func KeyByUserAndRoute() KeyFunc {
	who := KeyByUserOrIP()
	return func(c *gin.Context) string {
		return who(c) + "|" + c.FullPath() + "|" + c.Param("id")
	}
}

const defaultBucketIdle = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out one token bucket per key. Idle buckets are swept at
// most once per idle window, on the request path. Safe for concurrent use.
type RateLimiter struct {
	name  string
	limit rate.Limit
	burst int
	key   KeyFunc

	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (coerced to at least 1). name labels its rejections in metrics.
func NewRateLimiter(name string, rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		name:      name,
		limit:     rate.Limit(rps),
		burst:     burst,
		key:       key,
		idle:      defaultBucketIdle,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (rl *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idle {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// Len reports how many buckets are live.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator exempted this request.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler rejects requests over budget with 429 rate_limited and a
// Retry-After of whole seconds (at least 1).
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		lim := rl.bucketFor(rl.key(c))
		if lim.AllowN(rl.now(), 1) {
			c.Next()
			return
		}
		rateLimited.WithLabelValues(rl.name).Inc()
		c.Header("Retry-After", retryAfter(lim, rl.now()))
		abortJSON(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}

// retryAfter is the wait for the next token in whole seconds, never below 1.
func retryAfter(lim *rate.Limiter, now time.Time) string {
	if lim.Limit() <= 0 {
		return "1"
	}
	res := lim.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return strconv.Itoa(max(1, int(math.Ceil(wait.Seconds()))))
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the two request limiters of the gateway:
//   - RateLimiter, a per-identity token bucket (golang.org/x/time/rate) at the
//     edge, skipped for idempotent replays.
//   - UserWindow, a per-user sliding window (internal/ratelimit) placed on the
//     routes that reach paid providers.
//
// Both are process-local.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/calmlysettled/relocation-gateway/internal/ratelimit"
)

// keyFunc selects the identity used to key a rate-limit bucket, such as
// "user:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys by the caller's user id and falls back to the client IP.
// The id comes from the context ("userID", set by BearerAuth) or, when the
// limiter runs before auth, from the X-User-ID header.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		if s := strings.TrimSpace(c.GetHeader("X-User-ID")); s != "" {
			return "user:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor is one bucket and its last use.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token bucket. Buckets idle for ten minutes are
// evicted every 5000 lookups. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
	skip     map[string]struct{}
}

// NewRateLimiter refills rps tokens per second up to burst (min 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		skip:     make(map[string]struct{}),
	}
}

// Skip exempts exact request paths, such as health probes and /metrics.
// Call it before Handler is serving.
func (rl *RateLimiter) Skip(paths ...string) *RateLimiter {
	for _, p := range paths {
		rl.skip[p] = struct{}{}
	}
	return rl
}

// getVisitor returns the limiter for key. Eviction runs before the lookup so a
// stale bucket is replaced rather than refreshed.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay, which consumes no tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the bucket of each request's key. Denied requests get 429
// with Retry-After set to the whole seconds until the next token. Function
// routes answer {"error"} like UserWindow does; other routes get the API
// envelope {"request_id","code":"rate_limited","message"}.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.skip[c.Request.URL.Path]; ok || IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.getVisitor(rl.keyFn(c))
		now := time.Now()
		r := lim.ReserveN(now, 1)
		delay := time.Second
		if r.OK() {
			if delay = r.DelayFrom(now); delay == 0 {
				c.Next()
				return
			}
			r.CancelAt(now)
		}

		c.Header("Retry-After", itoa(retryAfterSeconds(delay)))
		if strings.HasPrefix(c.Request.URL.Path, functionsPrefix) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfterSeconds rounds d up to whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// UserWindow limits each user to the window's quota on the wrapped route.
// Replays pass without counting. Denials answer 429 with an {"error"} body
// and the quota headers function clients read.
func UserWindow(w *ratelimit.Window) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		id := userIDFromCtx(c)
		if !w.CanMakeRequest(id) {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Header("X-RateLimit-Remaining", itoa(w.Remaining(id)))
		c.Next()
	}
}

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tsafe/backend/internal/interfaces/http/dto"
)

// RateLimiter keeps one token bucket per caller key. Each bucket holds limit
// tokens and refills at limit per window.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     int
	window    time.Duration
	every     rate.Limit
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		limit:     limit,
		window:    window,
		every:     rate.Every(window / time.Duration(limit)),
		lastSweep: time.Now(),
	}
}

// bucketFor returns the bucket for key. Callers hold rl.mu.
func (rl *RateLimiter) bucketFor(key string, now time.Time) *bucket {
	rl.sweep(now)
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// sweep drops buckets idle for two windows; by then they are full again.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < 2*rl.window {
		return
	}
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > 2*rl.window {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// Allow takes a token for key, reporting false when the bucket is empty.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	return rl.bucketFor(key, now).limiter.AllowN(now, 1)
}

// Remaining reports the whole tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return rl.limit
	}
	return int(math.Max(0, math.Floor(b.limiter.TokensAt(time.Now()))))
}

// rateLimitKey keys authenticated callers by user id and everyone else by
// client IP. Place the middleware after JWT auth for per-user limits.
func rateLimitKey(c *gin.Context) string {
	if userID := GetJWTUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

type limitPolicy struct {
	key     func(*gin.Context) string
	code    string
	message string
}

func (rl *RateLimiter) middleware(p limitPolicy) gin.HandlerFunc {
	limit := strconv.Itoa(rl.limit)
	retryAfter := strconv.Itoa(int(math.Ceil(rl.window.Seconds())))

	return func(c *gin.Context) {
		key := p.key(c)
		c.Header("X-RateLimit-Limit", limit)
		if !rl.Allow(key) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", retryAfter)
			abortWithError(c, http.StatusTooManyRequests, p.code, p.message)
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(key)))
		c.Next()
	}
}

// RateLimit limits every API caller.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return limiter.middleware(limitPolicy{
		key:     rateLimitKey,
		code:    dto.ErrCodeRateLimited,
		message: "Too many requests. Please try again later.",
	})
}

// KYCRateLimit guards the OTP endpoints with a stricter limiter. Its keys are
// prefixed so they never share a bucket with the global limiter.
func KYCRateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return limiter.middleware(limitPolicy{
		key:     func(c *gin.Context) string { return "kyc:" + rateLimitKey(c) },
		code:    dto.ErrCodeKYCRateLimited,
		message: "Too many verification attempts. Please try again later.",
	})
}

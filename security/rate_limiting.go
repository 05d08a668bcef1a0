package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ticket-escrow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		prefix: "ratelimit",
		limit:  int64(limit),
		window: window,
	}
}

// ContractRateLimit is a fixed-window limiter per client IP. Headers are
// not trusted here; per-signer limits apply once signatures are verified.
func (r *RateLimiter) ContractRateLimit(e *core.RequestEvent) error {
	if !r.allow(e.Request.Context(), fmt.Sprintf("%s:ip:%s", r.prefix, e.RemoteIP())) {
		return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
	}
	return e.Next()
}

// LimitSigner counts one request against a verified signer's window.
func (r *RateLimiter) LimitSigner(ctx context.Context, addr models.Address) error {
	if !r.allow(ctx, fmt.Sprintf("%s:addr:%s", r.prefix, strings.ToLower(string(addr)))) {
		return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
	}
	return nil
}

// allow is a fixed-window counter over Redis INCR/EXPIRE. Redis failures
// let the request through.
func (r *RateLimiter) allow(ctx context.Context, key string) bool {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Error("Rate limiter unavailable", "key", key, "error", err)
		return true
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			slog.Error("Failed to set rate limit window", "key", key, "error", err)
		}
	}
	return count <= r.limit
}

// AntiBot rejects requests from obvious crawlers.
func (r *RateLimiter) AntiBot(e *core.RequestEvent) error {
	if isSuspiciousUserAgent(e.Request.UserAgent()) {
		return apis.NewForbiddenError("Access denied", nil)
	}
	return e.Next()
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}

package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const rateWindow = time.Minute

type RateLimiter struct {
	redis redis.UniversalClient
}

func NewRateLimiter(redisClient redis.UniversalClient) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Allow counts one request for id in the current minute and reports whether
// it is within limit.
func (r *RateLimiter) Allow(ctx context.Context, scope, id string, limit int64) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", scope, id)

	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rateWindow)
		return nil
	})
	if err != nil {
		return true, err
	}
	return incr.Val() <= limit, nil
}

// ClientRateLimit limits validation calls per client IP. It runs before
// scanner authentication so bad keys cannot drive unbounded bcrypt work.
func (r *RateLimiter) ClientRateLimit(limit int64) func(e *core.RequestEvent) error {
	return r.middleware("scan-ip", limit, func(e *core.RequestEvent) string {
		return e.RealIP()
	})
}

// ScanRateLimit limits validation calls per scanner device, falling back to
// the client IP when scanner auth is open. Redis outages fail open so gates
// keep working.
func (r *RateLimiter) ScanRateLimit(limit int64) func(e *core.RequestEvent) error {
	return r.middleware("scan", limit, func(e *core.RequestEvent) string {
		if id, _ := e.Get(ScannerIDKey).(string); id != "" {
			return id
		}
		return e.RealIP()
	})
}

func (r *RateLimiter) middleware(scope string, limit int64, identify func(e *core.RequestEvent) string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ok, err := r.Allow(e.Request.Context(), scope, identify(e), limit)
		if err != nil {
			slog.Warn("Rate limiter unavailable", "scope", scope, "error", err)
		}
		if !ok {
			return apis.NewTooManyRequestsError("Too many scans, slow down.", nil)
		}
		return e.Next()
	}
}

// AntiBot guards the public issuance route.
func (r *RateLimiter) AntiBot(limit int64) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		ok, err := r.Allow(e.Request.Context(), "antibot", e.RealIP(), limit)
		if err != nil {
			slog.Warn("Rate limiter unavailable", "error", err)
		}
		if !ok {
			return apis.NewTooManyRequestsError("Too many requests", nil)
		}
		return e.Next()
	}
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

package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig sizes the fixed window shared by register, login and password reset
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	KeyPrefix         string
}

// RateLimitMiddleware throttles the identity routes so credentials and reset
// identifiers cannot be guessed at speed. Each caller gets RequestsPerWindow
// attempts per Window, counted in Redis under KeyPrefix:<caller>. When Redis
// cannot be reached the request goes through.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := rateLimitCaller(r)
			key := fmt.Sprintf("%s:%s", config.KeyPrefix, caller)

			attempts, err := countAttempt(r.Context(), redisClient, key, config.Window, logger)
			if err != nil {
				logger.Error("Rate limit counter unavailable, letting request through",
					zap.Error(err),
					zap.String("key", key),
				)
				next.ServeHTTP(w, r)
				return
			}

			limit := strconv.Itoa(config.RequestsPerWindow)
			w.Header().Set("X-RateLimit-Limit", limit)

			if attempts <= int64(config.RequestsPerWindow) {
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(config.RequestsPerWindow)-attempts, 10))
				next.ServeHTTP(w, r)
				return
			}

			wait := windowRemaining(r.Context(), redisClient, key, config.Window)
			logger.Warn("Too many identity attempts",
				zap.String("caller", caller),
				zap.String("path", r.URL.Path),
				zap.Int64("attempts", attempts),
			)

			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(wait).Unix(), 10))
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
			RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		})
	}
}

// rateLimitCaller is the signed-in user when there is one, else the client host.
// The port is dropped so reconnecting does not open a fresh window.
func rateLimitCaller(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return userID
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// countAttempt records one attempt and returns the total for the current window.
// The first attempt opens the window.
func countAttempt(ctx context.Context, rdb *redis.Client, key string, window time.Duration, logger *zap.Logger) (int64, error) {
	attempts, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if attempts == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			logger.Warn("Failed to open rate limit window", zap.Error(err), zap.String("key", key))
		}
	}
	return attempts, nil
}

func windowRemaining(ctx context.Context, rdb *redis.Client, key string, window time.Duration) time.Duration {
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return window
	}
	return ttl
}

package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kinexbt/coin-yaps/internal/apperrors"
	"github.com/kinexbt/coin-yaps/internal/metrics"
)

// Counter increments a key that expires after window and returns the new
// count
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window Counter backed by Redis
type RedisCounter struct {
	rdb redis.UniversalClient
}

// NewRedisCounter wraps a redis client
func NewRedisCounter(rdb redis.UniversalClient) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Incr implements Counter
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimiter limits write routes per caller
type RateLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewRateLimiter allows limit requests per window per caller. A limit of zero
// disables limiting.
func NewRateLimiter(counter Counter, limit int, window time.Duration, log logrus.FieldLogger) *RateLimiter {
	if window < time.Second {
		window = time.Minute
	}
	return &RateLimiter{counter: counter, limit: limit, window: window, log: log, now: time.Now}
}

// Limit returns middleware for the named route. Callers are keyed by user id,
// or client IP when anonymous. Counter failures let the request through.
func (rl *RateLimiter) Limit(route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.counter == nil || rl.limit <= 0 {
			c.Next()
			return
		}

		caller := "ip:" + c.ClientIP()
		if u := CurrentUser(c); u != nil {
			caller = "user:" + strconv.FormatUint(uint64(u.ID), 10)
		}
		bucket := rl.now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("rate_limit:%s:%s:%d", route, caller, bucket)

		count, err := rl.counter.Incr(c.Request.Context(), key, rl.window)
		if err != nil {
			rl.log.WithError(err).WithField("route", route).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			metrics.RateLimited.WithLabelValues(route).Inc()
			apperrors.Respond(c, rl.log, apperrors.RateLimited("Too many requests, slow down"))
			return
		}
		c.Next()
	}
}

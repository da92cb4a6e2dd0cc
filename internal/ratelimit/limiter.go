package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter is a fixed-window request counter shared by every API replica
// through Redis. A nil *Limiter allows everything.
type Limiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// New returns a limiter allowing limit requests per window per key.
func New(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		rdb:    rdb,
		prefix: "judgerun:ratelimit:",
		limit:  int64(limit),
		window: window,
		now:    time.Now,
		log:    log,
	}
}

// Allow counts one request for key and reports whether it fits in the current
// window, plus how long until the window resets.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.limit <= 0 {
		return true, 0, nil
	}

	now := l.now()
	windowStart := now.Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: %w", err)
	}

	retryAfter := windowStart.Add(l.window).Sub(now)
	return incr.Val() <= l.limit, retryAfter, nil
}

// Middleware rejects requests over the limit with 429. keyFn picks the
// bucket, typically the tenant ID. Redis failures let the request through.
func (l *Limiter) Middleware(keyFn func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter, err := l.Allow(c.Request.Context(), keyFn(c))
		if err != nil {
			l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			secs := int(retryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

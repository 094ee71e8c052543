// Package ratelimiter implements the per-user sliding-window request
// limiter on Redis sorted sets, so limits hold across replicas. Expired
// entries are trimmed on each call and an idle key expires after EvictAfter.
package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/noteqa/ragcore/internal/config"
	"github.com/redis/go-redis/v9"
)

// Limiter enforces a sliding window of RequestsPerWindow per key within
// Window, using a Redis sorted set per key (score = request timestamp).
type Limiter struct {
	client *redis.Client
	cfg    config.RateLimitConfig
}

// New builds a Limiter against an existing Redis client.
func New(client *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{client: client, cfg: cfg}
}

// Result reports the outcome of one Allow check, including the headers
// the HTTP boundary should attach to its response.
type Result struct {
	Allowed    bool
	Remaining  int
	Limit      int
	RetryAfter time.Duration
}

// Allow records one request for key and reports whether it fits within the
// sliding window. Expired entries are trimmed lazily on every call and the
// key itself expires after EvictAfter of inactivity.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	windowStart := now.Add(-l.cfg.Window)
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, redisKey, l.cfg.EvictAfter)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimiter: %w", err)
	}

	count := int(countCmd.Val()) + 1
	if count > l.cfg.RequestsPerWindow {
		oldest, err := l.client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		retryAfter := l.cfg.Window
		if err == nil && len(oldest) > 0 {
			oldestTime := time.Unix(0, int64(oldest[0].Score))
			retryAfter = l.cfg.Window - now.Sub(oldestTime)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return Result{Allowed: false, Remaining: 0, Limit: l.cfg.RequestsPerWindow, RetryAfter: retryAfter}, nil
	}

	return Result{
		Allowed:   true,
		Remaining: l.cfg.RequestsPerWindow - count,
		Limit:     l.cfg.RequestsPerWindow,
	}, nil
}

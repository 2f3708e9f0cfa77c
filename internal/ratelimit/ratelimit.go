// Package ratelimit tracks per-caller request counts against the
// per-tier requests-per-minute ceiling. The ceiling is advisory in
// this design: counts are surfaced to clients via X-RateLimit headers
// but never block a request.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
}

func NewLimiter(redisURL string) (*Limiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	return &Limiter{client: client}, nil
}

// Count increments and returns the caller's request count for the
// current minute window.
func (l *Limiter) Count(ctx context.Context, userID string) (int64, error) {
	key := fmt.Sprintf("rpm:user:%s:%s", userID, time.Now().UTC().Format("2006-01-02-15-04"))

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		l.client.Expire(ctx, key, time.Minute)
	}

	return count, nil
}

func (l *Limiter) Close() error {
	return l.client.Close()
}

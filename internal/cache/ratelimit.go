package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed window counter per user and action.
type RateLimiter struct {
	client redis.Cmdable
	action string
	limit  int
	window time.Duration
}

func NewRateLimiter(client redis.Cmdable, action string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, action: action, limit: limit, window: window}
}

func (l *RateLimiter) key(userID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.action, userID)
}

// Allow counts one request for userID and reports whether it fits the
// window. A limit of zero or less disables limiting.
func (l *RateLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	key := l.key(userID)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return n <= int64(l.limit), nil
}

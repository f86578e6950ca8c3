package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CancelFlags marks campaigns whose running dispatch should stop. Flags
// expire on their own so a stale flag cannot block a later run.
type CancelFlags struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCancelFlags(client redis.Cmdable, ttl time.Duration) *CancelFlags {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CancelFlags{client: client, ttl: ttl}
}

func cancelKey(campaignID string) string { return "campaign:cancel:" + campaignID }

func (f *CancelFlags) Set(ctx context.Context, campaignID string) error {
	if err := f.client.Set(ctx, cancelKey(campaignID), "1", f.ttl).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

func (f *CancelFlags) Cancelled(ctx context.Context, campaignID string) (bool, error) {
	n, err := f.client.Exists(ctx, cancelKey(campaignID)).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel flag: %w", err)
	}
	return n > 0, nil
}

func (f *CancelFlags) Clear(ctx context.Context, campaignID string) error {
	if err := f.client.Del(ctx, cancelKey(campaignID)).Err(); err != nil {
		return fmt.Errorf("clear cancel flag: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/cryptocrawl/pkg/utils"
)

// RedisStore keeps cross-task crawl marks so the service does not re-run a
// target that completed recently.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MarkCrawled sets a TTL key for a completed target URL.
func (s *RedisStore) MarkCrawled(ctx context.Context, targetURL string, ttl time.Duration) error {
	key := fmt.Sprintf("crawled:%s", utils.HashURL(targetURL))
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// IsRecentlyCrawled reports whether the target completed within the TTL.
func (s *RedisStore) IsRecentlyCrawled(ctx context.Context, targetURL string) (bool, error) {
	key := fmt.Sprintf("crawled:%s", utils.HashURL(targetURL))
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

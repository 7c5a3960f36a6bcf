package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitStore реализует repository.RateLimitStore поверх Redis.
// Счетчик живет в ключе с TTL размером в окно: INCR + EXPIRE на первом
// запросе. Состояние разделяется всеми инстансами сервиса.
type RateLimitStore struct {
	client redis.UniversalClient
}

func NewRateLimitStore(client redis.UniversalClient) (*RateLimitStore, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for RateLimitStore")
	}
	return &RateLimitStore{client: client}, nil
}

func (s *RateLimitStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// Первый запрос в окне — устанавливаем TTL
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, fmt.Errorf("failed to set TTL for rate limit key: %w", err)
		}
		return count, window, nil
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

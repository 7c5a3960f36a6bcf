package memory

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count     int64
	windowEnd time.Time
}

// RateLimitStore is an in-process repository.RateLimitStore for
// single-instance deployments. Behind a load balancer it degrades to a
// best-effort per-instance filter; the authoritative per-phone quota
// is enforced in the persisted verification record.
type RateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (s *RateLimitStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || now.After(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(window)}
		s.buckets[key] = b
	}

	b.count++
	return b.count, b.windowEnd.Sub(now), nil
}

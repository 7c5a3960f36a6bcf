package repository

import (
	"context"
	"time"
)

// RateLimitStore backs the fixed-window request limiter. Incr bumps
// the counter for key, starting a new window of the given size when
// none is active, and reports the count within the current window plus
// the time until it resets.
//
// Implementations: Redis (shared across instances) and in-memory
// (single-instance deployments; best-effort only behind a load
// balancer — the authoritative per-phone quota lives in the
// phone_verifications row).
type RateLimitStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

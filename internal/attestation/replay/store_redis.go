package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"skyseal/pkg/platform/sentinel"
)

var checkDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "skyseal_replay_check_duration_ms",
	Help:    "Latency of replay guard check-and-record in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const seenDigestKeyPrefix = "replay:digest:"

// RedisGuard is a Redis-backed replay guard for deployments where multiple
// verifier instances must share replay state. SET NX gives the atomic
// insert-if-absent; the stored value is the first-seen timestamp.
type RedisGuard struct {
	client *redis.Client
	grace  time.Duration
	ttl    time.Duration
}

// NewRedisGuard constructs a Redis-backed replay guard.
func NewRedisGuard(client *redis.Client, grace, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, grace: grace, ttl: ttl}
}

func (g *RedisGuard) CheckAndRecord(ctx context.Context, digestHex string, observedAt time.Time) (Result, error) {
	start := time.Now()
	defer func() {
		checkDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	key := seenDigestKeyPrefix + digestHex

	inserted, err := g.client.SetNX(ctx, key, observedAt.UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return Result{}, fmt.Errorf("replay guard setnx: %w: %v", sentinel.ErrUnavailable, err)
	}
	if inserted {
		return Result{Fresh: true, FirstSeenAt: observedAt}, nil
	}

	raw, err := g.client.Get(ctx, key).Result()
	if err != nil {
		// Key expired between SETNX and GET; anything that old is outside
		// the grace window by construction.
		if err == redis.Nil {
			return Result{Fresh: false}, nil
		}
		return Result{}, fmt.Errorf("replay guard get: %w: %v", sentinel.ErrUnavailable, err)
	}

	firstSeen, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return Result{}, fmt.Errorf("replay guard: corrupt first-seen value %q: %w", raw, err)
	}

	return Result{
		Fresh:       observedAt.Sub(firstSeen) <= g.grace,
		FirstSeenAt: firstSeen,
	}, nil
}

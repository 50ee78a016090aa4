package replay

import (
	"context"
	"sync"
	"time"
)

// InMemoryGuard tracks seen digests in a mutex-guarded map. Single-node only;
// for distributed deployments use RedisGuard so all verifiers share state.
type InMemoryGuard struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	grace time.Duration
	ttl   time.Duration
}

// NewInMemoryGuard builds a guard. grace is the idempotent re-verification
// window; ttl bounds how long entries are kept (freshness window plus grace
// is sufficient, since anything older is stale on its own).
func NewInMemoryGuard(grace, ttl time.Duration) *InMemoryGuard {
	return &InMemoryGuard{
		seen:  make(map[string]time.Time),
		grace: grace,
		ttl:   ttl,
	}
}

// CheckAndRecord performs the atomic check-then-insert under one lock, so two
// concurrent replays of the same envelope cannot both observe "not yet seen".
func (g *InMemoryGuard) CheckAndRecord(_ context.Context, digestHex string, observedAt time.Time) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweep(observedAt)

	if firstSeen, ok := g.seen[digestHex]; ok {
		return Result{
			Fresh:       observedAt.Sub(firstSeen) <= g.grace,
			FirstSeenAt: firstSeen,
		}, nil
	}

	g.seen[digestHex] = observedAt
	return Result{Fresh: true, FirstSeenAt: observedAt}, nil
}

// sweep drops expired entries. Must be called while holding g.mu.
func (g *InMemoryGuard) sweep(now time.Time) {
	if g.ttl <= 0 {
		return
	}
	cutoff := now.Add(-g.ttl)
	for digest, firstSeen := range g.seen {
		if firstSeen.Before(cutoff) {
			delete(g.seen, digest)
		}
	}
}

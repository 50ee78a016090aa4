// Package replay is the freshness and replay guard: the only stateful
// component of the engine. It remembers which digests have already produced a
// verdict and tells concurrent verifiers, atomically, whether a digest is
// being seen for the first time.
package replay

import (
	"context"
	"time"
)

// Result reports one check-and-record outcome.
type Result struct {
	// Fresh is true when this digest has not been recorded before, or when it
	// is being re-checked within the idempotent grace period of its first
	// verification (a UI redisplaying a just-issued attestation is not fraud).
	Fresh bool

	// FirstSeenAt is when the digest was first recorded. For a first sighting
	// it equals the observation time passed in.
	FirstSeenAt time.Time
}

// Guard records digests at verdict time. CheckAndRecord must be atomic: two
// concurrent calls with the same unseen digest must not both report fresh.
type Guard interface {
	CheckAndRecord(ctx context.Context, digestHex string, observedAt time.Time) (Result, error)
}

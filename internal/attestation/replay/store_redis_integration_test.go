//go:build integration

package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyseal/pkg/testutil/containers"
)

func TestRedisGuardCheckAndRecord(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	guard := NewRedisGuard(rc.Client, 90*time.Second, 16*time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()

	res, err := guard.CheckAndRecord(ctx, "digest-a", now)
	require.NoError(t, err)
	assert.True(t, res.Fresh)

	// Re-check within grace: fresh, same first-seen instant.
	res, err = guard.CheckAndRecord(ctx, "digest-a", now.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, res.Fresh)
	assert.WithinDuration(t, now, res.FirstSeenAt, time.Millisecond)

	// Resubmission beyond grace: replay.
	res, err = guard.CheckAndRecord(ctx, "digest-a", now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Fresh)
}

func TestRedisGuardConcurrentInsert(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	guard := NewRedisGuard(rc.Client, 0, time.Hour)
	ctx := context.Background()

	base := time.Now().UTC()
	results := make(chan Result, 16)
	for i := range 16 {
		go func() {
			res, err := guard.CheckAndRecord(ctx, "digest-race", base.Add(time.Duration(i)*time.Microsecond))
			assert.NoError(t, err)
			results <- res
		}()
	}

	firstSeen := make(map[time.Time]struct{})
	for range 16 {
		res := <-results
		firstSeen[res.FirstSeenAt.UTC()] = struct{}{}
	}
	assert.Len(t, firstSeen, 1, "SETNX must admit exactly one inserter")
}

//go:build integration

package keyring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyseal/pkg/platform/sentinel"
	"skyseal/pkg/testutil/containers"
)

const schema = `
CREATE TABLE attestation_keys (
    key_id      TEXT PRIMARY KEY,
    algorithm   TEXT NOT NULL,
    public_key  BYTEA NOT NULL,
    valid_from  TIMESTAMPTZ NOT NULL,
    valid_until TIMESTAMPTZ,
    revoked     BOOLEAN NOT NULL DEFAULT FALSE
)`

func TestPostgresRegistry(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()

	_, err := pc.Pool.Exec(ctx, schema)
	require.NoError(t, err)

	registry := NewPostgresRegistry(pc.Pool)

	record := KeyRecord{
		KeyID:     "attestor-key-01",
		Algorithm: "Ed25519",
		PublicKey: []byte("0123456789abcdef0123456789abcdef"),
		ValidFrom: time.Now().Add(-time.Hour).UTC().Truncate(time.Second),
	}

	t.Run("register and resolve", func(t *testing.T) {
		require.NoError(t, registry.Register(ctx, record))

		found, err := registry.Resolve(ctx, "attestor-key-01")
		require.NoError(t, err)
		assert.Equal(t, record.KeyID, found.KeyID)
		assert.Equal(t, record.PublicKey, found.PublicKey)
		assert.True(t, found.ValidUntil.IsZero(), "NULL valid_until maps to the zero time")
		assert.False(t, found.Revoked)
	})

	t.Run("duplicate register conflicts", func(t *testing.T) {
		assert.ErrorIs(t, registry.Register(ctx, record), sentinel.ErrConflict)
	})

	t.Run("unknown key not found", func(t *testing.T) {
		_, err := registry.Resolve(ctx, "no-such-key")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, registry.Revoke(ctx, "attestor-key-01"))

		found, err := registry.Resolve(ctx, "attestor-key-01")
		require.NoError(t, err)
		assert.True(t, found.Revoked)

		assert.ErrorIs(t, registry.Revoke(ctx, "no-such-key"), sentinel.ErrNotFound)
	})
}

package keyring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"skyseal/pkg/platform/sentinel"
)

// PostgresRegistry persists key records in PostgreSQL for deployments where
// multiple verifier instances share one registry.
//
// Expected schema:
//
//	CREATE TABLE attestation_keys (
//	    key_id      TEXT PRIMARY KEY,
//	    algorithm   TEXT NOT NULL,
//	    public_key  BYTEA NOT NULL,
//	    valid_from  TIMESTAMPTZ NOT NULL,
//	    valid_until TIMESTAMPTZ,
//	    revoked     BOOLEAN NOT NULL DEFAULT FALSE
//	);
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry constructs a PostgreSQL-backed key registry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) Resolve(ctx context.Context, keyID string) (KeyRecord, error) {
	var record KeyRecord
	var validUntil *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT key_id, algorithm, public_key, valid_from, valid_until, revoked
		FROM attestation_keys WHERE key_id = $1
	`, keyID).Scan(&record.KeyID, &record.Algorithm, &record.PublicKey,
		&record.ValidFrom, &validUntil, &record.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return KeyRecord{}, sentinel.ErrNotFound
		}
		return KeyRecord{}, fmt.Errorf("resolve key %q: %w", keyID, errors.Join(sentinel.ErrUnavailable, err))
	}
	if validUntil != nil {
		record.ValidUntil = *validUntil
	}
	return record, nil
}

func (r *PostgresRegistry) Register(ctx context.Context, record KeyRecord) error {
	var validUntil *time.Time
	if !record.ValidUntil.IsZero() {
		validUntil = &record.ValidUntil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attestation_keys (key_id, algorithm, public_key, valid_from, valid_until, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.KeyID, record.Algorithm, record.PublicKey,
		record.ValidFrom, validUntil, record.Revoked)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("register key %q: %w", record.KeyID, err)
	}
	return nil
}

func (r *PostgresRegistry) Revoke(ctx context.Context, keyID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE attestation_keys SET revoked = TRUE WHERE key_id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("revoke key %q: %w", keyID, err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

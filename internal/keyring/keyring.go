// Package keyring is the key-registry collaborator: it owns KeyRecords and
// answers Resolve(keyId) lookups during signature verification. The
// attestation engine only reads records; registration and revocation happen
// over the admin surface.
package keyring

import (
	"context"
	"time"
)

// KeyRecord describes one verification key and its validity window.
type KeyRecord struct {
	KeyID      string    `json:"keyId"`
	Algorithm  string    `json:"algorithm"`
	PublicKey  []byte    `json:"publicKey"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidUntil time.Time `json:"validUntil"`
	Revoked    bool      `json:"revoked"`
}

// Usable reports whether the key may verify signatures at the given instant.
func (k KeyRecord) Usable(at time.Time) bool {
	if k.Revoked {
		return false
	}
	if at.Before(k.ValidFrom) {
		return false
	}
	if !k.ValidUntil.IsZero() && at.After(k.ValidUntil) {
		return false
	}
	return true
}

// Registry resolves and manages key records. Resolve returns
// sentinel.ErrNotFound for unknown ids and wraps infrastructure failures so
// callers can tell "no such key" from "registry unreachable".
type Registry interface {
	Resolve(ctx context.Context, keyID string) (KeyRecord, error)
	Register(ctx context.Context, record KeyRecord) error
	Revoke(ctx context.Context, keyID string) error
}

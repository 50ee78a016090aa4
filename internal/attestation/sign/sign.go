// Package sign computes digests over canonical bytes and produces/verifies
// Ed25519 signatures over those digests. The engine never holds private key
// material itself; it invokes a Signer and receives a signature back.
package sign

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Digest computes the SHA-256 digest of canonical bytes. This is the only
// hash algorithm the engine implements; the envelope records it as "SHA-256".
func Digest(canonical []byte) []byte {
	sum := sha256.Sum256(canonical)
	return sum[:]
}

// DigestHex returns the lowercase hex form stored in integrity.digestHex.
func DigestHex(canonical []byte) string {
	return hex.EncodeToString(Digest(canonical))
}

// Signer is the signing capability collaborator. Implementations hold the
// private key; callers only see signatures and the key id that made them.
type Signer interface {
	Sign(ctx context.Context, digest []byte) (sig []byte, keyID string, err error)
}

// VerifySignature checks an Ed25519 signature over a digest.
func VerifySignature(digest, sig []byte, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, digest, sig)
}

// LocalSigner signs with an in-process Ed25519 key. Suitable for single-node
// deployments and tests; an HSM-backed signer satisfies the same interface.
type LocalSigner struct {
	keyID string
	priv  ed25519.PrivateKey
}

// NewLocalSigner wraps an existing private key under the given key id.
func NewLocalSigner(keyID string, priv ed25519.PrivateKey) *LocalSigner {
	return &LocalSigner{keyID: keyID, priv: priv}
}

// GenerateLocalSigner creates a fresh keypair and returns the signer together
// with the public key for registry seeding.
func GenerateLocalSigner(keyID string) (*LocalSigner, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return NewLocalSigner(keyID, priv), pub, nil
}

func (s *LocalSigner) Sign(_ context.Context, digest []byte) ([]byte, string, error) {
	return ed25519.Sign(s.priv, digest), s.keyID, nil
}

// KeyID reports the id this signer signs under.
func (s *LocalSigner) KeyID() string {
	return s.keyID
}

// Package identity is the identity-proof collaborator port. The engine only
// asks "do you vouch for this subject"; the proof backend itself is external.
package identity

import "context"

// Proof is what a provider returns for a vouched subject. ProofRef is an
// opaque reference recorded on the envelope so auditors can chase the claim.
type Proof struct {
	Verified bool
	ProofRef string
}

// Provider verifies subject identity claims. Unreachable providers return a
// wrapped sentinel.ErrUnavailable, which is retryable and never an
// evidentiary rejection.
type Provider interface {
	VerifySubject(ctx context.Context, subjectID string) (Proof, error)
}

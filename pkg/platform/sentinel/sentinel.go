package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, registries, and collaborator
// clients return these (optionally wrapped) so the attestation service can
// distinguish retryable infrastructure failures from evidentiary rejections.
//
// These represent factual states about resources, not trust failures:
// - ErrNotFound: entity does not exist in a store or registry
// - ErrConflict: insert collided with an existing entity
// - ErrExpired: record is past its validity window
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: oracle, identity provider, or store temporarily unreachable
//
// Trust failures (digest mismatch, bad signature, incoherent sensors) are never
// sentinel errors; they are reason codes on a verdict.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

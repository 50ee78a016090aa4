// Package audit captures structured events about attestation operations:
// what was issued, what was verified, and why something was refused. Events
// are evidence about the engine's behavior, not a system of record for
// envelopes.
package audit

import "time"

// EventType names the auditable actions of the engine.
type EventType string

const (
	EventAttestationIssued   EventType = "attestation_issued"
	EventAttestationVerified EventType = "attestation_verified"
	EventAttestationRejected EventType = "attestation_rejected"
	EventIssueRefused        EventType = "issue_refused"
	EventKeyRegistered       EventType = "key_registered"
	EventKeyRevoked          EventType = "key_revoked"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	SubjectID     string    `json:"subjectId,omitempty"`
	KeyID         string    `json:"keyId,omitempty"`
	DigestHex     string    `json:"digestHex,omitempty"`
	PolicyVersion string    `json:"policyVersion,omitempty"`
	Reasons       []string  `json:"reasons,omitempty"`

	// Client metadata from the request context, for forensics.
	RequestID   string `json:"requestId,omitempty"`
	ClientIP    string `json:"clientIp,omitempty"`
	DeviceLabel string `json:"deviceLabel,omitempty"`
}

// Package attestation defines the data model shared by the attestation
// pipeline: sensor snapshots, oracle readings, the signed envelope exchanged
// between parties, and the verdict a verification produces.
package attestation

import (
	"fmt"
	"strings"
	"time"
)

// Fixed algorithm identifiers stored in every envelope. A verifier must reject
// an envelope whose identifiers do not match what it implements.
const (
	SchemaVersion       = "attestation.v1"
	CanonicalizationAlg = "ss-json-c14n-1"
	HashAlg             = "SHA-256"
	SignatureAlg        = "Ed25519"
)

// ReasonCode is a machine-readable identifier for a verification failure.
type ReasonCode string

const (
	ReasonSchemaInvalid            ReasonCode = "E_SCHEMA_INVALID"
	ReasonDigestMismatch           ReasonCode = "E_DIGEST_MISMATCH"
	ReasonSigInvalid               ReasonCode = "E_SIG_INVALID"
	ReasonOracleDisagreement       ReasonCode = "E_ORACLE_DISAGREEMENT"
	ReasonSensorOutOfRange         ReasonCode = "E_SENSOR_OUT_OF_RANGE"
	ReasonStaleTimestamp           ReasonCode = "E_STALE_TIMESTAMP"
	ReasonReplayDetected           ReasonCode = "E_REPLAY_DETECTED"
	ReasonKeyUnknown               ReasonCode = "E_KEY_UNKNOWN"
	ReasonKeyRevoked               ReasonCode = "E_KEY_REVOKED"
	ReasonPolicyVersionUnsupported ReasonCode = "E_POLICY_VERSION_UNSUPPORTED"

	// Issuance-side refusal; never appears on a verification verdict.
	ReasonIdentityInvalid ReasonCode = "E_IDENTITY_INVALID"
)

// SensorSnapshot is the device-reported environmental capture. Immutable once
// taken; the issuing caller owns it until it is passed into the engine.
type SensorSnapshot struct {
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	CompassDeg   int       `json:"compassDeg"`
	AmbientLux   float64   `json:"ambientLux"`
	UVIndex      float64   `json:"uvIndex"`
	TimestampUTC time.Time `json:"timestampUTC"`
}

// OracleReading is an independent environmental observation for the snapshot's
// location, produced by the weather oracle at issuance or verification time.
type OracleReading struct {
	UVIndex      float64 `json:"uvIndex"`
	WeatherLabel string  `json:"weatherLabel"`
	OracleRef    string  `json:"oracleRef"`
}

// Envelope is the complete signed attestation record. Immutable once issued;
// its digest is a pure function of everything outside integrity and signature.
type Envelope struct {
	SchemaVersion string       `json:"schemaVersion"`
	Subject       Subject      `json:"subject"`
	Context       Context      `json:"context"`
	Verification  Verification `json:"verification"`
	Integrity     Integrity    `json:"integrity"`
	Signature     Signature    `json:"signature"`
}

// Subject binds the attestation to an identity claim.
type Subject struct {
	SubjectID        string `json:"subjectId"`
	IdentityProofRef string `json:"identityProofRef"`
}

// Context carries the sensor-derived evidence the attestation is about.
type Context struct {
	TimestampUTC time.Time   `json:"timestampUTC"`
	Geo          Geo         `json:"geo"`
	Device       Device      `json:"device"`
	Environment  Environment `json:"environment"`
}

type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Device struct {
	CompassDeg int     `json:"compassDeg"`
	AmbientLux float64 `json:"ambientLux"`
}

// Environment pairs the device's UV claim with what the oracle saw.
type Environment struct {
	UVIndex   float64 `json:"uvIndex"`
	Weather   string  `json:"weather"`
	OracleRef string  `json:"oracleRef"`
}

// Verification records the issuance-time coherence outcome and the policy
// version the envelope must be re-evaluated under.
type Verification struct {
	Coherent      bool      `json:"coherent"`
	PolicyVersion string    `json:"policyVersion"`
	RiskScore     float64   `json:"riskScore"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// Integrity names the canonicalization and hash algorithms and stores the
// digest of the canonical payload.
type Integrity struct {
	Canonicalization string `json:"canonicalization"`
	HashAlg          string `json:"hashAlg"`
	DigestHex        string `json:"digestHex"`
}

// Signature holds the asymmetric signature over the digest.
type Signature struct {
	Alg       string `json:"alg"`
	KeyID     string `json:"keyId"`
	SigBase64 string `json:"sigBase64"`
}

// Verdict is the complete result of one verification attempt. Created fresh
// per call; never persisted by this engine.
type Verdict struct {
	OK            bool         `json:"ok"`
	Reasons       []ReasonCode `json:"reasons"`
	RiskScore     float64      `json:"riskScore"`
	PolicyVersion string       `json:"policyVersion"`
}

// IssuanceError reports an evidentiary refusal to issue: the request was
// well-formed but failed a trust check. Infrastructure failures are returned
// as plain errors instead.
type IssuanceError struct {
	Reasons []ReasonCode
}

func (e *IssuanceError) Error() string {
	codes := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		codes[i] = string(r)
	}
	return fmt.Sprintf("issuance refused: %s", strings.Join(codes, ", "))
}

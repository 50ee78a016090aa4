// Package policy holds the versioned acceptance thresholds and the
// reason-code taxonomy. Rules live here, centralized and testable; the
// orchestrator only sequences checks and collects their failures.
package policy

import (
	"math"
	"time"

	"skyseal/internal/attestation"
)

// Policy is one versioned set of numeric thresholds. Envelopes record the
// version they were issued under and are re-evaluated strictly under it.
type Policy struct {
	Version          string
	UVTolerance      float64
	FreshnessWindow  time.Duration
	ReplayGrace      time.Duration
	MaxSnapshotAge   time.Duration
	GeofenceRadiusKm float64 // 0 disables geofencing
}

// Set resolves policy versions. Older versions stay evaluable so envelopes
// issued under them keep verifying.
type Set struct {
	policies map[string]Policy
	active   string
}

// NewSet builds a policy set; the first policy is the active issuance version.
func NewSet(policies ...Policy) *Set {
	s := &Set{policies: make(map[string]Policy, len(policies))}
	for i, p := range policies {
		s.policies[p.Version] = p
		if i == 0 {
			s.active = p.Version
		}
	}
	return s
}

// Resolve returns the policy for a version; ok is false when the version is
// unknown, which verifies as E_POLICY_VERSION_UNSUPPORTED.
func (s *Set) Resolve(version string) (Policy, bool) {
	p, ok := s.policies[version]
	return p, ok
}

// Active returns the policy new envelopes are issued under.
func (s *Set) Active() Policy {
	return s.policies[s.active]
}

// RiskScore maps a UV delta onto [0,1] relative to tolerance, rounded to four
// decimal places.
func RiskScore(uvDelta, tolerance float64) float64 {
	if tolerance <= 0 {
		tolerance = 0.0001
	}
	score := math.Min(uvDelta/tolerance, 1.0)
	return math.Round(score*10000) / 10000
}

// Severity classifies a reason code's effect on the verdict.
type Severity string

const (
	SeverityHard          Severity = "hard"
	SeverityInformational Severity = "informational"
)

type reasonInfo struct {
	severity    Severity
	explanation string
}

var taxonomy = map[attestation.ReasonCode]reasonInfo{
	attestation.ReasonSchemaInvalid:            {SeverityHard, "a required field is missing, mistyped, or the schema/canonicalization identifiers are unrecognized"},
	attestation.ReasonDigestMismatch:           {SeverityHard, "the recomputed digest of the canonical payload does not equal the stored digest"},
	attestation.ReasonSigInvalid:               {SeverityHard, "the signature fails cryptographic verification against the stored digest"},
	attestation.ReasonOracleDisagreement:       {SeverityHard, "the device-reported UV index disagrees with the oracle beyond tolerance"},
	attestation.ReasonSensorOutOfRange:         {SeverityHard, "a sensor field is outside its valid domain"},
	attestation.ReasonStaleTimestamp:           {SeverityHard, "the envelope is older than the freshness window relative to verification time"},
	attestation.ReasonReplayDetected:           {SeverityHard, "this digest was already verified outside the idempotent re-check window"},
	attestation.ReasonKeyUnknown:               {SeverityHard, "no key record matches the envelope's keyId"},
	attestation.ReasonKeyRevoked:               {SeverityHard, "the signing key is revoked or outside its validity window"},
	attestation.ReasonPolicyVersionUnsupported: {SeverityHard, "the envelope's policy version cannot be resolved"},
	attestation.ReasonIdentityInvalid:          {SeverityHard, "the identity provider does not vouch for the subject"},
}

// Describe returns the human-readable explanation for a reason code.
func Describe(code attestation.ReasonCode) string {
	if info, ok := taxonomy[code]; ok {
		return info.explanation
	}
	return "unknown reason code"
}

// SeverityOf returns a code's severity; unknown codes are treated as hard.
func SeverityOf(code attestation.ReasonCode) Severity {
	if info, ok := taxonomy[code]; ok {
		return info.severity
	}
	return SeverityHard
}

// NewVerdict aggregates collected failures into a verdict. The reason order
// is the evaluation order; ok requires that no hard reason was collected.
func NewVerdict(reasons []attestation.ReasonCode, riskScore float64, policyVersion string) *attestation.Verdict {
	ok := true
	for _, r := range reasons {
		if SeverityOf(r) == SeverityHard {
			ok = false
			break
		}
	}
	if reasons == nil {
		reasons = []attestation.ReasonCode{}
	}
	return &attestation.Verdict{
		OK:            ok,
		Reasons:       reasons,
		RiskScore:     riskScore,
		PolicyVersion: policyVersion,
	}
}

package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"skyseal/internal/attestation"
	"skyseal/internal/attestation/policy"
	"skyseal/internal/attestation/replay"
	"skyseal/internal/attestation/sign"
	"skyseal/internal/audit"
	"skyseal/internal/identity"
	"skyseal/internal/keyring"
	"skyseal/internal/oracle"
	"skyseal/pkg/requestcontext"
)

// The suite wires a complete engine from real in-memory components: a local
// Ed25519 signer registered in the key registry, a fixed oracle, a prefix
// identity provider, and an in-memory replay guard. Tests pin "now" through
// the request context so freshness and replay outcomes are deterministic.
type ServiceSuite struct {
	suite.Suite

	now        time.Time
	signer     *sign.LocalSigner
	registry   *keyring.InMemoryRegistry
	guard      *replay.InMemoryGuard
	auditStore *audit.InMemoryStore
	svc        *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	signer, pub, err := sign.GenerateLocalSigner("attestor-key-01")
	s.Require().NoError(err)
	s.signer = signer

	s.registry = keyring.NewInMemoryRegistry()
	s.Require().NoError(s.registry.Register(context.Background(), keyring.KeyRecord{
		KeyID:     "attestor-key-01",
		Algorithm: attestation.SignatureAlg,
		PublicKey: pub,
		ValidFrom: s.now.Add(-time.Hour),
	}))

	pol := policy.Policy{
		Version:         "policy.v1",
		UVTolerance:     1.0,
		FreshnessWindow: 15 * time.Minute,
		ReplayGrace:     90 * time.Second,
		MaxSnapshotAge:  5 * time.Minute,
	}
	s.guard = replay.NewInMemoryGuard(pol.ReplayGrace, pol.FreshnessWindow+pol.ReplayGrace)
	s.auditStore = audit.NewInMemoryStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(Deps{
		Policies: policy.NewSet(pol),
		Signer:   s.signer,
		Keys:     s.registry,
		Identity: identity.NewStaticProvider("notary-"),
		Oracle:   oracle.NewStaticOracle(6.0, "Sunny"),
		Guard:    s.guard,
		Auditor:  audit.NewPublisher(s.auditStore, logger),
		Logger:   logger,
	})
}

func (s *ServiceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ServiceSuite) snapshot() attestation.SensorSnapshot {
	return attestation.SensorSnapshot{
		Latitude:     49.2827,
		Longitude:    -123.1207,
		CompassDeg:   180,
		AmbientLux:   12000,
		UVIndex:      6.2,
		TimestampUTC: s.now.Add(-time.Minute),
	}
}

func (s *ServiceSuite) issue() *attestation.Envelope {
	env, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{
		SubjectID: "notary-7",
		Snapshot:  s.snapshot(),
	})
	s.Require().NoError(err)
	return env
}

func (s *ServiceSuite) TestIssueProducesVerifiableEnvelope() {
	env := s.issue()

	s.Equal(attestation.SchemaVersion, env.SchemaVersion)
	s.Equal("notary-7", env.Subject.SubjectID)
	s.NotEmpty(env.Subject.IdentityProofRef)
	s.Equal(attestation.CanonicalizationAlg, env.Integrity.Canonicalization)
	s.Equal(attestation.HashAlg, env.Integrity.HashAlg)
	s.Len(env.Integrity.DigestHex, 64)
	s.Equal(attestation.SignatureAlg, env.Signature.Alg)
	s.Equal("attestor-key-01", env.Signature.KeyID)
	s.True(env.Verification.Coherent)
	s.Equal("policy.v1", env.Verification.PolicyVersion)
	s.InDelta(0.2, env.Verification.RiskScore, 1e-9, "|6.2-6.0| against tolerance 1.0")
	s.Equal(s.now, env.Verification.IssuedAt)
	s.Equal("Sunny", env.Context.Environment.Weather)

	verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(time.Minute)), env)
	s.Require().NoError(err)
	s.True(verdict.OK)
	s.Empty(verdict.Reasons)
	s.InDelta(0.2, verdict.RiskScore, 1e-9)
	s.Equal("policy.v1", verdict.PolicyVersion)
}

func (s *ServiceSuite) TestIssueRecordsAuditTrail() {
	s.issue()

	events, err := s.auditStore.ListBySubject(context.Background(), "notary-7")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.EventAttestationIssued, events[0].Type)
	s.Equal("attestor-key-01", events[0].KeyID)
	s.NotEmpty(events[0].DigestHex)
}

func (s *ServiceSuite) TestVerifyDetectsPayloadTamper() {
	env := s.issue()
	env.Context.Environment.UVIndex = 6.3

	verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(time.Minute)), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	s.Equal([]attestation.ReasonCode{attestation.ReasonDigestMismatch}, verdict.Reasons,
		"signature is checked against the stored digest, so a payload edit must not also read as E_SIG_INVALID")
}

func (s *ServiceSuite) TestVerifyDetectsSignatureTamper() {
	env := s.issue()

	sig, err := base64.StdEncoding.DecodeString(env.Signature.SigBase64)
	s.Require().NoError(err)
	sig[0] ^= 0x01
	env.Signature.SigBase64 = base64.StdEncoding.EncodeToString(sig)

	verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(time.Minute)), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	s.Equal([]attestation.ReasonCode{attestation.ReasonSigInvalid}, verdict.Reasons,
		"an untouched payload must not also read as E_DIGEST_MISMATCH")
}

func (s *ServiceSuite) TestVerifyDetectsStaleEnvelope() {
	env := s.issue()

	verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(4*time.Hour)), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	s.Equal([]attestation.ReasonCode{attestation.ReasonStaleTimestamp}, verdict.Reasons)
}

func (s *ServiceSuite) TestVerifyReplay() {
	env := s.issue()

	s.Run("first verification is fresh", func() {
		verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(time.Minute)), env)
		s.Require().NoError(err)
		s.True(verdict.OK)
	})

	s.Run("re-verification within grace stays ok", func() {
		verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(time.Minute+30*time.Second)), env)
		s.Require().NoError(err)
		s.True(verdict.OK)
	})

	s.Run("re-verification beyond grace is a replay", func() {
		verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(10*time.Minute)), env)
		s.Require().NoError(err)
		s.False(verdict.OK)
		s.Equal([]attestation.ReasonCode{attestation.ReasonReplayDetected}, verdict.Reasons)
	})
}

func (s *ServiceSuite) TestVerifySchemaInvalid() {
	env := s.issue()
	env.Integrity.Canonicalization = "jcs"

	verdict, err := s.svc.Verify(s.ctxAt(s.now), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	s.Equal([]attestation.ReasonCode{attestation.ReasonSchemaInvalid}, verdict.Reasons,
		"schema failure blocks all later checks")
}

func (s *ServiceSuite) TestVerifyUnknownKey() {
	env := s.issue()
	env.Signature.KeyID = "no-such-key"

	verdict, err := s.svc.Verify(s.ctxAt(s.now), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	// keyId lives outside the canonical payload, so swapping it is neither a
	// digest mismatch nor a signature finding; there is no key to verify with.
	s.Equal([]attestation.ReasonCode{attestation.ReasonKeyUnknown}, verdict.Reasons)
}

func (s *ServiceSuite) TestVerifyRevokedKey() {
	env := s.issue()
	s.Require().NoError(s.registry.Revoke(context.Background(), "attestor-key-01"))

	verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(time.Minute)), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	s.Equal([]attestation.ReasonCode{attestation.ReasonKeyRevoked}, verdict.Reasons,
		"the signature itself still verifies; revocation is the only finding")
}

func (s *ServiceSuite) TestVerifyUnsupportedPolicyVersionSkipsThresholds() {
	env := s.issue()
	env.Verification.PolicyVersion = "policy.v9"

	// Editing the policy version is a payload edit, so both findings appear;
	// coherence and freshness are skipped because no thresholds exist.
	verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(4*time.Hour)), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	s.Contains(verdict.Reasons, attestation.ReasonDigestMismatch)
	s.Contains(verdict.Reasons, attestation.ReasonPolicyVersionUnsupported)
	s.NotContains(verdict.Reasons, attestation.ReasonStaleTimestamp)
	s.NotContains(verdict.Reasons, attestation.ReasonOracleDisagreement)
}

func (s *ServiceSuite) TestVerifyAggregatesIndependentFailures() {
	env := s.issue()
	env.Context.Device.CompassDeg = 400

	verdict, err := s.svc.Verify(s.ctxAt(s.now.Add(time.Hour)), env)
	s.Require().NoError(err)
	s.False(verdict.OK)
	s.Contains(verdict.Reasons, attestation.ReasonDigestMismatch)
	s.Contains(verdict.Reasons, attestation.ReasonSensorOutOfRange)
	s.Contains(verdict.Reasons, attestation.ReasonStaleTimestamp)
}

func (s *ServiceSuite) TestIssueRefusals() {
	s.Run("unvouched subject", func() {
		_, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{
			SubjectID: "stranger-9",
			Snapshot:  s.snapshot(),
		})
		s.requireRefusal(err, attestation.ReasonIdentityInvalid)
	})

	s.Run("sensor out of range", func() {
		snap := s.snapshot()
		snap.CompassDeg = 400
		_, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{SubjectID: "notary-7", Snapshot: snap})
		s.requireRefusal(err, attestation.ReasonSensorOutOfRange)
	})

	s.Run("oracle disagreement", func() {
		snap := s.snapshot()
		snap.UVIndex = 9.0
		_, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{SubjectID: "notary-7", Snapshot: snap})
		s.requireRefusal(err, attestation.ReasonOracleDisagreement)
	})

	s.Run("stale snapshot", func() {
		snap := s.snapshot()
		snap.TimestampUTC = s.now.Add(-time.Hour)
		_, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{SubjectID: "notary-7", Snapshot: snap})
		s.requireRefusal(err, attestation.ReasonStaleTimestamp)
	})

	s.Run("every refusal reason is collected, not just the first", func() {
		snap := s.snapshot()
		snap.CompassDeg = 400
		snap.UVIndex = 9.0
		_, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{SubjectID: "stranger-9", Snapshot: snap})
		s.requireRefusal(err,
			attestation.ReasonIdentityInvalid,
			attestation.ReasonSensorOutOfRange,
			attestation.ReasonOracleDisagreement,
		)
	})
}

func (s *ServiceSuite) requireRefusal(err error, want ...attestation.ReasonCode) {
	s.T().Helper()
	var refusal *attestation.IssuanceError
	s.Require().ErrorAs(err, &refusal)
	for _, code := range want {
		s.Contains(refusal.Reasons, code)
	}
	s.Len(refusal.Reasons, len(want))
}

func (s *ServiceSuite) TestIssueRefusalLeavesNoEnvelopeTrace() {
	_, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{
		SubjectID: "stranger-9",
		Snapshot:  s.snapshot(),
	})
	s.Require().Error(err)

	events, listErr := s.auditStore.ListBySubject(context.Background(), "stranger-9")
	s.Require().NoError(listErr)
	s.Require().Len(events, 1)
	s.Equal(audit.EventIssueRefused, events[0].Type)
}

func (s *ServiceSuite) TestIssueRejectsEmptyRequest() {
	_, err := s.svc.Issue(s.ctxAt(s.now), IssueRequest{Snapshot: s.snapshot()})
	s.Require().Error(err)
	var refusal *attestation.IssuanceError
	s.False(errors.As(err, &refusal), "a malformed request is invalid input, not a refusal")
}

package service

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"skyseal/internal/attestation"
	"skyseal/internal/attestation/canonical"
	"skyseal/internal/attestation/coherence"
	"skyseal/internal/attestation/policy"
	"skyseal/internal/attestation/sign"
	"skyseal/internal/audit"
	"skyseal/pkg/platform/sentinel"
	"skyseal/pkg/requestcontext"
)

// Verify re-derives every trust property of an envelope from scratch and
// aggregates all failures into one verdict. Checks do not short-circuit:
// a digest mismatch and a stale timestamp both appear. The one exception is
// the schema check, which is the prerequisite for every later step; an
// envelope that fails it yields exactly [E_SCHEMA_INVALID].
//
// Verification is read-only until the verdict is reached; only then is the
// digest recorded with the replay guard. Infrastructure failures (registry or
// oracle unreachable, guard down) return an error and record nothing, so a
// caller's retry is not punished as a replay.
func (s *Service) Verify(ctx context.Context, env *attestation.Envelope) (*attestation.Verdict, error) {
	ctx, span := s.tracer.Start(ctx, "attestation.Verify")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveVerifyLatency(time.Since(start)) }()

	now := requestcontext.Now(ctx).UTC()

	if env == nil || !schemaValid(env) {
		return s.finishVerify(ctx, span, env, policy.NewVerdict(
			[]attestation.ReasonCode{attestation.ReasonSchemaInvalid}, 0, storedPolicyVersion(env)))
	}

	canonicalBytes, err := canonical.Canonicalize(canonical.FromEnvelope(env))
	if err != nil {
		return s.finishVerify(ctx, span, env, policy.NewVerdict(
			[]attestation.ReasonCode{attestation.ReasonSchemaInvalid}, 0, env.Verification.PolicyVersion))
	}

	var reasons []attestation.ReasonCode

	// Digest binding: the stored digest must match a recomputation from the
	// canonical payload. The signature below is checked against the STORED
	// digest so a payload edit surfaces as E_DIGEST_MISMATCH alone and a
	// signature edit as E_SIG_INVALID alone, never masking each other.
	if sign.DigestHex(canonicalBytes) != env.Integrity.DigestHex {
		reasons = append(reasons, attestation.ReasonDigestMismatch)
	}
	storedDigest, _ := hex.DecodeString(env.Integrity.DigestHex)

	record, err := s.keys.Resolve(ctx, env.Signature.KeyID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		reasons = append(reasons, attestation.ReasonKeyUnknown)
	case err != nil:
		s.metrics.IncrementVerifyOutcome("error")
		return nil, fmt.Errorf("resolve key %q: %w", env.Signature.KeyID, err)
	case record.Algorithm != attestation.SignatureAlg:
		reasons = append(reasons, attestation.ReasonKeyUnknown)
	default:
		// Revocation and cryptographic validity are independent findings:
		// a revoked key can still have made a mathematically valid signature.
		if !record.Usable(now) {
			reasons = append(reasons, attestation.ReasonKeyRevoked)
		}
		sig, decErr := decodeSignature(env.Signature.SigBase64)
		if decErr != nil || !sign.VerifySignature(storedDigest, sig, ed25519.PublicKey(record.PublicKey)) {
			reasons = append(reasons, attestation.ReasonSigInvalid)
		}
	}

	riskScore := env.Verification.RiskScore

	pol, ok := s.policies.Resolve(env.Verification.PolicyVersion)
	if !ok {
		// Without the policy no threshold is defined, so coherence and
		// freshness cannot be judged. Structural checks above and the replay
		// guard below still run.
		reasons = append(reasons, attestation.ReasonPolicyVersionUnsupported)
	} else {
		oracleStart := time.Now()
		reading, err := s.oracle.Lookup(ctx, env.Context.Geo.Lat, env.Context.Geo.Lon)
		s.metrics.ObserveEvidenceLatency("oracle", time.Since(oracleStart))
		if err != nil {
			s.metrics.IncrementVerifyOutcome("error")
			return nil, fmt.Errorf("oracle lookup: %w", err)
		}

		coh := coherence.Evaluate(snapshotFromEnvelope(env), reading, pol)
		reasons = append(reasons, coh.Reasons...)
		riskScore = policy.RiskScore(coh.UVDelta, pol.UVTolerance)

		if now.Sub(env.Verification.IssuedAt) > pol.FreshnessWindow {
			reasons = append(reasons, attestation.ReasonStaleTimestamp)
		}
	}

	// Replay is checked last so an infrastructure failure in any earlier step
	// never records the digest. A digest is only "spent" by a completed
	// verification.
	replayRes, err := s.guard.CheckAndRecord(ctx, env.Integrity.DigestHex, now)
	if err != nil {
		s.metrics.IncrementVerifyOutcome("error")
		return nil, fmt.Errorf("replay check: %w", err)
	}
	if !replayRes.Fresh {
		reasons = append(reasons, attestation.ReasonReplayDetected)
	}

	return s.finishVerify(ctx, span, env, policy.NewVerdict(reasons, riskScore, env.Verification.PolicyVersion))
}

func (s *Service) finishVerify(ctx context.Context, span trace.Span, env *attestation.Envelope, verdict *attestation.Verdict) (*attestation.Verdict, error) {
	status := "rejected"
	eventType := audit.EventAttestationRejected
	if verdict.OK {
		status = "ok"
		eventType = audit.EventAttestationVerified
	}
	s.metrics.IncrementVerifyOutcome(status)
	for _, r := range verdict.Reasons {
		s.metrics.IncrementReason("verify", string(r))
	}
	span.SetAttributes(
		attribute.Bool("verdict_ok", verdict.OK),
		attribute.StringSlice("reasons", reasonStrings(verdict.Reasons)),
	)

	event := audit.Event{
		Type:          eventType,
		PolicyVersion: verdict.PolicyVersion,
		Reasons:       reasonStrings(verdict.Reasons),
	}
	if env != nil {
		event.SubjectID = env.Subject.SubjectID
		event.KeyID = env.Signature.KeyID
		event.DigestHex = env.Integrity.DigestHex
	}
	s.emitAudit(ctx, event)

	s.logger.InfoContext(ctx, "attestation verified",
		"ok", verdict.OK,
		"reasons", reasonStrings(verdict.Reasons),
		"policy_version", verdict.PolicyVersion,
	)
	return verdict, nil
}

// schemaValid checks the structural prerequisites for verification: the
// algorithm identifiers this engine implements and every field later steps
// dereference.
func schemaValid(env *attestation.Envelope) bool {
	if env.SchemaVersion != attestation.SchemaVersion {
		return false
	}
	if env.Integrity.Canonicalization != attestation.CanonicalizationAlg {
		return false
	}
	if env.Integrity.HashAlg != attestation.HashAlg {
		return false
	}
	if env.Signature.Alg != attestation.SignatureAlg {
		return false
	}
	if env.Subject.SubjectID == "" {
		return false
	}
	if env.Context.TimestampUTC.IsZero() || env.Verification.IssuedAt.IsZero() {
		return false
	}
	if env.Verification.PolicyVersion == "" {
		return false
	}
	if env.Signature.KeyID == "" || env.Signature.SigBase64 == "" {
		return false
	}
	digest, err := hex.DecodeString(env.Integrity.DigestHex)
	if err != nil || len(digest) != 32 {
		return false
	}
	return true
}

func snapshotFromEnvelope(env *attestation.Envelope) attestation.SensorSnapshot {
	return attestation.SensorSnapshot{
		Latitude:     env.Context.Geo.Lat,
		Longitude:    env.Context.Geo.Lon,
		CompassDeg:   env.Context.Device.CompassDeg,
		AmbientLux:   env.Context.Device.AmbientLux,
		UVIndex:      env.Context.Environment.UVIndex,
		TimestampUTC: env.Context.TimestampUTC,
	}
}

func storedPolicyVersion(env *attestation.Envelope) string {
	if env == nil {
		return ""
	}
	return env.Verification.PolicyVersion
}

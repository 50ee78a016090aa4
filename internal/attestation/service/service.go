// Package service orchestrates attestation issuance and verification. It
// sequences the pure building blocks (canonicalization, digest, signature,
// coherence, policy) against the stateful collaborators (key registry, replay
// guard, oracle, identity provider) and aggregates their failures into
// verdicts. The orchestrator itself holds no thresholds; those live in policy.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"skyseal/internal/attestation"
	"skyseal/internal/attestation/canonical"
	"skyseal/internal/attestation/coherence"
	"skyseal/internal/attestation/metrics"
	"skyseal/internal/attestation/policy"
	"skyseal/internal/attestation/replay"
	"skyseal/internal/attestation/sign"
	"skyseal/internal/audit"
	"skyseal/internal/identity"
	"skyseal/internal/keyring"
	dErrors "skyseal/pkg/domain-errors"
	"skyseal/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Consumer-side ports. Narrower than the provider interfaces where the
// orchestrator needs less: verification only ever resolves keys, never
// registers or revokes them.

// DigestSigner produces a signature over a digest under some key id.
type DigestSigner interface {
	Sign(ctx context.Context, digest []byte) (sig []byte, keyID string, err error)
}

// KeyResolver looks up verification key records.
type KeyResolver interface {
	Resolve(ctx context.Context, keyID string) (keyring.KeyRecord, error)
}

// IdentityProvider vouches (or refuses to vouch) for a subject.
type IdentityProvider interface {
	VerifySubject(ctx context.Context, subjectID string) (identity.Proof, error)
}

// WeatherOracle supplies independent environmental readings.
type WeatherOracle interface {
	Lookup(ctx context.Context, lat, lon float64) (attestation.OracleReading, error)
}

// ReplayGuard atomically records digests at verdict time.
type ReplayGuard interface {
	CheckAndRecord(ctx context.Context, digestHex string, observedAt time.Time) (replay.Result, error)
}

// Auditor records audit events for issued, verified, and refused attestations.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Deps are the collaborators the orchestrator sequences.
type Deps struct {
	Policies *policy.Set
	Signer   DigestSigner
	Keys     KeyResolver
	Identity IdentityProvider
	Oracle   WeatherOracle
	Guard    ReplayGuard
	Auditor  Auditor
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Service issues and verifies attestation envelopes.
type Service struct {
	policies *policy.Set
	signer   DigestSigner
	keys     KeyResolver
	identity IdentityProvider
	oracle   WeatherOracle
	guard    ReplayGuard
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func New(deps Deps) *Service {
	return &Service{
		policies: deps.Policies,
		signer:   deps.Signer,
		keys:     deps.Keys,
		identity: deps.Identity,
		oracle:   deps.Oracle,
		guard:    deps.Guard,
		auditor:  deps.Auditor,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		tracer:   otel.Tracer("skyseal/attestation"),
	}
}

// IssueRequest is a caller's request to attest one sensor snapshot.
type IssueRequest struct {
	SubjectID string
	Snapshot  attestation.SensorSnapshot
}

// Issue attests a sensor snapshot: gathers identity and oracle evidence,
// applies the coherence rules under the active policy, and on success returns
// a signed envelope. Evidentiary refusals come back as *IssuanceError with
// every collected reason; infrastructure failures as plain errors. Issuance is
// atomic: no envelope exists unless every step succeeded.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*attestation.Envelope, error) {
	ctx, span := s.tracer.Start(ctx, "attestation.Issue",
		trace.WithAttributes(attribute.String("subject_id", req.SubjectID)))
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveIssueLatency(time.Since(start)) }()

	if req.SubjectID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subjectId is required")
	}
	if req.Snapshot.TimestampUTC.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "snapshot timestamp is required")
	}

	now := requestcontext.Now(ctx).UTC().Truncate(time.Second)
	pol := s.policies.Active()

	evidence, err := s.gatherEvidence(ctx, req)
	if err != nil {
		s.metrics.IncrementIssueOutcome("error")
		return nil, fmt.Errorf("gather evidence: %w", err)
	}

	var reasons []attestation.ReasonCode
	if !evidence.Proof.Verified {
		reasons = append(reasons, attestation.ReasonIdentityInvalid)
	}
	if now.Sub(req.Snapshot.TimestampUTC) > pol.MaxSnapshotAge {
		reasons = append(reasons, attestation.ReasonStaleTimestamp)
	}

	coh := coherence.Evaluate(req.Snapshot, evidence.Reading, pol)
	reasons = append(reasons, coh.Reasons...)

	if len(reasons) > 0 {
		s.metrics.IncrementIssueOutcome("refused")
		for _, r := range reasons {
			s.metrics.IncrementReason("issue", string(r))
		}
		s.emitAudit(ctx, audit.Event{
			Type:          audit.EventIssueRefused,
			SubjectID:     req.SubjectID,
			PolicyVersion: pol.Version,
			Reasons:       reasonStrings(reasons),
		})
		s.logger.InfoContext(ctx, "issuance refused",
			"subject_id", req.SubjectID,
			"reasons", reasonStrings(reasons),
		)
		return nil, &attestation.IssuanceError{Reasons: reasons}
	}

	env := &attestation.Envelope{
		SchemaVersion: attestation.SchemaVersion,
		Subject: attestation.Subject{
			SubjectID:        req.SubjectID,
			IdentityProofRef: evidence.Proof.ProofRef,
		},
		Context: attestation.Context{
			TimestampUTC: req.Snapshot.TimestampUTC.UTC().Truncate(time.Second),
			Geo: attestation.Geo{
				Lat: req.Snapshot.Latitude,
				Lon: req.Snapshot.Longitude,
			},
			Device: attestation.Device{
				CompassDeg: req.Snapshot.CompassDeg,
				AmbientLux: req.Snapshot.AmbientLux,
			},
			Environment: attestation.Environment{
				UVIndex:   req.Snapshot.UVIndex,
				Weather:   evidence.Reading.WeatherLabel,
				OracleRef: evidence.Reading.OracleRef,
			},
		},
		Verification: attestation.Verification{
			Coherent:      true,
			PolicyVersion: pol.Version,
			RiskScore:     policy.RiskScore(coh.UVDelta, pol.UVTolerance),
			IssuedAt:      now,
		},
	}

	canonicalBytes, err := canonical.Canonicalize(canonical.FromEnvelope(env))
	if err != nil {
		s.metrics.IncrementIssueOutcome("error")
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	digest := sign.Digest(canonicalBytes)

	sig, keyID, err := s.signer.Sign(ctx, digest)
	if err != nil {
		s.metrics.IncrementIssueOutcome("error")
		return nil, fmt.Errorf("sign digest: %w", err)
	}

	env.Integrity = attestation.Integrity{
		Canonicalization: attestation.CanonicalizationAlg,
		HashAlg:          attestation.HashAlg,
		DigestHex:        sign.DigestHex(canonicalBytes),
	}
	env.Signature = attestation.Signature{
		Alg:       attestation.SignatureAlg,
		KeyID:     keyID,
		SigBase64: encodeSignature(sig),
	}

	span.SetAttributes(attribute.String("digest_hex", env.Integrity.DigestHex))
	s.metrics.IncrementIssueOutcome("issued")
	s.emitAudit(ctx, audit.Event{
		Type:          audit.EventAttestationIssued,
		SubjectID:     req.SubjectID,
		KeyID:         keyID,
		DigestHex:     env.Integrity.DigestHex,
		PolicyVersion: pol.Version,
	})
	s.logger.InfoContext(ctx, "attestation issued",
		"subject_id", req.SubjectID,
		"key_id", keyID,
		"digest_hex", env.Integrity.DigestHex,
		"risk_score", env.Verification.RiskScore,
	)
	return env, nil
}

// emitAudit records an event; audit failures are logged, never propagated, so
// a broken audit path cannot alter verdicts already reached.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"type", event.Type,
			"error", err,
		)
	}
}

func reasonStrings(reasons []attestation.ReasonCode) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = string(r)
	}
	return out
}

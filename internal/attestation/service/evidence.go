package service

import (
	"context"
	"encoding/base64"
	"time"

	"golang.org/x/sync/errgroup"

	"skyseal/internal/attestation"
	"skyseal/internal/identity"
)

const evidenceTimeout = 5 * time.Second

// gatheredEvidence is what issuance collects before any rule runs.
type gatheredEvidence struct {
	Proof   identity.Proof
	Reading attestation.OracleReading
}

// gatherEvidence fetches the identity proof and the oracle reading in
// parallel with shared cancellation. Any fetch error is an infrastructure
// failure; evidence content is judged later by the rules.
func (s *Service) gatherEvidence(ctx context.Context, req IssueRequest) (*gatheredEvidence, error) {
	ctx, cancel := context.WithTimeout(ctx, evidenceTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	evidence := &gatheredEvidence{}

	g.Go(func() error {
		start := time.Now()
		proof, err := s.identity.VerifySubject(ctx, req.SubjectID)
		s.metrics.ObserveEvidenceLatency("identity", time.Since(start))
		if err != nil {
			return err
		}
		evidence.Proof = proof
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		reading, err := s.oracle.Lookup(ctx, req.Snapshot.Latitude, req.Snapshot.Longitude)
		s.metrics.ObserveEvidenceLatency("oracle", time.Since(start))
		if err != nil {
			return err
		}
		evidence.Reading = reading
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return evidence, nil
}

func encodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}

func decodeSignature(sigBase64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(sigBase64)
}

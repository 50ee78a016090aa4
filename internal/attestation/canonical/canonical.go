// Package canonical produces the one deterministic byte form of an attestation
// payload. Two field-wise equal payloads canonicalize to identical bytes no
// matter how they were constructed, which is what makes the digest a tamper
// anchor rather than a serialization accident.
package canonical

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"

	"skyseal/internal/attestation"
	dErrors "skyseal/pkg/domain-errors"
)

// Payload is the digested portion of an envelope: everything outside the
// integrity and signature blocks. Derived, never mutated after creation.
type Payload struct {
	SchemaVersion string
	Subject       attestation.Subject
	Context       attestation.Context
	Verification  attestation.Verification
}

// FromEnvelope extracts the canonical payload of an envelope. Verifiers use
// this to recompute the digest independently of the issuer.
func FromEnvelope(env *attestation.Envelope) Payload {
	return Payload{
		SchemaVersion: env.SchemaVersion,
		Subject:       env.Subject,
		Context:       env.Context,
		Verification:  env.Verification,
	}
}

// Canonicalize serializes a payload into its unique byte form: JSON with
// lexicographically sorted keys, no insignificant whitespace, shortest
// round-trip float text, RFC3339 UTC timestamps at second precision.
// Pure and safe for concurrent use. Returns a malformed_payload domain error
// if a field violates its type or required-field constraints.
func Canonicalize(p Payload) ([]byte, error) {
	if p.SchemaVersion == "" {
		return nil, dErrors.New(dErrors.CodeMalformedPayload, "schemaVersion is required")
	}
	if p.Subject.SubjectID == "" {
		return nil, dErrors.New(dErrors.CodeMalformedPayload, "subject.subjectId is required")
	}
	if p.Context.TimestampUTC.IsZero() {
		return nil, dErrors.New(dErrors.CodeMalformedPayload, "context.timestampUTC is required")
	}
	if p.Verification.IssuedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeMalformedPayload, "verification.issuedAt is required")
	}

	var buf bytes.Buffer
	err := writeValue(&buf, map[string]any{
		"schemaVersion": p.SchemaVersion,
		"subject": map[string]any{
			"subjectId":        p.Subject.SubjectID,
			"identityProofRef": p.Subject.IdentityProofRef,
		},
		"context": map[string]any{
			"timestampUTC": p.Context.TimestampUTC,
			"geo": map[string]any{
				"lat": p.Context.Geo.Lat,
				"lon": p.Context.Geo.Lon,
			},
			"device": map[string]any{
				"compassDeg": p.Context.Device.CompassDeg,
				"ambientLux": p.Context.Device.AmbientLux,
			},
			"environment": map[string]any{
				"uvIndex":   p.Context.Environment.UVIndex,
				"weather":   p.Context.Environment.Weather,
				"oracleRef": p.Context.Environment.OracleRef,
			},
		},
		"verification": map[string]any{
			"coherent":      p.Verification.Coherent,
			"policyVersion": p.Verification.PolicyVersion,
			"riskScore":     p.Verification.RiskScore,
			"issuedAt":      p.Verification.IssuedAt,
		},
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeValue appends the canonical text of v. Map keys are sorted
// lexicographically; every scalar has exactly one textual form.
func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case string:
		escaped, err := json.Marshal(t)
		if err != nil {
			return dErrors.Newf(dErrors.CodeMalformedPayload, "unencodable string: %v", err)
		}
		buf.Write(escaped)
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case int:
		buf.WriteString(strconv.Itoa(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return dErrors.New(dErrors.CodeMalformedPayload, "numeric field must be finite")
		}
		buf.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
	case time.Time:
		buf.WriteByte('"')
		buf.WriteString(t.UTC().Truncate(time.Second).Format(time.RFC3339))
		buf.WriteByte('"')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(k))
			buf.WriteByte(':')
			if err := writeValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return dErrors.Newf(dErrors.CodeMalformedPayload, "unsupported field type %T", v)
	}
	return nil
}

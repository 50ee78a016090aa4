package canonical

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyseal/internal/attestation"
	dErrors "skyseal/pkg/domain-errors"
)

func validPayload() Payload {
	captured := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return Payload{
		SchemaVersion: attestation.SchemaVersion,
		Subject: attestation.Subject{
			SubjectID:        "notary-001",
			IdentityProofRef: "idp-ref-1",
		},
		Context: attestation.Context{
			TimestampUTC: captured,
			Geo:          attestation.Geo{Lat: 49.2827, Lon: -123.1207},
			Device:       attestation.Device{CompassDeg: 270, AmbientLux: 45000},
			Environment:  attestation.Environment{UVIndex: 6, Weather: "Sunny", OracleRef: "oracle-1"},
		},
		Verification: attestation.Verification{
			Coherent:      true,
			PolicyVersion: "policy.v1",
			RiskScore:     0.2,
			IssuedAt:      captured.Add(5 * time.Second),
		},
	}
}

func TestCanonicalizeDeterminism(t *testing.T) {
	first, err := Canonicalize(validPayload())
	require.NoError(t, err)
	second, err := Canonicalize(validPayload())
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical payloads must canonicalize to identical bytes")
}

func TestCanonicalizeConstructionOrderIrrelevant(t *testing.T) {
	// Build the same logical payload by mutating fields in a different order.
	p := Payload{}
	p.Verification = validPayload().Verification
	p.Context = validPayload().Context
	p.SchemaVersion = attestation.SchemaVersion
	p.Subject = validPayload().Subject

	a, err := Canonicalize(validPayload())
	require.NoError(t, err)
	b, err := Canonicalize(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalizeSortsKeysAndStripsWhitespace(t *testing.T) {
	out, err := Canonicalize(validPayload())
	require.NoError(t, err)

	s := string(out)
	assert.NotContains(t, s, " ", "canonical form has no whitespace")
	// Top-level keys appear in lexicographic order.
	assert.Regexp(t, `^\{"context":.*"schemaVersion":.*"subject":.*"verification":`, s)
	// Floats use the shortest round-trip decimal form.
	assert.Contains(t, s, `"lat":49.2827`)
	assert.Contains(t, s, `"lon":-123.1207`)
	assert.Contains(t, s, `"uvIndex":6`)
	// Timestamps are RFC3339 UTC at second precision.
	assert.Contains(t, s, `"timestampUTC":"2025-06-01T12:00:00Z"`)
}

func TestCanonicalizeSubSecondPrecisionCollapses(t *testing.T) {
	a := validPayload()
	b := validPayload()
	b.Context.TimestampUTC = b.Context.TimestampUTC.Add(300 * time.Millisecond)

	ab, err := Canonicalize(a)
	require.NoError(t, err)
	bb, err := Canonicalize(b)
	require.NoError(t, err)
	assert.Equal(t, ab, bb, "canonical timestamps truncate to seconds")
}

func TestCanonicalizeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Payload)
	}{
		{"missing schema version", func(p *Payload) { p.SchemaVersion = "" }},
		{"missing subject id", func(p *Payload) { p.Subject.SubjectID = "" }},
		{"zero capture timestamp", func(p *Payload) { p.Context.TimestampUTC = time.Time{} }},
		{"zero issuedAt", func(p *Payload) { p.Verification.IssuedAt = time.Time{} }},
		{"NaN uv index", func(p *Payload) { p.Context.Environment.UVIndex = math.NaN() }},
		{"infinite lux", func(p *Payload) { p.Context.Device.AmbientLux = math.Inf(1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			_, err := Canonicalize(p)
			require.Error(t, err)
			assert.Equal(t, dErrors.CodeMalformedPayload, dErrors.CodeOf(err))
		})
	}
}

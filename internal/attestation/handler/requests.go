package handler

import (
	"strings"
	"time"

	"skyseal/internal/attestation"
	"skyseal/internal/attestation/service"
	dErrors "skyseal/pkg/domain-errors"
)

// IssueRequest is the HTTP request body for POST /attestations/issue.
type IssueRequest struct {
	SubjectID string          `json:"subjectId"`
	Snapshot  SnapshotRequest `json:"snapshot"`
}

// SnapshotRequest is the sensor capture portion of an issue request.
type SnapshotRequest struct {
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	CompassDeg   int       `json:"compassDeg"`
	AmbientLux   float64   `json:"ambientLux"`
	UVIndex      float64   `json:"uvIndex"`
	TimestampUTC time.Time `json:"timestampUTC"`
}

// Validate checks structural well-formedness. Range and trust checks belong to
// the engine; a snapshot with a compass of 400 is a refusal, not a 400.
func (r *IssueRequest) Validate() error {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subjectId is required")
	}
	if len(r.SubjectID) > 128 {
		return dErrors.New(dErrors.CodeInvalidInput, "subjectId must be at most 128 characters")
	}
	if r.Snapshot.TimestampUTC.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "snapshot.timestampUTC is required")
	}
	return nil
}

// Domain converts the request into the engine's input type.
func (r *IssueRequest) Domain() service.IssueRequest {
	return service.IssueRequest{
		SubjectID: r.SubjectID,
		Snapshot: attestation.SensorSnapshot{
			Latitude:     r.Snapshot.Latitude,
			Longitude:    r.Snapshot.Longitude,
			CompassDeg:   r.Snapshot.CompassDeg,
			AmbientLux:   r.Snapshot.AmbientLux,
			UVIndex:      r.Snapshot.UVIndex,
			TimestampUTC: r.Snapshot.TimestampUTC,
		},
	}
}

// VerifyRequest is the HTTP request body for POST /attestations/verify: the
// envelope to verify, exactly as issued. No validation here; the schema check
// is part of verification itself and yields a verdict, not a 400.
type VerifyRequest struct {
	Envelope attestation.Envelope `json:"envelope"`
}

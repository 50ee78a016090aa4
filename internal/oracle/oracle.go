// Package oracle is the weather/UV oracle collaborator: an independent
// environmental observation source used to cross-check device sensors.
package oracle

import (
	"context"

	"skyseal/internal/attestation"
)

// Oracle looks up current conditions for a location. Lookup failures
// (unreachable, timeout, unknown location) are wrapped
// sentinel.ErrUnavailable: retryable infrastructure conditions, not evidence
// of spoofing.
type Oracle interface {
	Lookup(ctx context.Context, lat, lon float64) (attestation.OracleReading, error)
}

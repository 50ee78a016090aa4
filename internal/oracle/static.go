package oracle

import (
	"context"

	"skyseal/internal/attestation"
)

// StaticOracle returns a fixed reading regardless of location. Development
// and test stand-in for a live weather service.
type StaticOracle struct {
	Reading attestation.OracleReading
}

// NewStaticOracle builds an oracle that always reports the given conditions.
func NewStaticOracle(uvIndex float64, weather string) *StaticOracle {
	return &StaticOracle{Reading: attestation.OracleReading{
		UVIndex:      uvIndex,
		WeatherLabel: weather,
		OracleRef:    "static-oracle",
	}}
}

func (o *StaticOracle) Lookup(context.Context, float64, float64) (attestation.OracleReading, error) {
	return o.Reading, nil
}

// Package coherence cross-checks device-reported sensor values against an
// independent oracle reading. It annotates; it never rejects. The policy
// engine decides what an incoherent snapshot means for the verdict.
package coherence

import (
	"math"

	"skyseal/internal/attestation"
	"skyseal/internal/attestation/policy"
)

// Result is the coherence annotation for one snapshot/oracle pair.
type Result struct {
	Coherent      bool
	UVDelta       float64
	OracleUV      float64
	OracleWeather string

	// Reasons lists the specific failures: E_SENSOR_OUT_OF_RANGE for domain
	// violations, E_ORACLE_DISAGREEMENT for a UV delta beyond tolerance.
	Reasons []attestation.ReasonCode
}

// Evaluate applies the coherence rules under the given policy. Pure function;
// safe for concurrent use.
func Evaluate(snapshot attestation.SensorSnapshot, oracle attestation.OracleReading, pol policy.Policy) Result {
	res := Result{
		UVDelta:       math.Abs(snapshot.UVIndex - oracle.UVIndex),
		OracleUV:      oracle.UVIndex,
		OracleWeather: oracle.WeatherLabel,
	}

	if !rangesValid(snapshot) {
		res.Reasons = append(res.Reasons, attestation.ReasonSensorOutOfRange)
	}
	if res.UVDelta > pol.UVTolerance {
		res.Reasons = append(res.Reasons, attestation.ReasonOracleDisagreement)
	}

	res.Coherent = len(res.Reasons) == 0
	return res
}

// rangesValid checks every sensor field against its declared domain.
func rangesValid(s attestation.SensorSnapshot) bool {
	switch {
	case s.CompassDeg < 0 || s.CompassDeg > 359:
		return false
	case s.AmbientLux < 0:
		return false
	case s.UVIndex < 0:
		return false
	case s.Latitude < -90 || s.Latitude > 90:
		return false
	case s.Longitude < -180 || s.Longitude > 180:
		return false
	}
	return true
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the attestation engine.
type Server struct {
	Addr string

	// Collaborators
	RedisURL     string
	PostgresDSN  string
	KafkaBrokers []string
	OracleURL    string

	// Admin surface
	AdminJWTKey string

	// Signing identity. An empty seed generates an ephemeral keypair at
	// startup, which only suits development: envelopes stop verifying after a
	// restart.
	KeyID          string
	SigningSeedHex string

	// Policy tuning for the active policy version. Values feed the versioned
	// policy set; envelopes record which version they were issued under.
	PolicyVersion   string
	UVTolerance     float64
	FreshnessWindow time.Duration
	ReplayGrace     time.Duration
	MaxSnapshotAge  time.Duration

	OracleTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:            envOr("SKYSEAL_ADDR", ":8080"),
		RedisURL:        os.Getenv("SKYSEAL_REDIS_URL"),
		PostgresDSN:     os.Getenv("SKYSEAL_POSTGRES_DSN"),
		OracleURL:       os.Getenv("SKYSEAL_ORACLE_URL"),
		AdminJWTKey:     envOr("SKYSEAL_ADMIN_JWT_KEY", "dev-secret-key-change-in-production"),
		KeyID:           envOr("SKYSEAL_KEY_ID", "attestor-key-01"),
		SigningSeedHex:  os.Getenv("SKYSEAL_SIGNING_SEED_HEX"),
		PolicyVersion:   envOr("SKYSEAL_POLICY_VERSION", "policy.v1"),
		UVTolerance:     envFloat("SKYSEAL_UV_TOLERANCE", 1.0),
		FreshnessWindow: envDuration("SKYSEAL_FRESHNESS_WINDOW", 15*time.Minute),
		ReplayGrace:     envDuration("SKYSEAL_REPLAY_GRACE", 90*time.Second),
		MaxSnapshotAge:  envDuration("SKYSEAL_MAX_SNAPSHOT_AGE", 5*time.Minute),
		OracleTimeout:   envDuration("SKYSEAL_ORACLE_TIMEOUT", 3*time.Second),
	}
	if brokers := os.Getenv("SKYSEAL_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

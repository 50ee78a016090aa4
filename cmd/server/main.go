// Command server runs the attestation engine: issuance and verification over
// HTTP, backed by whichever collaborators the environment configures. With no
// environment at all it runs self-contained on in-memory stores, an ephemeral
// signing key, and a static oracle, which is enough to exercise the full API
// locally.
package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"skyseal/internal/attestation"
	attesthandler "skyseal/internal/attestation/handler"
	"skyseal/internal/attestation/metrics"
	"skyseal/internal/attestation/policy"
	"skyseal/internal/attestation/replay"
	"skyseal/internal/attestation/service"
	"skyseal/internal/attestation/sign"
	"skyseal/internal/audit"
	audithandler "skyseal/internal/audit/handler"
	"skyseal/internal/identity"
	"skyseal/internal/keyring"
	keyhandler "skyseal/internal/keyring/handler"
	"skyseal/internal/oracle"
	"skyseal/internal/platform/config"
	"skyseal/internal/platform/httpserver"
	"skyseal/internal/platform/logger"
	platformredis "skyseal/internal/platform/redis"
	httptransport "skyseal/internal/transport/http"
	"skyseal/pkg/platform/middleware/adminauth"
	"skyseal/pkg/platform/sentinel"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]httptransport.HealthCheck{}

	// Replay guard: Redis when configured, otherwise single-node in-memory.
	guardTTL := cfg.FreshnessWindow + cfg.ReplayGrace
	var guard service.ReplayGuard = replay.NewInMemoryGuard(cfg.ReplayGrace, guardTTL)
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		guard = replay.NewRedisGuard(redisClient.Client, cfg.ReplayGrace, guardTTL)
		health["redis"] = redisClient.Health
		log.Info("replay guard backed by redis")
	}

	// Key registry and audit store: Postgres when configured.
	var (
		registry   keyring.Registry = keyring.NewInMemoryRegistry()
		auditStore audit.Store      = audit.NewInMemoryStore()
	)
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		registry = keyring.NewPostgresRegistry(pool)
		health["postgres"] = pool.Ping

		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres for audit: %w", err)
		}
		defer db.Close()
		auditStore = audit.NewPostgresStore(db)
		log.Info("keyring and audit backed by postgres")
	}

	// Audit fan-out to Kafka when brokers are configured.
	auditOpts := []audit.Option{}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, audit.DefaultTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
		log.Info("audit events fan out to kafka", "topic", audit.DefaultTopic)
	}
	publisher := audit.NewPublisher(auditStore, log, auditOpts...)

	signer, err := buildSigner(ctx, cfg, registry, log)
	if err != nil {
		return err
	}

	var oracleClient service.WeatherOracle = oracle.NewStaticOracle(6.0, "Sunny")
	if cfg.OracleURL != "" {
		oracleClient = oracle.NewHTTPClient(cfg.OracleURL, cfg.OracleTimeout)
	} else {
		log.Warn("no oracle configured, using static readings")
	}

	policies := policy.NewSet(policy.Policy{
		Version:         cfg.PolicyVersion,
		UVTolerance:     cfg.UVTolerance,
		FreshnessWindow: cfg.FreshnessWindow,
		ReplayGrace:     cfg.ReplayGrace,
		MaxSnapshotAge:  cfg.MaxSnapshotAge,
	})

	svc := service.New(service.Deps{
		Policies: policies,
		Signer:   signer,
		Keys:     registry,
		Identity: identity.NewStaticProvider("notary-"),
		Oracle:   oracleClient,
		Guard:    guard,
		Auditor:  publisher,
		Logger:   log,
		Metrics:  metrics.New(),
	})

	router := httptransport.NewRouter(httptransport.Deps{
		Attestations: attesthandler.New(svc, log),
		Keys:         keyhandler.New(registry, publisher, log),
		Audit:        audithandler.New(auditStore, log),
		AdminAuth:    adminauth.NewValidator(cfg.AdminJWTKey, "skyseal"),
		Logger:       log,
		Health:       health,
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting skyseal attestation engine", "addr", cfg.Addr, "policy_version", cfg.PolicyVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// buildSigner creates the signing identity and makes sure its public key is
// resolvable in the registry, so freshly issued envelopes verify immediately.
func buildSigner(ctx context.Context, cfg config.Server, registry keyring.Registry, log *slog.Logger) (*sign.LocalSigner, error) {
	var (
		signer *sign.LocalSigner
		pub    ed25519.PublicKey
	)
	if cfg.SigningSeedHex != "" {
		seed, err := hex.DecodeString(cfg.SigningSeedHex)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("SKYSEAL_SIGNING_SEED_HEX must be %d hex-encoded bytes", ed25519.SeedSize)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		signer = sign.NewLocalSigner(cfg.KeyID, priv)
		pub = priv.Public().(ed25519.PublicKey)
	} else {
		var err error
		signer, pub, err = sign.GenerateLocalSigner(cfg.KeyID)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		log.Warn("using ephemeral signing key, envelopes will not verify across restarts", "key_id", cfg.KeyID)
	}

	err := registry.Register(ctx, keyring.KeyRecord{
		KeyID:     cfg.KeyID,
		Algorithm: attestation.SignatureAlg,
		PublicKey: pub,
		ValidFrom: time.Now().UTC(),
	})
	// An existing record for this key id is fine on restart.
	if err != nil && !errors.Is(err, sentinel.ErrConflict) {
		return nil, fmt.Errorf("register signing key: %w", err)
	}
	log.Info("signing key ready", "key_id", cfg.KeyID)
	return signer, nil
}

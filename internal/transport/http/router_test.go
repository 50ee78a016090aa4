package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyseal/internal/attestation"
	attesthandler "skyseal/internal/attestation/handler"
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
	"skyseal/pkg/platform/middleware/adminauth"
)

// newStack wires the full engine behind the real router, end to end, with
// in-memory components.
func newStack(t *testing.T) (*httptest.Server, *adminauth.Validator) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, pub, err := sign.GenerateLocalSigner("attestor-key-01")
	require.NoError(t, err)

	registry := keyring.NewInMemoryRegistry()
	require.NoError(t, registry.Register(context.Background(), keyring.KeyRecord{
		KeyID:     "attestor-key-01",
		Algorithm: attestation.SignatureAlg,
		PublicKey: pub,
		ValidFrom: time.Now().Add(-time.Hour),
	}))

	pol := policy.Policy{
		Version:         "policy.v1",
		UVTolerance:     1.0,
		FreshnessWindow: 15 * time.Minute,
		ReplayGrace:     90 * time.Second,
		MaxSnapshotAge:  5 * time.Minute,
	}
	auditStore := audit.NewInMemoryStore()
	publisher := audit.NewPublisher(auditStore, logger)

	svc := service.New(service.Deps{
		Policies: policy.NewSet(pol),
		Signer:   signer,
		Keys:     registry,
		Identity: identity.NewStaticProvider("notary-"),
		Oracle:   oracle.NewStaticOracle(6.0, "Sunny"),
		Guard:    replay.NewInMemoryGuard(pol.ReplayGrace, pol.FreshnessWindow+pol.ReplayGrace),
		Auditor:  publisher,
		Logger:   logger,
	})

	validator := adminauth.NewValidator("test-signing-key", "skyseal-test")

	router := NewRouter(Deps{
		Attestations: attesthandler.New(svc, logger),
		Keys:         keyhandler.New(registry, publisher, logger),
		Audit:        audithandler.New(auditStore, logger),
		AdminAuth:    validator,
		Logger:       logger,
		Health: map[string]HealthCheck{
			"self": func(context.Context) error { return nil },
		},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, validator
}

func TestIssueThenVerifyOverHTTP(t *testing.T) {
	srv, _ := newStack(t)

	issueBody, err := json.Marshal(map[string]any{
		"subjectId": "notary-7",
		"snapshot": map[string]any{
			"latitude":     49.2827,
			"longitude":    -123.1207,
			"compassDeg":   180,
			"ambientLux":   12000,
			"uvIndex":      6.2,
			"timestampUTC": time.Now().UTC(),
		},
	})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/attestations/issue", "application/json", bytes.NewReader(issueBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	var issued attesthandler.IssueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))

	verifyBody, err := json.Marshal(map[string]any{"envelope": issued.Envelope})
	require.NoError(t, err)

	resp, err = http.Post(srv.URL+"/attestations/verify", "application/json", bytes.NewReader(verifyBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var verdict attesthandler.VerdictResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verdict))
	assert.True(t, verdict.OK)
	assert.Empty(t, verdict.Reasons)
}

func TestAdminSurfaceRequiresToken(t *testing.T) {
	srv, validator := newStack(t)

	resp, err := http.Post(srv.URL+"/admin/keys/attestor-key-01/revoke", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := validator.GenerateToken("ops@skyseal", time.Minute)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/keys/attestor-key-01/revoke", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminAuditListing(t *testing.T) {
	srv, validator := newStack(t)

	issueBody, err := json.Marshal(map[string]any{
		"subjectId": "stranger-1",
		"snapshot":  map[string]any{"uvIndex": 6.2, "timestampUTC": time.Now().UTC()},
	})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/attestations/issue", "application/json", bytes.NewReader(issueBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "unvouched subject is refused")

	token, err := validator.GenerateToken("ops@skyseal", time.Minute)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/admin/audit?subjectId=stranger-1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, audit.EventIssueRefused, body.Events[0].Type)
	assert.NotEmpty(t, body.Events[0].RequestID, "middleware metadata reaches audit events")
}

func TestHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv, _ := newStack(t)
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("failing dependency flips to 503", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		router := NewRouter(Deps{
			Attestations: attesthandler.New(&nopService{}, logger),
			Keys:         keyhandler.New(keyring.NewInMemoryRegistry(), nil, logger),
			AdminAuth:    adminauth.NewValidator("k", "i"),
			Logger:       logger,
			Health: map[string]HealthCheck{
				"redis": func(context.Context) error { return errors.New("connection refused") },
			},
		})
		srv := httptest.NewServer(router)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

type nopService struct{}

func (*nopService) Issue(context.Context, service.IssueRequest) (*attestation.Envelope, error) {
	return nil, errors.New("not wired")
}

func (*nopService) Verify(context.Context, *attestation.Envelope) (*attestation.Verdict, error) {
	return nil, errors.New("not wired")
}

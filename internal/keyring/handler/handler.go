// Package handler exposes the admin key-management surface: registering
// verification keys and revoking them. Mounted behind the admin JWT
// middleware; it never touches private key material.
package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"skyseal/internal/attestation"
	"skyseal/internal/audit"
	"skyseal/internal/keyring"
	dErrors "skyseal/pkg/domain-errors"
	"skyseal/pkg/platform/httputil"
)

// Handler wires key registry endpoints to the registry.
type Handler struct {
	registry keyring.Registry
	auditor  *audit.Publisher
	logger   *slog.Logger
}

func New(registry keyring.Registry, auditor *audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, auditor: auditor, logger: logger}
}

// Register mounts key management endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/keys", h.HandleRegisterKey)
	r.Post("/admin/keys/{keyID}/revoke", h.HandleRevokeKey)
}

// RegisterKeyRequest is the HTTP request body for POST /admin/keys.
type RegisterKeyRequest struct {
	KeyID           string    `json:"keyId"`
	Algorithm       string    `json:"algorithm"`
	PublicKeyBase64 string    `json:"publicKeyBase64"`
	ValidFrom       time.Time `json:"validFrom"`
	ValidUntil      time.Time `json:"validUntil"`

	publicKey []byte
}

// Validate checks and parses the registration request.
func (r *RegisterKeyRequest) Validate() error {
	r.KeyID = strings.TrimSpace(r.KeyID)
	if r.KeyID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "keyId is required")
	}
	if r.Algorithm != attestation.SignatureAlg {
		return dErrors.Newf(dErrors.CodeInvalidInput, "algorithm must be %q", attestation.SignatureAlg)
	}
	key, err := base64.StdEncoding.DecodeString(r.PublicKeyBase64)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "publicKeyBase64 must be valid base64")
	}
	if len(key) != 32 {
		return dErrors.New(dErrors.CodeInvalidInput, "public key must be 32 bytes")
	}
	r.publicKey = key
	return nil
}

// HandleRegisterKey handles POST /admin/keys requests.
func (h *Handler) HandleRegisterKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[RegisterKeyRequest](w, r, h.logger)
	if !ok {
		return
	}

	record := keyring.KeyRecord{
		KeyID:      req.KeyID,
		Algorithm:  req.Algorithm,
		PublicKey:  req.publicKey,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
	}
	if record.ValidFrom.IsZero() {
		record.ValidFrom = time.Now().UTC()
	}

	if err := h.registry.Register(ctx, record); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.emitAudit(ctx, audit.EventKeyRegistered, req.KeyID)
	h.logger.InfoContext(ctx, "verification key registered", "key_id", req.KeyID)
	httputil.WriteJSON(w, http.StatusCreated, record)
}

// HandleRevokeKey handles POST /admin/keys/{keyID}/revoke requests.
func (h *Handler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID := chi.URLParam(r, "keyID")

	if err := h.registry.Revoke(ctx, keyID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.emitAudit(ctx, audit.EventKeyRevoked, keyID)
	h.logger.InfoContext(ctx, "verification key revoked", "key_id", keyID)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"keyId": keyID, "status": "revoked"})
}

func (h *Handler) emitAudit(ctx context.Context, eventType audit.EventType, keyID string) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Emit(ctx, audit.Event{Type: eventType, KeyID: keyID}); err != nil {
		h.logger.ErrorContext(ctx, "audit emit failed", "type", eventType, "error", err)
	}
}

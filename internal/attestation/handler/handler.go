// Package handler exposes attestation issuance and verification over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"skyseal/internal/attestation"
	"skyseal/internal/attestation/service"
	"skyseal/pkg/platform/httputil"
	"skyseal/pkg/requestcontext"
)

// Service defines the engine operations the transport needs.
type Service interface {
	Issue(ctx context.Context, req service.IssueRequest) (*attestation.Envelope, error)
	Verify(ctx context.Context, env *attestation.Envelope) (*attestation.Verdict, error)
}

// Handler wires attestation endpoints to the engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an attestation handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts attestation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/attestations/issue", h.HandleIssue)
	r.Post("/attestations/verify", h.HandleVerify)
}

// HandleIssue handles POST /attestations/issue requests.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger)
	if !ok {
		return
	}

	env, err := h.service.Issue(ctx, req.Domain())
	if err != nil {
		var refusal *attestation.IssuanceError
		if errors.As(err, &refusal) {
			// A refusal is a well-formed outcome, not a server fault.
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, FromRefusal(refusal))
			return
		}
		h.logger.ErrorContext(ctx, "attestation issuance failed",
			"request_id", requestID,
			"subject_id", req.SubjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "attestation issued",
		"request_id", requestID,
		"subject_id", req.SubjectID,
		"digest_hex", env.Integrity.DigestHex,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromEnvelope(env))
}

// HandleVerify handles POST /attestations/verify requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	verdict, err := h.service.Verify(ctx, &req.Envelope)
	if err != nil {
		h.logger.ErrorContext(ctx, "attestation verification failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "attestation verify handled",
		"request_id", requestID,
		"ok", verdict.OK,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	// A rejected envelope is still a successful verification; the verdict
	// carries the findings.
	httputil.WriteJSON(w, http.StatusOK, FromVerdict(verdict))
}

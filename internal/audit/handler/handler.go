// Package handler exposes the admin audit query surface.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"skyseal/internal/audit"
	"skyseal/pkg/platform/httputil"
)

const defaultLimit = 50

// Handler serves read-only audit queries for operators.
type Handler struct {
	store  audit.Store
	logger *slog.Logger
}

func New(store audit.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit", h.HandleList)
}

// HandleList handles GET /admin/audit requests. With ?subjectId= it returns
// that subject's history; otherwise the most recent events.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		events []audit.Event
		err    error
	)
	if subjectID := r.URL.Query().Get("subjectId"); subjectID != "" {
		events, err = h.store.ListBySubject(ctx, subjectID)
	} else {
		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, parseErr := strconv.Atoi(raw); parseErr == nil && parsed > 0 {
				limit = parsed
			}
		}
		events, err = h.store.ListRecent(ctx, limit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medigate/internal/audit"
	"medigate/internal/transport/http/shared"
	id "medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/requestcontext"
)

// Handler exposes the audit review endpoint. Queries are recency-bounded:
// they scan the most recent window of entries, not the full history.
type Handler struct {
	recorder *audit.Recorder
	logger   *slog.Logger
}

// New creates an audit Handler.
func New(recorder *audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// Register registers the audit routes. Runs behind the gateway; the admin
// gate is enforced here because role authorization is a handler concern.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/entries", h.handleQuery)
}

type queryResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident := requestcontext.Identity(ctx)
	if ident.Role != id.RoleAdmin {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
		return
	}

	filter := audit.Filter{
		Subject: r.URL.Query().Get("subject"),
		Action:  r.URL.Query().Get("action"),
		Outcome: audit.Outcome(r.URL.Query().Get("outcome")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	entries, err := h.recorder.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "audit query failed", err))
		return
	}

	shared.WriteJSON(w, http.StatusOK, queryResponse{Entries: entries, Count: len(entries)})
}

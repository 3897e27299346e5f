package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"medigate/internal/audit"
	"medigate/internal/notify"
	"medigate/internal/transport/http/shared"
	id "medigate/pkg/domain"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/requestcontext"
)

const heartbeatInterval = 25 * time.Second

// Handler exposes the notification stream and the publish endpoint.
type Handler struct {
	router   *notify.Router
	recorder *audit.Recorder
	logger   *slog.Logger
}

// New creates a notify Handler.
func New(router *notify.Router, recorder *audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{router: router, recorder: recorder, logger: logger}
}

// Register registers the notification routes. Both run behind the gateway.
func (h *Handler) Register(r chi.Router) {
	r.Get("/notifications/stream", h.handleStream)
	r.Post("/notifications/publish", h.handlePublish)
}

// handleStream delivers the caller's role-scoped events over SSE. The
// subscription lives exactly as long as the connection: when the client
// disconnects, the request context ends and the router slot is released.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident := requestcontext.Identity(ctx)
	if ident.IsAnonymous() {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	sub := h.router.Subscribe(ctx, ident.Role, ident.Subject)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, open := <-sub.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.ErrorContext(ctx, "notification marshal failed",
					"error", err,
					"event_id", event.ID,
				)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, payload)
			flusher.Flush()
		}
	}
}

type publishBody struct {
	Role        string          `json:"role"`
	RecipientID string          `json:"recipient_id,omitempty"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	// EventID lets retrying callers keep the idempotency key stable.
	EventID string `json:"event_id,omitempty"`
}

type publishResponse struct {
	EventID uuid.UUID `json:"event_id"`
}

// handlePublish accepts an event from a downstream actor and routes it.
// Patients cannot publish; everything else about who may notify whom is a
// product rule enforced by the calling feature, not here.
func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ident := requestcontext.Identity(ctx)
	if ident.IsAnonymous() {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	if ident.Role == id.RolePatient {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role may not publish notifications"))
		return
	}

	var body publishBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	role, valid := id.ParseRole(body.Role)
	if !valid {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown recipient role"))
		return
	}
	if body.Type == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event type is required"))
		return
	}

	event := notify.Event{
		Role:    role,
		Type:    body.Type,
		Payload: body.Payload,
	}
	if body.RecipientID != "" {
		recipient, err := id.ParseUserID(body.RecipientID)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "recipient_id is not a valid ID"))
			return
		}
		event.RecipientID = recipient
	}
	if body.EventID != "" {
		eventID, err := uuid.Parse(body.EventID)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event_id is not a valid ID"))
			return
		}
		event.ID = eventID
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	h.router.Publish(ctx, event)

	h.recorder.Record(ctx, audit.Entry{
		Subject:    ident.Subject,
		Email:      ident.Email,
		Role:       ident.Role,
		SourceAddr: requestcontext.ClientIP(ctx),
		Action:     audit.ActionNotifyPublish,
		Outcome:    audit.OutcomeSuccess,
		Message:    body.Type,
	})
	shared.WriteJSON(w, http.StatusAccepted, publishResponse{EventID: event.ID})
}

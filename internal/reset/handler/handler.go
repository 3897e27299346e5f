package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medigate/internal/audit"
	"medigate/internal/reset"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/requestcontext"
)

// Handler exposes the password-reset wire contract. Responses follow the
// legacy shape exactly: {"success":true} or {"success":false,"error":...}
// with 400 for validation/token errors and 500 for unexpected failures.
type Handler struct {
	service  *reset.Service
	recorder *audit.Recorder
	logger   *slog.Logger
}

// New creates a reset Handler.
func New(service *reset.Service, recorder *audit.Recorder, logger *slog.Logger) *Handler {
	return &Handler{service: service, recorder: recorder, logger: logger}
}

// Register registers the reset routes. These are public: the reset flow is
// how locked-out users get back in.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/reset/request", h.handleRequest)
	r.Post("/auth/reset/redeem", h.handleRedeem)
}

type requestBody struct {
	Email string `json:"email"`
}

type redeemBody struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type resultBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResult(w, http.StatusBadRequest, resultBody{Success: false, Error: "malformed request body"})
		return
	}

	_, err := h.service.Issue(ctx, body.Email)
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeError
	}
	h.recorder.Record(ctx, audit.Entry{
		Email:      body.Email,
		SourceAddr: requestcontext.ClientIP(ctx),
		Action:     audit.ActionResetRequested,
		Outcome:    outcome,
	})

	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			writeResult(w, http.StatusBadRequest, resultBody{Success: false, Error: errMessage(err)})
			return
		}
		h.logger.ErrorContext(ctx, "reset token issue failed", "error", err)
		writeResult(w, http.StatusInternalServerError, resultBody{Success: false, Error: "internal error"})
		return
	}

	// The token itself leaves out-of-band (emailed link), never in the
	// response body.
	writeResult(w, http.StatusOK, resultBody{Success: true})
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body redeemBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResult(w, http.StatusBadRequest, resultBody{Success: false, Error: "malformed request body"})
		return
	}

	err := h.service.Redeem(ctx, body.Email, body.Token, body.NewPassword)
	outcome := audit.OutcomeSuccess
	message := ""
	if err != nil {
		outcome = audit.OutcomeError
		message = errMessage(err)
	}
	h.recorder.Record(ctx, audit.Entry{
		Email:      body.Email,
		SourceAddr: requestcontext.ClientIP(ctx),
		Action:     audit.ActionResetRedeemed,
		Outcome:    outcome,
		Message:    message,
	})

	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			writeResult(w, http.StatusBadRequest, resultBody{Success: false, Error: errMessage(err)})
			return
		}
		h.logger.ErrorContext(ctx, "reset token redeem failed", "error", err, "email", body.Email)
		writeResult(w, http.StatusInternalServerError, resultBody{Success: false, Error: "internal error"})
		return
	}

	writeResult(w, http.StatusOK, resultBody{Success: true})
}

func writeResult(w http.ResponseWriter, status int, body resultBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

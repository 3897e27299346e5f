// Package gateway is the composition point of the access layer: it
// intercepts every inbound request, resolves the bearer credential to an
// identity, attaches it to the request context, and reports the outcome to
// the audit trail. Role-based authorization stays with downstream handlers;
// the gateway guarantees who the caller is, not what they may do.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medigate/internal/audit"
	"medigate/internal/identity"
	dErrors "medigate/pkg/domain-errors"
	"medigate/pkg/platform/middleware/metadata"
	"medigate/pkg/requestcontext"
)

const bearerPrefix = "Bearer "

// Gateway authenticates requests and audits their outcomes.
type Gateway struct {
	verifier       identity.Verifier
	recorder       *audit.Recorder
	logger         *slog.Logger
	publicPrefixes []string
	verifyTimeout  time.Duration
	tracer         trace.Tracer
}

// New builds the gateway. publicPrefixes are path prefixes that bypass
// verification entirely and run anonymously.
func New(verifier identity.Verifier, recorder *audit.Recorder, logger *slog.Logger, publicPrefixes []string, verifyTimeout time.Duration) *Gateway {
	if verifyTimeout <= 0 {
		verifyTimeout = 5 * time.Second
	}
	return &Gateway{
		verifier:       verifier,
		recorder:       recorder,
		logger:         logger,
		publicPrefixes: publicPrefixes,
		verifyTimeout:  verifyTimeout,
		tracer:         otel.Tracer("medigate/gateway"),
	}
}

// Middleware runs the per-request state machine:
// Received -> (bypass -> Allowed) | (verify -> Authenticated -> Allowed) |
// (verify fails -> Rejected).
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "gateway.request",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()
		r = r.WithContext(ctx)

		// Pre-flight and public paths pass through anonymously.
		if r.Method == http.MethodOptions || g.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		bearer, ok := bearerToken(r)
		if !ok {
			g.reject(w, r, dErrors.New(dErrors.CodeUnauthorized, "missing credential"), "")
			return
		}

		verifyCtx, cancel := context.WithTimeout(ctx, g.verifyTimeout)
		ident, err := g.verifier.Verify(verifyCtx, bearer)
		cancel()
		if err != nil {
			g.reject(w, r, err, emailHint(bearer))
			return
		}

		span.SetAttributes(
			attribute.String("enduser.id", ident.Subject.String()),
			attribute.String("enduser.role", string(ident.Role)),
		)

		ctx = requestcontext.WithIdentity(ctx, *ident)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		outcome := audit.OutcomeSuccess
		if sw.status >= http.StatusBadRequest {
			outcome = audit.OutcomeError
		}
		g.recorder.Record(ctx, audit.Entry{
			Subject:    ident.Subject,
			Email:      ident.Email,
			Role:       ident.Role,
			SourceAddr: requestcontext.ClientIP(ctx),
			Action:     audit.ActionAccessGranted,
			Outcome:    outcome,
			Message:    r.Method + " " + r.URL.Path,
			Detail:     requestDetail(ctx, sw.status),
		})
	})
}

// reject short-circuits with a single generic denial. Transient verifier
// failures surface as 503 so clients can retry without re-prompting
// credentials; every authentication-class failure looks identical.
func (g *Gateway) reject(w http.ResponseWriter, r *http.Request, err error, email string) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if dErrors.HasCode(err, dErrors.CodeUnavailable) {
		g.logger.WarnContext(ctx, "credential verification unavailable",
			"error", err,
			"request_id", requestID,
		)
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Verification temporarily unavailable, retry")
		return
	}

	g.logger.WarnContext(ctx, "unauthorized access",
		"error", err,
		"path", r.URL.Path,
		"request_id", requestID,
	)
	g.recorder.Record(ctx, audit.Entry{
		Email:      email,
		SourceAddr: requestcontext.ClientIP(ctx),
		Action:     audit.ActionAccessDenied,
		Outcome:    audit.OutcomeError,
		Message:    r.Method + " " + r.URL.Path,
		Detail:     requestDetail(ctx, http.StatusUnauthorized),
	})
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid credential")
}

func (g *Gateway) isPublic(path string) bool {
	for _, prefix := range g.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// emailHint extracts the unverified email claim from a rejected token so
// brute-force attempts remain attributable in the audit trail. The value is
// advisory only and never trusted for authorization.
func emailHint(bearer string) string {
	parts := strings.Split(bearer, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Email
}

func requestDetail(ctx context.Context, status int) json.RawMessage {
	detail, err := json.Marshal(map[string]any{
		"status":     status,
		"request_id": requestcontext.RequestID(ctx),
		"device":     metadata.DeviceSummary(requestcontext.UserAgent(ctx)),
	})
	if err != nil {
		return nil
	}
	return detail
}

// writeJSONError writes a JSON error response with the given status code.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// statusWriter captures the downstream status for outcome reporting. Flush
// passes through so streaming handlers keep working under the gateway.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

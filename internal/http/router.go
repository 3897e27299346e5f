package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "medigate/internal/audit/handler"
	"medigate/internal/gateway"
	notifyhandler "medigate/internal/notify/handler"
	resethandler "medigate/internal/reset/handler"
	"medigate/internal/transport/http/shared"
	"medigate/pkg/platform/middleware/metadata"
)

// NewRouter wires every endpoint behind the gateway. The gateway itself
// decides which paths run anonymously, so it wraps the whole tree.
func NewRouter(
	gw *gateway.Gateway,
	reset *resethandler.Handler,
	audit *audithandler.Handler,
	notify *notifyhandler.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(metadata.RequestTime)
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(gw.Middleware)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	reset.Register(r)
	audit.Register(r)
	notify.Register(r)

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

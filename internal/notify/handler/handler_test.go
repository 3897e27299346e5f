package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medigate/internal/audit"
	auditmem "medigate/internal/audit/store/memory"
	"medigate/internal/notify"
	"medigate/internal/notify/handler"
	id "medigate/pkg/domain"
	"medigate/pkg/requestcontext"
	"medigate/pkg/testutil"
)

func newHandler() (http.Handler, *notify.Router) {
	router := notify.NewRouter(8)
	recorder := audit.NewRecorder(auditmem.New(), nil, slog.Default(), 16, 100)
	r := chi.NewRouter()
	handler.New(router, recorder, slog.Default()).Register(r)
	return r, router
}

func asRole(t *testing.T, req *http.Request, role id.Role) *http.Request {
	t.Helper()
	ctx := requestcontext.WithIdentity(req.Context(), id.Identity{
		Subject: id.UserID(uuid.New()),
		Email:   string(role) + "@clinic.example",
		Role:    role,
	})
	return req.WithContext(ctx)
}

func TestPublish_DeliversToRole(t *testing.T) {
	h, router := newHandler()

	sub := router.Subscribe(t.Context(), id.RoleDoctor, id.UserID(uuid.New()))

	req := testutil.NewJSONRequest(t, http.MethodPost, "/notifications/publish", map[string]any{
		"role": "doctor",
		"type": "appointment_created",
	})
	rr := testutil.DoRequest(h, asRole(t, req, id.RoleAdmin))

	testutil.AssertStatus(t, rr, http.StatusAccepted)

	select {
	case event := <-sub.Events():
		assert.Equal(t, "appointment_created", event.Type)
		assert.Equal(t, id.RoleDoctor, event.Role)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the event")
	}
}

func TestPublish_StableEventIDForRetries(t *testing.T) {
	h, router := newHandler()

	sub := router.Subscribe(t.Context(), id.RolePatient, id.UserID(uuid.New()))

	eventID := uuid.NewString()
	for range 2 {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/notifications/publish", map[string]any{
			"role":     "patient",
			"type":     "reminder",
			"event_id": eventID,
		})
		rr := testutil.DoRequest(h, asRole(t, req, id.RoleDoctor))
		testutil.AssertStatus(t, rr, http.StatusAccepted)
		testutil.AssertJSONContains(t, rr, "event_id", eventID)
	}

	select {
	case <-sub.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the event")
	}
	select {
	case event := <-sub.Events():
		t.Fatalf("duplicate delivery of %s", event.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_Authorization(t *testing.T) {
	h, _ := newHandler()

	t.Run("anonymous caller is rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/notifications/publish", map[string]any{
			"role": "doctor",
			"type": "x",
		})
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("patients may not publish", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/notifications/publish", map[string]any{
			"role": "doctor",
			"type": "x",
		})
		rr := testutil.DoRequest(h, asRole(t, req, id.RolePatient))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}

func TestPublish_Validation(t *testing.T) {
	h, _ := newHandler()

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown role", map[string]any{"role": "wizard", "type": "x"}},
		{"missing type", map[string]any{"role": "doctor"}},
		{"bad recipient id", map[string]any{"role": "doctor", "type": "x", "recipient_id": "nope"}},
		{"bad event id", map[string]any{"role": "doctor", "type": "x", "event_id": "nope"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/notifications/publish", tc.body)
			rr := testutil.DoRequest(h, asRole(t, req, id.RoleAdmin))
			testutil.AssertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestStream_RequiresIdentity(t *testing.T) {
	h, _ := newHandler()

	req := testutil.NewRequest(t, http.MethodGet, "/notifications/stream")
	rr := testutil.DoRequest(h, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestStream_DeliversEvents(t *testing.T) {
	h, router := newHandler()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	req := testutil.NewRequest(t, http.MethodGet, "/notifications/stream")
	req = asRole(t, req.WithContext(ctx), id.RoleDoctor)

	w := newStreamRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(w, req)
	}()

	// Wait for the subscription before publishing: late joiners do not see
	// earlier events.
	waitCond(t, func() bool { return router.SubscriberCount() == 1 })

	router.Publish(ctx, notify.Event{Role: id.RoleDoctor, Type: "appointment_created"})

	waitCond(t, func() bool { return w.Contains("event: appointment_created") })
	require.True(t, w.Contains("data: "), "payload written as SSE data")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not stop on disconnect")
	}
}

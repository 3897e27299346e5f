package httpapi_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medigate/internal/audit"
	audithandler "medigate/internal/audit/handler"
	auditmem "medigate/internal/audit/store/memory"
	"medigate/internal/gateway"
	httpapi "medigate/internal/http"
	"medigate/internal/identity"
	"medigate/internal/notify"
	notifyhandler "medigate/internal/notify/handler"
	"medigate/internal/reset"
	resethandler "medigate/internal/reset/handler"
	resetmem "medigate/internal/reset/store/memory"
	id "medigate/pkg/domain"
	"medigate/pkg/testutil"
)

const (
	testKey      = "router-test-key"
	testIssuer   = "medigate"
	testAudience = "medigate-clients"
)

type stack struct {
	handler    http.Handler
	auditStore *auditmem.InMemoryStore
	notifier   *capturingNotifier
}

type capturingNotifier struct {
	token string
}

func (n *capturingNotifier) SendResetToken(_ context.Context, _, token string, _ time.Time) error {
	n.token = token
	return nil
}

func newStack(t *testing.T) *stack {
	t.Helper()

	auditStore := auditmem.New()
	recorder := audit.NewRecorder(auditStore, nil, slog.Default(), 64, 100)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = recorder.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	verifier := identity.NewJWTVerifier(testKey, testIssuer, testAudience)
	gw := gateway.New(verifier, recorder, slog.Default(),
		[]string{"/healthz", "/metrics", "/auth/reset"}, time.Second)

	notifier := &capturingNotifier{}
	resetService := reset.NewService(resetmem.New(), reset.NewInMemoryCredentials(), notifier, slog.Default(), 30*time.Minute)

	router := httpapi.NewRouter(
		gw,
		resethandler.New(resetService, recorder, slog.Default()),
		audithandler.New(recorder, slog.Default()),
		notifyhandler.New(notify.NewRouter(8), recorder, slog.Default()),
	)
	return &stack{handler: router, auditStore: auditStore, notifier: notifier}
}

func bearerFor(t *testing.T, role id.Role) string {
	t.Helper()
	token, err := identity.NewIssuer(testKey, testIssuer, testAudience).IssueBearer(id.Identity{
		Subject: id.UserID(uuid.New()),
		Email:   string(role) + "@clinic.example",
		Role:    role,
	}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestRouter_PublicPathsBypassAuth(t *testing.T) {
	s := newStack(t)

	rr := testutil.DoRequest(s.handler, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.DoRequest(s.handler, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestRouter_ProtectedPathRequiresAuth(t *testing.T) {
	s := newStack(t)

	rr := testutil.DoRequest(s.handler, testutil.NewRequest(t, http.MethodGet, "/audit/entries"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)

	deadline := time.Now().Add(2 * time.Second)
	for s.auditStore.Len() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	entries, err := s.auditStore.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionAccessDenied, entries[0].Action)
	assert.Equal(t, audit.OutcomeError, entries[0].Outcome)
}

func TestRouter_ResetFlowEndToEnd(t *testing.T) {
	s := newStack(t)

	issue := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/request", map[string]string{
		"email": "user@x.com",
	})
	testutil.AssertStatus(t, testutil.DoRequest(s.handler, issue), http.StatusOK)
	require.NotEmpty(t, s.notifier.token)

	redeem := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/redeem", map[string]string{
		"email":       "user@x.com",
		"token":       s.notifier.token,
		"newPassword": "brand-new-password",
	})
	rr := testutil.DoRequest(s.handler, redeem)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "success", true)

	replay := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/redeem", map[string]string{
		"email":       "user@x.com",
		"token":       s.notifier.token,
		"newPassword": "brand-new-password",
	})
	rr = testutil.DoRequest(s.handler, replay)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	result := testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, false, (*result)["success"])
	assert.Equal(t, "invalid or expired token", (*result)["error"])
}

func TestRouter_AdminQueriesAuditTrail(t *testing.T) {
	s := newStack(t)

	// Generate one protected-route success to audit.
	probe := testutil.NewRequest(t, http.MethodGet, "/audit/entries")
	probe.Header.Set("Authorization", "Bearer "+bearerFor(t, id.RoleAdmin))
	testutil.AssertStatus(t, testutil.DoRequest(s.handler, probe), http.StatusOK)

	deadline := time.Now().Add(2 * time.Second)
	for s.auditStore.Len() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	query := testutil.NewRequest(t, http.MethodGet, "/audit/entries?action=access_granted")
	query.Header.Set("Authorization", "Bearer "+bearerFor(t, id.RoleAdmin))
	rr := testutil.DoRequest(s.handler, query)
	testutil.AssertStatus(t, rr, http.StatusOK)

	result := testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.GreaterOrEqual(t, (*result)["count"].(float64), float64(1))
}

func TestRouter_NonAdminForbiddenFromAudit(t *testing.T) {
	s := newStack(t)

	req := testutil.NewRequest(t, http.MethodGet, "/audit/entries")
	req.Header.Set("Authorization", "Bearer "+bearerFor(t, id.RolePatient))
	rr := testutil.DoRequest(s.handler, req)
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medigate/internal/audit"
	auditmem "medigate/internal/audit/store/memory"
	"medigate/internal/reset"
	"medigate/internal/reset/handler"
	resetmem "medigate/internal/reset/store/memory"
	"medigate/pkg/testutil"
)

type capturingNotifier struct {
	token string
}

func (n *capturingNotifier) SendResetToken(_ context.Context, _, token string, _ time.Time) error {
	n.token = token
	return nil
}

type resultBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func newHandler(t *testing.T) (http.Handler, *capturingNotifier, *auditmem.InMemoryStore) {
	t.Helper()

	auditStore := auditmem.New()
	recorder := audit.NewRecorder(auditStore, nil, slog.Default(), 16, 100)
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

	notifier := &capturingNotifier{}
	service := reset.NewService(resetmem.New(), reset.NewInMemoryCredentials(), notifier, slog.Default(), 30*time.Minute)

	r := chi.NewRouter()
	handler.New(service, recorder, slog.Default()).Register(r)
	return r, notifier, auditStore
}

func TestRequest_TokenNeverInResponse(t *testing.T) {
	router, notifier, _ := newHandler(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/request", map[string]string{
		"email": "user@x.com",
	})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	raw := rr.Body.String()
	var result resultBody
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	assert.True(t, result.Success)
	require.NotEmpty(t, notifier.token, "token left out-of-band")
	assert.NotContains(t, raw, notifier.token)
}

func TestRequest_ValidationError(t *testing.T) {
	router, _, _ := newHandler(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/request", map[string]string{})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	result := testutil.UnmarshalResponse[resultBody](t, rr)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

// The issue -> redeem -> replay scenario from the compatibility contract:
// first redemption succeeds, the replay gets the generic message with 400.
func TestRedeem_SingleUse(t *testing.T) {
	router, notifier, _ := newHandler(t)

	issueReq := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/request", map[string]string{
		"email": "user@x.com",
	})
	testutil.AssertStatus(t, testutil.DoRequest(router, issueReq), http.StatusOK)

	redeem := func() *resultBody {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/redeem", map[string]string{
			"email":       "user@x.com",
			"token":       notifier.token,
			"newPassword": "brand-new-password",
		})
		rr := testutil.DoRequest(router, req)
		result := testutil.UnmarshalResponse[resultBody](t, rr)
		if result.Success {
			testutil.AssertStatus(t, rr, http.StatusOK)
		} else {
			testutil.AssertStatus(t, rr, http.StatusBadRequest)
		}
		return result
	}

	first := redeem()
	assert.True(t, first.Success)
	assert.Empty(t, first.Error)

	second := redeem()
	assert.False(t, second.Success)
	assert.Equal(t, "invalid or expired token", second.Error)
}

func TestRedeem_MalformedBody(t *testing.T) {
	router, _, _ := newHandler(t)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/auth/reset/redeem", "{not json")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	result := testutil.UnmarshalResponse[resultBody](t, rr)
	assert.False(t, result.Success)
}

func TestHandlers_RecordAuditEntries(t *testing.T) {
	router, notifier, auditStore := newHandler(t)

	issueReq := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/request", map[string]string{
		"email": "user@x.com",
	})
	testutil.DoRequest(router, issueReq)

	redeemReq := testutil.NewJSONRequest(t, http.MethodPost, "/auth/reset/redeem", map[string]string{
		"email":       "user@x.com",
		"token":       notifier.token,
		"newPassword": "brand-new-password",
	})
	testutil.DoRequest(router, redeemReq)

	deadline := time.Now().Add(2 * time.Second)
	for auditStore.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	entries, err := auditStore.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionResetRedeemed, entries[0].Action)
	assert.Equal(t, audit.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, audit.ActionResetRequested, entries[1].Action)
}

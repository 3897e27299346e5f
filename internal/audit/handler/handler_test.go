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
	"medigate/internal/audit/handler"
	auditmem "medigate/internal/audit/store/memory"
	id "medigate/pkg/domain"
	"medigate/pkg/requestcontext"
	"medigate/pkg/testutil"
)

type queryResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

func newHandler(t *testing.T) (http.Handler, *audit.Recorder) {
	t.Helper()

	store := auditmem.New()
	recorder := audit.NewRecorder(store, nil, slog.Default(), 16, 100)
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

	r := chi.NewRouter()
	handler.New(recorder, slog.Default()).Register(r)
	return r, recorder
}

func asAdmin(req *http.Request) *http.Request {
	ctx := requestcontext.WithIdentity(req.Context(), id.Identity{
		Subject: id.UserID(uuid.New()),
		Email:   "admin@clinic.example",
		Role:    id.RoleAdmin,
	})
	return req.WithContext(ctx)
}

func seed(t *testing.T, recorder *audit.Recorder, entries ...audit.Entry) {
	t.Helper()
	for _, entry := range entries {
		recorder.Record(context.Background(), entry)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := recorder.Query(context.Background(), audit.Filter{})
		require.NoError(t, err)
		if len(got) == len(entries) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("seed entries not persisted in time")
}

func TestQuery_AdminOnly(t *testing.T) {
	h, _ := newHandler(t)

	for _, role := range []id.Role{id.RolePatient, id.RoleDoctor, id.RoleSeller} {
		t.Run(string(role), func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodGet, "/audit/entries")
			ctx := requestcontext.WithIdentity(req.Context(), id.Identity{
				Subject: id.UserID(uuid.New()),
				Role:    role,
			})
			rr := testutil.DoRequest(h, req.WithContext(ctx))
			testutil.AssertStatus(t, rr, http.StatusForbidden)
		})
	}
}

func TestQuery_FiltersAndLimits(t *testing.T) {
	h, recorder := newHandler(t)
	seed(t, recorder,
		audit.Entry{Email: "doc@clinic.example", Action: audit.ActionAccessGranted, Outcome: audit.OutcomeSuccess},
		audit.Entry{Email: "eve@evil.example", Action: audit.ActionAccessDenied, Outcome: audit.OutcomeError},
	)

	t.Run("outcome filter", func(t *testing.T) {
		req := asAdmin(testutil.NewRequest(t, http.MethodGet, "/audit/entries?outcome=error"))
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		result := testutil.UnmarshalResponse[queryResponse](t, rr)
		require.Equal(t, 1, result.Count)
		assert.Equal(t, "eve@evil.example", result.Entries[0].Email)
	})

	t.Run("subject filter", func(t *testing.T) {
		req := asAdmin(testutil.NewRequest(t, http.MethodGet, "/audit/entries?subject=doc@"))
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		result := testutil.UnmarshalResponse[queryResponse](t, rr)
		require.Equal(t, 1, result.Count)
	})

	t.Run("bad limit rejected", func(t *testing.T) {
		req := asAdmin(testutil.NewRequest(t, http.MethodGet, "/audit/entries?limit=zero"))
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("limit bounds count", func(t *testing.T) {
		req := asAdmin(testutil.NewRequest(t, http.MethodGet, "/audit/entries?limit=1"))
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		result := testutil.UnmarshalResponse[queryResponse](t, rr)
		assert.Equal(t, 1, result.Count)
	})
}

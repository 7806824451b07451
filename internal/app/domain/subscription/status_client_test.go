package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

func TestHTTPStatusClientSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"active","plan_type":"pro"}`))
	}))
	defer srv.Close()

	client := NewHTTPStatusClient(srv.URL)
	resp, err := client.FetchStatus(context.Background(), "token-123")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, resp.Status)
	assert.Equal(t, "pro", resp.PlanType)
}

func TestHTTPStatusClientMapsErrorCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewHTTPStatusClient(srv.URL)
	_, err := client.FetchStatus(context.Background(), "stale-token")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.True(t, IsUnauthorized(err))
}

func TestFetchRemoteEndpointUnauthorizedThenSuccess(t *testing.T) {
	// a just-minted token can race its own propagation; the fetcher retries
	// the 401 and the third attempt lands
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"active","plan_type":"premium"}`))
	}))
	defer srv.Close()

	f := newTestFetcher(models.RoleDoctor, &fakeTokens{}, NewHTTPStatusClient(srv.URL), newFakeActivity())

	st := f.Fetch(context.Background())

	assert.Equal(t, models.StatusActive, st.Status)
	assert.Equal(t, models.PlanPremium, st.Plan)
	assert.Equal(t, int32(3), calls.Load())
}

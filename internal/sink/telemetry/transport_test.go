package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

func TestHTTPTransportPostsBatchAndSucceedsOn2xx(t *testing.T) {
	var received Batch
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, rate.Inf, 1)
	batch := Batch{Samples: []selfmetrics.Sample{{Key: selfmetrics.MetricKey{Name: "cpu"}, Value: selfmetrics.MetricValue{Value: 1}}}}

	err := transport.SendRequest(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, received.Samples, 1)
}

func TestHTTPTransportReturnsStatusErrorOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, rate.Inf, 1)
	err := transport.SendRequest(context.Background(), Batch{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestHTTPTransportRateLimiterBoundsBurst(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newHTTPTransport(server.URL, rate.Limit(1), 1)

	start := time.Now()
	require.NoError(t, transport.SendRequest(context.Background(), Batch{}))
	require.NoError(t, transport.SendRequest(context.Background(), Batch{}))
	elapsed := time.Since(start)

	assert.Equal(t, 2, hits)
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
}

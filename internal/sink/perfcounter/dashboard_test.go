package perfcounter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/config"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

func sampleEnvelopeFor(values map[string]float64) capability.Envelope {
	samples := make([]selfmetrics.Sample, 0, len(values))
	for name, v := range values {
		samples = append(samples, selfmetrics.Sample{Key: selfmetrics.MetricKey{Name: name}, Value: selfmetrics.MetricValue{Value: v}})
	}
	return sampleEnvelope(samples)
}

func TestSnapshotEndpointReturnsCurrentCounters(t *testing.T) {
	sink := New(Config{Id: "perfcounter", Logger: slog.Default(), PollInterval: time.Hour})
	require.NoError(t, sink.Start(context.Background()))
	t.Cleanup(func() { _ = sink.Stop(context.Background()) })

	require.NoError(t, sink.Handle(context.Background(), sampleEnvelopeFor(map[string]float64{"sources_started": 4})))

	server := httptest.NewServer(newDashboard("", sink, sink.bus, nil, slog.Default()).server.Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 4.0, body["sources_started"])
}

func TestConfigEndpointReturns404WhenNoSnapshotFnWired(t *testing.T) {
	sink := New(Config{Id: "perfcounter", Logger: slog.Default(), PollInterval: time.Hour})
	require.NoError(t, sink.Start(context.Background()))
	t.Cleanup(func() { _ = sink.Stop(context.Background()) })

	server := httptest.NewServer(newDashboard("", sink, sink.bus, nil, slog.Default()).server.Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfigEndpointServesSnapshotFromWiredFn(t *testing.T) {
	sink := New(Config{Id: "perfcounter", Logger: slog.Default(), PollInterval: time.Hour})
	require.NoError(t, sink.Start(context.Background()))
	t.Cleanup(func() { _ = sink.Stop(context.Background()) })

	snapFn := func() *config.Document {
		return &config.Document{
			Sinks: []config.ComponentSpec{{Id: "sink-1", Type: "stub", Raw: map[string]any{"token": config.RedactedValue}}},
		}
	}
	server := httptest.NewServer(newDashboard("", sink, sink.bus, snapFn, slog.Default()).server.Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var doc config.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Len(t, doc.Sinks, 1)
	assert.Equal(t, config.RedactedValue, doc.Sinks[0].Raw["token"])
}

func TestHealthzReturnsOK(t *testing.T) {
	sink := New(Config{Id: "perfcounter", Logger: slog.Default(), PollInterval: time.Hour})
	require.NoError(t, sink.Start(context.Background()))
	t.Cleanup(func() { _ = sink.Stop(context.Background()) })

	server := httptest.NewServer(newDashboard("", sink, sink.bus, nil, slog.Default()).server.Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketReceivesBroadcastUpdate(t *testing.T) {
	sink := New(Config{Id: "perfcounter", Logger: slog.Default(), PollInterval: time.Hour})
	require.NoError(t, sink.Start(context.Background()))
	t.Cleanup(func() { _ = sink.Stop(context.Background()) })

	server := httptest.NewServer(newDashboard("", sink, sink.bus, nil, slog.Default()).server.Handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the subscription before publishing.
	require.Eventually(t, func() bool { return sink.bus.activeSubscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sink.Handle(context.Background(), sampleEnvelopeFor(map[string]float64{"sources_started": 1})))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var payload struct {
		Sequence int64              `json:"sequence"`
		Samples  map[string]float64 `json:"samples"`
	}
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, 1.0, payload.Samples["sources_started"])
}

package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

type recordingHandler struct {
	mu   sync.Mutex
	envs []capability.Envelope
}

func (h *recordingHandler) handle(ctx context.Context, env capability.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envs = append(h.envs, env)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.envs)
}

func TestConnectorBroadcastsOnSuccessfulProbe(t *testing.T) {
	probe := func(ctx context.Context) error { return nil }
	connector := NewConnector("telemetry_connector", "", probe, 5*time.Millisecond, nil, nil)

	handler := &recordingHandler{}
	sub, err := connector.Subscribe(handler.handle)
	require.NoError(t, err)
	defer sub.Dispose()

	require.NoError(t, connector.Start(context.Background()))
	defer func() { _ = connector.Stop(context.Background()) }()

	require.Eventually(t, func() bool { return handler.count() > 0 }, time.Second, 5*time.Millisecond)
}

func TestConnectorNeverReportsProbeFailureAsSuccess(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	probe := func(ctx context.Context) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("connect refused")
	}
	connector := NewConnector("telemetry_connector", "", probe, 5*time.Millisecond, nil, nil)

	handler := &recordingHandler{}
	sub, err := connector.Subscribe(handler.handle)
	require.NoError(t, err)
	defer sub.Dispose()

	require.NoError(t, connector.Start(context.Background()))
	defer func() { _ = connector.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Zero(t, handler.count())
}

func TestConnectorPublishesFailureCounters(t *testing.T) {
	metrics := newConnectorRecordingMetrics()
	probe := func(ctx context.Context) error { return errors.New("boom") }
	connector := NewConnector("telemetry_connector", "", probe, 5*time.Millisecond, metrics, nil)

	require.NoError(t, connector.Start(context.Background()))
	defer func() { _ = connector.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return metrics.get("telemetryConnectFailures") > 0
	}, time.Second, 5*time.Millisecond)
}

func TestConnectorStopIsIdempotent(t *testing.T) {
	connector := NewConnector("telemetry_connector", "", func(ctx context.Context) error { return nil }, time.Second, nil, nil)
	require.NoError(t, connector.Start(context.Background()))
	require.NoError(t, connector.Stop(context.Background()))
	require.NoError(t, connector.Stop(context.Background()))
}

type connectorRecordingMetrics struct {
	mu     sync.Mutex
	totals map[string]float64
}

func newConnectorRecordingMetrics() *connectorRecordingMetrics {
	return &connectorRecordingMetrics{totals: make(map[string]float64)}
}

func (m *connectorRecordingMetrics) Publish(id, category string, counterType selfmetrics.CounterType, values map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, v := range values {
		m.totals[name] += v
	}
}

func (m *connectorRecordingMetrics) get(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}

package selfmetrics

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishCurrentReplacesValue(t *testing.T) {
	s := NewSource(testLogger())

	s.Publish("src-1", "infra", Current, map[string]float64{"queue_depth": 10})
	s.Publish("src-1", "infra", Current, map[string]float64{"queue_depth": 4})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, float64(4), snap[0].Value.Value)
}

func TestPublishIncrementAccumulates(t *testing.T) {
	s := NewSource(testLogger())

	s.Publish("src-1", "infra", Increment, map[string]float64{"started": 1})
	s.Publish("src-1", "infra", Increment, map[string]float64{"started": 1})
	s.Publish("src-1", "infra", Increment, map[string]float64{"started": 1})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, float64(3), snap[0].Value.Value)
}

func TestPublishAverageFoldsRunningMean(t *testing.T) {
	s := NewSource(testLogger())

	s.Publish("src-1", "infra", Average, map[string]float64{"latency_ms": 10})
	s.Publish("src-1", "infra", Average, map[string]float64{"latency_ms": 20})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, float64(15), snap[0].Value.Value)
}

func TestSubscribeReceivesPublishedBatches(t *testing.T) {
	s := NewSource(testLogger())

	var mu sync.Mutex
	var received []Sample

	sub, err := s.Subscribe(func(ctx context.Context, env capability.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, env.Payload.([]Sample)...)
		return nil
	})
	require.NoError(t, err)
	defer sub.Dispose()

	s.Publish("src-1", "technical", Current, map[string]float64{"x": 1})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "x", received[0].Key.Name)
}

func TestDisposeStopsFurtherDelivery(t *testing.T) {
	s := NewSource(testLogger())

	count := 0
	sub, err := s.Subscribe(func(ctx context.Context, env capability.Envelope) error {
		count++
		return nil
	})
	require.NoError(t, err)

	s.Publish("src-1", "technical", Current, map[string]float64{"x": 1})
	sub.Dispose()
	s.Publish("src-1", "technical", Current, map[string]float64{"x": 2})

	assert.Equal(t, 1, count)
}

func TestPullReturnsFalseWhenEmpty(t *testing.T) {
	s := NewSource(testLogger())

	_, ok, err := s.Pull(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPullReturnsCurrentSnapshot(t *testing.T) {
	s := NewSource(testLogger())
	s.Publish("src-1", "infra", Current, map[string]float64{"x": 1})

	env, ok, err := s.Pull(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	samples, isSamples := env.Payload.([]Sample)
	require.True(t, isSamples)
	require.Len(t, samples, 1)
}

func TestStopClearsSubscriptions(t *testing.T) {
	s := NewSource(testLogger())

	count := 0
	_, err := s.Subscribe(func(ctx context.Context, env capability.Envelope) error {
		count++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	s.Publish("src-1", "technical", Current, map[string]float64{"x": 1})

	assert.Equal(t, 0, count)
}

func TestIDIsReserved(t *testing.T) {
	s := NewSource(testLogger())
	assert.Equal(t, SourceID, string(s.ID()))
}

func TestPublishMirrorsIntoPrometheusRegistry(t *testing.T) {
	s := NewSource(testLogger())
	s.Publish("src-1", "infra", Current, map[string]float64{"queue.depth": 7})

	families, err := s.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Contains(t, families[0].GetName(), "queue_depth")

	var buf bytes.Buffer
	require.NoError(t, s.WriteExpositionFormat(&buf))
	assert.Contains(t, buf.String(), "queue_depth")
}

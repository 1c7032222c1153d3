package reliable

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

var errRecoverable = errors.New("connection reset by peer")
var errFatal = errors.New("invalid credentials")

// scriptedTransport returns errs[i] on the i-th call (recycled past the end
// with nil), recording every batch it was asked to send.
type scriptedTransport struct {
	mu   sync.Mutex
	errs []error
	i    int
	sent []string
}

func (t *scriptedTransport) SendRequest(ctx context.Context, batch string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, batch)
	if t.i >= len(t.errs) {
		return nil
	}
	err := t.errs[t.i]
	t.i++
	return err
}

func (t *scriptedTransport) sentBatches() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	copy(out, t.sent)
	return out
}

// recordingMetrics captures every published sample keyed by name, summed.
type recordingMetrics struct {
	mu     sync.Mutex
	totals map[string]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{totals: make(map[string]float64)}
}

func (m *recordingMetrics) Publish(id, category string, counterType selfmetrics.CounterType, values map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, v := range values {
		switch counterType {
		case selfmetrics.Increment:
			m.totals[name] += v
		default:
			m.totals[name] = v
		}
	}
}

func (m *recordingMetrics) get(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[name]
}

func newTestSink(transport Transport[string], metrics *recordingMetrics, attemptLimit, interval, queueLimit int) *Sink[string, float64] {
	return New[string, float64](transport, Config{
		Id:              "test-sink",
		AttemptLimit:    attemptLimit,
		IntervalSeconds: interval,
		QueueLimit:      queueLimit,
		FlushQueueDelay: time.Millisecond,
		Metrics:         metrics,
		Logger:          slog.Default(),
	})
}

// P1: successful sends never touch the queue.
func TestSendSuccessNeverEnqueues(t *testing.T) {
	transport := &scriptedTransport{}
	metrics := newRecordingMetrics()
	sink := newTestSink(transport, metrics, 3, 1, 10)

	require.NoError(t, sink.Send(context.Background(), "batch-1"))
	require.NoError(t, sink.Send(context.Background(), "batch-2"))

	assert.Equal(t, 2.0, metrics.get("serviceSuccess"))
	assert.Zero(t, sink.QueueLen())
}

// P2: k recoverable failures (k < AttemptLimit) then success: queue
// unchanged, recoverableServiceErrors == k, serviceSuccess == 1.
func TestSendRetriesThenSucceedsWithinBudget(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errRecoverable, errRecoverable}}
	metrics := newRecordingMetrics()
	sink := newTestSink(transport, metrics, 5, 1, 10)

	require.NoError(t, sink.Send(context.Background(), "batch"))

	assert.Equal(t, 1.0, metrics.get("serviceSuccess"))
	assert.Equal(t, 2.0, metrics.get("recoverableServiceErrors"))
	assert.Zero(t, sink.QueueLen())
}

// P3: exactly AttemptLimit recoverable failures demotes the batch to the
// queue; serviceSuccess unchanged.
func TestSendExhaustsBudgetAndEnqueues(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errRecoverable, errRecoverable, errRecoverable}}
	metrics := newRecordingMetrics()
	sink := newTestSink(transport, metrics, 3, 1, 10)

	require.NoError(t, sink.Send(context.Background(), "batch"))

	assert.Zero(t, metrics.get("serviceSuccess"))
	assert.Equal(t, 3.0, metrics.get("recoverableServiceErrors"))
	assert.Equal(t, 1, sink.QueueLen())
}

// Non-recoverable failures are dropped immediately: no retry, no enqueue.
func TestSendNonRecoverableDropsImmediately(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errFatal}}
	metrics := newRecordingMetrics()
	sink := newTestSink(transport, metrics, 5, 1, 10)

	require.NoError(t, sink.Send(context.Background(), "batch"))

	assert.Equal(t, 1.0, metrics.get("nonrecoverableServiceErrors"))
	assert.Zero(t, metrics.get("serviceSuccess"))
	assert.Zero(t, sink.QueueLen())
	assert.Equal(t, 1, len(transport.sentBatches()))
}

// P4: the queue never exceeds its limit; overflow drops the oldest entry
// and counts it as non-recoverable.
func TestQueueOverflowDropsOldest(t *testing.T) {
	transport := &scriptedTransport{}
	metrics := newRecordingMetrics()
	sink := newTestSink(transport, metrics, 1, 1, 3)

	always := &scriptedTransport{errs: []error{errRecoverable, errRecoverable, errRecoverable, errRecoverable}}
	sink.transport = always

	for i := 0; i < 4; i++ {
		require.NoError(t, sink.Send(context.Background(), string(rune('a'+i))))
	}

	assert.Equal(t, 3, sink.QueueLen())
	assert.Equal(t, []string{"b", "c", "d"}, sink.queue.snapshot())
	assert.Equal(t, 1.0, metrics.get("nonrecoverableServiceErrors"))
}

// P5: concurrent Flush invocations yield exactly one active drain.
func TestFlushIsSingleHolder(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)

	blocking := blockingTransport{entered: entered, release: release}
	metrics := newRecordingMetrics()
	sink := newTestSink(&blocking, metrics, 1, 1, 10)
	sink.queue.enqueue("only-item")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Flush(context.Background())
		}()
	}

	<-entered
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), blocking.calls.Load())
}

type blockingTransport struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingTransport) SendRequest(ctx context.Context, batch string) error {
	b.calls.Add(1)
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return nil
}

// P6: a flush failure on item i leaves i+1..n queued in original order.
func TestFlushStopsOnFirstFailurePreservingOrder(t *testing.T) {
	transport := &scriptedTransport{errs: []error{nil, errRecoverable}}
	metrics := newRecordingMetrics()
	sink := newTestSink(transport, metrics, 1, 1, 10)

	sink.queue.enqueue("first")
	sink.queue.enqueue("second")
	sink.queue.enqueue("third")

	sink.Flush(context.Background())

	assert.Equal(t, []string{"second", "third"}, sink.queue.snapshot())
}

// P7: backoff for attempt a is drawn from Uniform[0, interval*a) * 100ms;
// sample many draws and assert they stay within the documented bound.
func TestJitteredBackoffStaysWithinBound(t *testing.T) {
	const interval = 2
	const attempt = 3
	maxMs := float64(interval*attempt) * 100

	for i := 0; i < 500; i++ {
		d := jitteredBackoff(interval, attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, float64(d.Milliseconds()), maxMs)
	}
}

// Scenario 4: retry then queue, then a later flush tick succeeds.
func TestRetryThenLaterFlushSucceeds(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errRecoverable, errRecoverable, errRecoverable}}
	metrics := newRecordingMetrics()
	sink := newTestSink(transport, metrics, 3, 1, 10)

	require.NoError(t, sink.Send(context.Background(), "batch"))
	assert.Equal(t, 1, sink.QueueLen())

	sink.Flush(context.Background())

	assert.Zero(t, sink.QueueLen())
	assert.Equal(t, 1.0, metrics.get("serviceSuccess"))
}

type stubPullSource struct {
	id      envelope.ComponentId
	samples []selfmetrics.Sample
}

func (s *stubPullSource) ID() envelope.ComponentId { return s.id }
func (s *stubPullSource) Pull(ctx context.Context) (capability.Envelope, bool, error) {
	if len(s.samples) == 0 {
		return capability.Envelope{}, false, nil
	}
	return envelope.New[any](s.samples, "", ""), true, nil
}

func TestAggregateGroupsByMetricNameAcrossSources(t *testing.T) {
	sink := newTestSink(&scriptedTransport{}, newRecordingMetrics(), 1, 1, 10)

	source1 := &stubPullSource{id: "s1", samples: []selfmetrics.Sample{
		{Key: selfmetrics.MetricKey{Name: "cpu"}, Value: selfmetrics.MetricValue{Value: 10}},
		{Key: selfmetrics.MetricKey{Name: "mem"}, Value: selfmetrics.MetricValue{Value: 5}},
	}}
	source2 := &stubPullSource{id: "s2", samples: []selfmetrics.Sample{
		{Key: selfmetrics.MetricKey{Name: "cpu"}, Value: selfmetrics.MetricValue{Value: 20}},
	}}

	require.NoError(t, sink.RegisterDataSource(source1))
	require.NoError(t, sink.RegisterDataSource(source2))

	sum := func(values []float64) float64 {
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	}

	result := sink.Aggregate(context.Background(), sum)
	assert.Equal(t, 30.0, result["cpu"])
	assert.Equal(t, 5.0, result["mem"])
}

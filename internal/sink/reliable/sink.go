// Package reliable implements the reliability core shared by upstream
// metrics sinks: a retry policy with jittered backoff over a transport's
// SendRequest, a bounded retry queue for batches that exhaust their retry
// budget, and a non-blocking single-holder flusher that drains the queue on
// the caller's schedule. It is the "hard subsystem" the agent's sink
// reliability model is built around; the telemetry sink embeds a *Sink and
// supplies the transport and error classification.
package reliable

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

// DefaultQueueLimit is RETRY_QUEUE_LIMIT: at a minute-scale upload cadence
// this tolerates roughly a day of outage before the queue starts dropping.
const DefaultQueueLimit = 1440

// DefaultFlushQueueDelay is the pause between successful sends during a
// flush drain, to avoid hammering a just-recovered remote.
const DefaultFlushQueueDelay = 200 * time.Millisecond

// Transport is the thing a batch is actually sent over. Concrete sinks
// implement it against their wire protocol (HTTP, gRPC, whatever).
type Transport[R any] interface {
	SendRequest(ctx context.Context, batch R) error
}

// Aggregator folds a group of same-named metric values into one aggregate.
type Aggregator[A any] func(values []float64) A

// Config parameterizes a Sink.
type Config struct {
	// Id scopes the published self-metric samples and the child logger.
	Id string

	// AttemptLimit is the total number of SendRequest attempts per batch,
	// including the first. Must be >= 1.
	AttemptLimit int

	// IntervalSeconds is the base of the attempt-linear jittered backoff:
	// delay for attempt a is Uniform[0, IntervalSeconds*a) * 100ms.
	IntervalSeconds int

	// QueueLimit bounds the retry queue; defaults to DefaultQueueLimit.
	QueueLimit int

	// FlushQueueDelay is the pause between successful sends while draining
	// the retry queue; defaults to DefaultFlushQueueDelay.
	FlushQueueDelay time.Duration

	Classifier ErrorClassifier
	Metrics    selfmetrics.Publisher
	Logger     *slog.Logger
}

// Sink is the generic retry/flush engine. R is the prepared batch/request
// type; A is the numeric aggregate type Aggregate produces per metric name.
type Sink[R any, A any] struct {
	id         string
	attempts   int
	interval   int
	delay      time.Duration
	classifier ErrorClassifier
	metrics    selfmetrics.Publisher
	logger     *slog.Logger

	transport Transport[R]
	queue     *retryQueue[R]
	flushing  atomic.Bool

	mu          sync.Mutex
	dataSources []capability.DataPullSource
}

// New builds a Sink bound to transport. Config fields left at zero take
// their documented defaults.
func New[R any, A any](transport Transport[R], cfg Config) *Sink[R, A] {
	attempts := cfg.AttemptLimit
	if attempts <= 0 {
		attempts = 1
	}
	interval := cfg.IntervalSeconds
	if interval <= 0 {
		interval = 1
	}
	delay := cfg.FlushQueueDelay
	if delay <= 0 {
		delay = DefaultFlushQueueDelay
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink[R, A]{
		id:         cfg.Id,
		attempts:   attempts,
		interval:   interval,
		delay:      delay,
		classifier: classifier,
		metrics:    cfg.Metrics,
		logger:     logger.With("reliable_sink", cfg.Id),
		transport:  transport,
		queue:      newRetryQueue[R](cfg.QueueLimit),
	}
}

// QueueLen reports the current retry queue depth.
func (s *Sink[R, A]) QueueLen() int { return s.queue.len() }

// Send runs the retry policy for one batch: attempt, classify failure,
// backoff and retry while recoverable and attempts remain, enqueue once the
// budget is exhausted, drop immediately on a non-recoverable classification.
// Send never returns an error for an outcome the policy has already
// resolved (success, drop, enqueue); it returns an error only if ctx is
// cancelled mid-backoff, since that is the caller's concern, not the
// sink's.
func (s *Sink[R, A]) Send(ctx context.Context, batch R) error {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := s.transport.SendRequest(ctx, batch)
		latencyMs := float64(time.Since(start).Milliseconds())
		s.publish("latency", selfmetrics.Average, latencyMs)

		if err == nil {
			s.publish("serviceSuccess", selfmetrics.Increment, 1)
			return nil
		}

		if !s.classifier.IsRecoverable(err) {
			s.publish("nonrecoverableServiceErrors", selfmetrics.Increment, 1)
			s.logger.Warn("non-recoverable send failure, dropping batch", "error", err)
			return nil
		}

		s.publish("recoverableServiceErrors", selfmetrics.Increment, 1)

		if attempt >= s.attempts {
			if dropped := s.queue.enqueue(batch); dropped {
				s.publish("nonrecoverableServiceErrors", selfmetrics.Increment, 1)
				s.logger.Warn("retry queue full, dropped oldest entry")
			}
			return nil
		}

		backoff := jitteredBackoff(s.interval, attempt)
		s.logger.Warn("recoverable send failure, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// jitteredBackoff draws from Uniform[0, interval*attempt) * 100ms.
func jitteredBackoff(interval, attempt int) time.Duration {
	span := float64(interval * attempt)
	if span <= 0 {
		return 0
	}
	ms := rand.Float64() * span * 100
	return time.Duration(ms) * time.Millisecond
}

// Flush drains the retry queue under the non-blocking single-holder gate:
// if another flush is already running, Flush returns immediately without
// touching the queue. It sends oldest-first, without the retry policy
// (single attempt each), and stops at the first failure so the remaining
// items stay queued in order for the next tick.
func (s *Sink[R, A]) Flush(ctx context.Context) {
	if !s.flushing.CompareAndSwap(false, true) {
		return
	}
	defer s.flushing.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("flush panicked", "panic", r)
		}
	}()

	for {
		item, ok := s.queue.peekFront()
		if !ok {
			return
		}

		err := s.transport.SendRequest(ctx, item)
		if err != nil {
			s.logger.Warn("flush send failed, suspending drain", "error", err)
			return
		}

		s.queue.popFront()
		s.publish("serviceSuccess", selfmetrics.Increment, 1)

		if s.queue.len() == 0 {
			return
		}

		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return
		}
	}
}

// RegisterDataSource implements capability.DataSink: the sink polls source
// on its own schedule via Aggregate rather than being subscribed to.
func (s *Sink[R, A]) RegisterDataSource(source capability.DataPullSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataSources = append(s.dataSources, source)
	return nil
}

// Aggregate pulls the current snapshot from every registered data source,
// groups the samples by metric name (dimensions are discarded for the
// aggregate output), and applies aggregator over each group.
func (s *Sink[R, A]) Aggregate(ctx context.Context, aggregator Aggregator[A]) map[string]A {
	groups := make(map[string][]float64)

	s.mu.Lock()
	sources := make([]capability.DataPullSource, len(s.dataSources))
	copy(sources, s.dataSources)
	s.mu.Unlock()

	for _, source := range sources {
		env, ok, err := source.Pull(ctx)
		if err != nil {
			s.logger.Warn("data source pull failed", "error", err)
			continue
		}
		if !ok {
			continue
		}
		samples, ok := env.Payload.([]selfmetrics.Sample)
		if !ok {
			continue
		}
		for _, sample := range samples {
			groups[sample.Key.Name] = append(groups[sample.Key.Name], sample.Value.Value)
		}
	}

	out := make(map[string]A, len(groups))
	for name, values := range groups {
		out[name] = aggregator(values)
	}
	return out
}

func (s *Sink[R, A]) publish(name string, counterType selfmetrics.CounterType, value float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.Publish(s.id, "reliable_sink", counterType, map[string]float64{name: value})
}

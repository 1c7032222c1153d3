// Package telemetry implements the built-in telemetry sink: it forwards
// self-metrics batches (pushed or pulled) to a remote ingestion endpoint
// through the shared reliable-sink retry/flush engine, over an HTTP
// transport that rate-limits its own retries independently of the flush
// loop's pacing.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
	"github.com/vitaliisemenov/agentcore/internal/sink/reliable"
)

const (
	defaultFlushInterval = 30 * time.Second
	defaultPollInterval  = time.Minute
	defaultRateLimit     = rate.Limit(5)
	defaultRateBurst     = 10
)

// Config parameterizes a Sink.
type Config struct {
	Id       string
	Endpoint string

	RateLimit rate.Limit
	RateBurst int

	// FlushInterval paces the retry-queue drain; PollInterval paces pulling
	// registered data sources for a periodic aggregate upload. Either can be
	// disabled by setting it negative.
	FlushInterval time.Duration
	PollInterval  time.Duration

	AttemptLimit    int
	IntervalSeconds int
	QueueLimit      int
	FlushQueueDelay time.Duration

	Metrics selfmetrics.Publisher
	Logger  *slog.Logger
}

// Sink is the built-in telemetry sink. It implements
// capability.EventStreamSink (pushed self-metric batches forwarded
// immediately), capability.DataSink (periodic aggregate upload from
// registered pull sources), and capability.Lifecycle.
type Sink struct {
	id     envelope.ComponentId
	logger *slog.Logger
	core   *reliable.Sink[Batch, float64]

	flushInterval time.Duration
	pollInterval  time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a telemetry Sink bound to cfg.Endpoint. Call Start to begin the
// background flush and poll loops.
func New(cfg Config) *Sink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", cfg.Id)

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = defaultRateBurst
	}
	transport := newHTTPTransport(cfg.Endpoint, limit, burst)

	flushInterval := cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = defaultFlushInterval
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	core := reliable.New[Batch, float64](transport, reliable.Config{
		Id:              cfg.Id,
		AttemptLimit:    cfg.AttemptLimit,
		IntervalSeconds: cfg.IntervalSeconds,
		QueueLimit:      cfg.QueueLimit,
		FlushQueueDelay: cfg.FlushQueueDelay,
		Classifier:      newStatusClassifier(),
		Metrics:         cfg.Metrics,
		Logger:          logger,
	})

	return &Sink{
		id:            envelope.ComponentId(cfg.Id),
		logger:        logger,
		core:          core,
		flushInterval: flushInterval,
		pollInterval:  pollInterval,
	}
}

// ID implements capability.Component.
func (s *Sink) ID() envelope.ComponentId { return s.id }

// QueueLen reports the current retry-queue depth.
func (s *Sink) QueueLen() int { return s.core.QueueLen() }

// Start implements capability.Lifecycle: it starts the flush and poll loops,
// each only when its interval is positive.
func (s *Sink) Start(ctx context.Context) error {
	s.stop = make(chan struct{})
	if s.flushInterval > 0 {
		s.wg.Add(1)
		go s.flushLoop(ctx)
	}
	if s.pollInterval > 0 {
		s.wg.Add(1)
		go s.pollLoop(ctx)
	}
	return nil
}

// Stop implements capability.Lifecycle. Safe to call more than once.
func (s *Sink) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
	return nil
}

// Handle implements capability.EventStreamSink: a pushed self-metrics batch
// is sent through the retry policy immediately rather than waiting for the
// next poll tick.
func (s *Sink) Handle(ctx context.Context, env capability.Envelope) error {
	samples, ok := env.Payload.([]selfmetrics.Sample)
	if !ok {
		return nil
	}
	return s.core.Send(ctx, Batch{Samples: samples, AssembledAt: env.Timestamp})
}

// RegisterDataSource implements capability.DataSink: source is polled on
// pollInterval and folded into the next aggregate upload rather than waited
// on per-call.
func (s *Sink) RegisterDataSource(source capability.DataPullSource) error {
	return s.core.RegisterDataSource(source)
}

func (s *Sink) flushLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.core.Flush(ctx)
		}
	}
}

func (s *Sink) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Sink) pollOnce(ctx context.Context) {
	aggregates := s.core.Aggregate(ctx, averageAggregator)
	if len(aggregates) == 0 {
		return
	}

	samples := make([]selfmetrics.Sample, 0, len(aggregates))
	for name, avg := range aggregates {
		samples = append(samples, selfmetrics.Sample{
			Key:   selfmetrics.MetricKey{Name: name},
			Value: selfmetrics.MetricValue{Value: avg, CounterType: selfmetrics.Average},
		})
	}

	if err := s.core.Send(ctx, Batch{Samples: samples, AssembledAt: time.Now()}); err != nil {
		s.logger.Warn("telemetry poll upload failed", "error", err)
	}
}

func averageAggregator(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

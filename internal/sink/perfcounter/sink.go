// Package perfcounter implements the built-in performance-counter sink: it
// subscribes to (or polls) the self-metrics source and exposes a small
// local dashboard — a JSON snapshot endpoint and a live websocket feed —
// over the counters it has observed.
package perfcounter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/config"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

const defaultPollInterval = 10 * time.Second

// Config parameterizes a Sink. Addr is the dashboard's listen address; an
// empty Addr disables the HTTP server entirely (useful for headless
// deployments or tests), while the sink still tracks counters.
// ConfigSnapshotFn, when set, backs the dashboard's /api/config endpoint;
// the manager supplies its own ConfigSnapshot method here when it
// constructs the built-in sink.
type Config struct {
	Id               string
	Addr             string
	PollInterval     time.Duration
	Logger           *slog.Logger
	ConfigSnapshotFn func() *config.Document
}

// Sink is the built-in performance-counter sink. It implements
// capability.EventStreamSink (pushed self-metric batches), capability.DataSink
// (polled self-metric sources), and capability.Lifecycle.
type Sink struct {
	id     envelope.ComponentId
	logger *slog.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	latest  map[string]float64
	sources []capability.DataPullSource

	bus       *bus
	dashboard *dashboard

	stopPoll chan struct{}
	wg       sync.WaitGroup
}

// New builds a performance-counter Sink. Call Start to begin serving the
// dashboard and polling any sources registered before or after Start.
func New(cfg Config) *Sink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	s := &Sink{
		id:           envelope.ComponentId(cfg.Id),
		logger:       logger.With("component", cfg.Id),
		pollInterval: pollInterval,
		latest:       make(map[string]float64),
	}
	s.bus = newBus(s.logger)
	s.dashboard = newDashboard(cfg.Addr, s, s.bus, cfg.ConfigSnapshotFn, s.logger)
	return s
}

// ID implements capability.Component.
func (s *Sink) ID() envelope.ComponentId { return s.id }

// Start implements capability.Lifecycle: it starts the broadcast bus, the
// dashboard HTTP listener (if configured), and the data-source poll loop.
func (s *Sink) Start(ctx context.Context) error {
	s.bus.start(ctx)
	if err := s.dashboard.start(); err != nil {
		return err
	}

	s.stopPoll = make(chan struct{})
	s.wg.Add(1)
	go s.pollLoop()
	return nil
}

// Stop implements capability.Lifecycle. Safe to call more than once.
func (s *Sink) Stop(ctx context.Context) error {
	if s.stopPoll != nil {
		close(s.stopPoll)
		s.wg.Wait()
		s.stopPoll = nil
		s.bus.close()
	}
	return s.dashboard.stop(ctx)
}

// Handle implements capability.EventStreamSink: it receives pushed
// self-metrics batches (the self-metrics source's Subscribe payload).
func (s *Sink) Handle(ctx context.Context, env capability.Envelope) error {
	samples, ok := env.Payload.([]selfmetrics.Sample)
	if !ok {
		return nil
	}
	s.ingest(samples)
	return nil
}

// RegisterDataSource implements capability.DataSink: the sink polls source
// on pollInterval rather than waiting for a push.
func (s *Sink) RegisterDataSource(source capability.DataPullSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, source)
	return nil
}

// Snapshot returns a copy of the currently known counter values, keyed by
// metric name.
func (s *Sink) Snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]float64, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

func (s *Sink) ingest(samples []selfmetrics.Sample) {
	s.mu.Lock()
	delta := make(map[string]float64, len(samples))
	for _, sample := range samples {
		s.latest[sample.Key.Name] = sample.Value.Value
		delta[sample.Key.Name] = sample.Value.Value
	}
	s.mu.Unlock()

	if err := s.bus.publish(delta); err != nil {
		s.logger.Debug("dashboard update dropped", "error", err)
	}
}

func (s *Sink) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPoll:
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

func (s *Sink) pollOnce() {
	s.mu.Lock()
	sources := make([]capability.DataPullSource, len(s.sources))
	copy(sources, s.sources)
	s.mu.Unlock()

	ctx := context.Background()
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
		s.ingest(samples)
	}
}

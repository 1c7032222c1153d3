package selfmetrics

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
)

// Sample pairs a MetricKey with its current MetricValue. Snapshot and
// publish payloads are carried as []Sample so consumers get a stable,
// orderable view instead of ranging over a map.
type Sample struct {
	Key   MetricKey
	Value MetricValue
}

// Source is the always-present self-metrics producer. The manager writes
// counters into it through Publish; built-in and user sinks read from it
// either by subscribing (push) or by registering as its consumer and
// calling Pull (poll).
type Source struct {
	logger *slog.Logger

	mu      sync.Mutex
	samples map[seriesKey]Sample

	subMu sync.RWMutex
	subs  map[uuid.UUID]capability.Handler

	registry *prometheus.Registry
	gaugeMu  sync.Mutex
	gauges   map[string]*prometheus.GaugeVec
}

// seriesKey is the comparable form of a published MetricKey, used to index
// samples; MetricKey holds a map and cannot be a map key itself.
type seriesKey struct {
	name, category, id string
}

// NewSource builds the self-metrics source. logger is the manager's own
// logger; the source scopes it with its reserved id. Every published sample is mirrored into a private
// Prometheus registry (not the global default, to avoid collisions across
// reload generations) so the performance-counter sink's dashboard and any
// scrape endpoint can expose the same numbers without a second bookkeeping
// path.
func NewSource(logger *slog.Logger) *Source {
	return &Source{
		logger:   logger.With("component", string(SourceID)),
		samples:  make(map[seriesKey]Sample),
		subs:     make(map[uuid.UUID]capability.Handler),
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

// ID implements capability.Component.
func (s *Source) ID() envelope.ComponentId {
	return SourceID
}

// Start is a no-op; the source has no background work of its own, it only
// reacts to Publish calls and Pull/Subscribe requests.
func (s *Source) Start(ctx context.Context) error { return nil }

// Stop clears all subscriptions. Safe to call more than once.
func (s *Source) Stop(ctx context.Context) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = make(map[uuid.UUID]capability.Handler)
	return nil
}

// Publish implements the Publisher interface. It merges values into the
// running samples according to counterType and, if there are subscribers,
// broadcasts the resulting batch as an envelope.
func (s *Source) Publish(id, category string, counterType CounterType, values map[string]float64) {
	if len(values) == 0 {
		return
	}

	batch := make([]Sample, 0, len(values))

	s.mu.Lock()
	for name, v := range values {
		key := MetricKey{Name: name, Category: category, Dimensions: map[string]string{"id": id}}
		series := seriesKey{name: name, category: category, id: id}
		merged := s.mergeLocked(series, v, counterType)
		s.samples[series] = Sample{Key: key, Value: merged}
		batch = append(batch, Sample{Key: key, Value: merged})
	}
	s.mu.Unlock()

	for _, sample := range batch {
		s.mirrorToPrometheus(sample)
	}

	s.broadcast(batch)
}

// mirrorToPrometheus keeps a GaugeVec per metric name, lazily created on
// first observation since names arrive dynamically from components rather
// than being known at compile time.
func (s *Source) mirrorToPrometheus(sample Sample) {
	s.gaugeMu.Lock()
	defer s.gaugeMu.Unlock()

	gv, ok := s.gauges[sample.Key.Name]
	if !ok {
		gv = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentcore",
			Subsystem: "self",
			Name:      sanitizeMetricName(sample.Key.Name),
			Help:      "Self-reported agent metric: " + sample.Key.Name,
		}, []string{"id", "category"})
		if err := s.registry.Register(gv); err != nil {
			s.logger.Warn("could not register self-metric gauge", "name", sample.Key.Name, "error", err)
			return
		}
		s.gauges[sample.Key.Name] = gv
	}

	gv.WithLabelValues(sample.Key.Dimensions["id"], sample.Key.Category).Set(sample.Value.Value)
}

// Gather returns the current Prometheus metric families for the built-in
// sinks and any external scrape endpoint.
func (s *Source) Gather() ([]*dto.MetricFamily, error) {
	return s.registry.Gather()
}

// WriteExpositionFormat encodes the current metric families in the text
// exposition format used by Prometheus scrapers.
func (s *Source) WriteExpositionFormat(w io.Writer) error {
	families, err := s.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func sanitizeMetricName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "unnamed"
	}
	return string(out)
}

func (s *Source) mergeLocked(key seriesKey, v float64, counterType CounterType) MetricValue {
	prev, ok := s.samples[key]

	switch counterType {
	case Increment:
		if ok {
			v += prev.Value.Value
		}
	case Average:
		if ok {
			v = (prev.Value.Value + v) / 2
		}
	case Current:
		// replace outright
	}

	unit := prev.Value.Unit
	return MetricValue{Value: v, Unit: unit, CounterType: counterType}
}

// Snapshot returns every currently-tracked sample.
func (s *Source) Snapshot() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, 0, len(s.samples))
	for _, sample := range s.samples {
		out = append(out, sample)
	}
	return out
}

// Subscribe implements capability.EventStreamSource: sinks that want a live
// push of newly-published batches register here.
func (s *Source) Subscribe(handler capability.Handler) (capability.Subscription, error) {
	if handler == nil {
		return nil, nil
	}

	id := uuid.New()
	s.subMu.Lock()
	s.subs[id] = handler
	s.subMu.Unlock()

	return capability.SubscriptionFunc(func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}), nil
}

// Pull implements capability.DataPullSource: the reliable sink's
// aggregation step pulls the full current snapshot rather than subscribing.
func (s *Source) Pull(ctx context.Context) (capability.Envelope, bool, error) {
	snap := s.Snapshot()
	if len(snap) == 0 {
		return capability.Envelope{}, false, nil
	}
	return envelope.New[any](snap, "", ""), true, nil
}

func (s *Source) broadcast(batch []Sample) {
	s.subMu.RLock()
	handlers := make([]capability.Handler, 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subMu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	env := envelope.New[any](batch, "", "")
	ctx := context.Background()
	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			s.logger.Warn("self-metrics subscriber handler failed", "error", err)
		}
	}
}

package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

const defaultConnectInterval = 30 * time.Second

// ConnectFunc probes connectivity to the telemetry endpoint. It returns a
// non-nil error for anything short of success — per the redesigned
// connect-path contract, a probe failure is never reported as success.
type ConnectFunc func(ctx context.Context) error

// httpConnectProbe issues a lightweight HEAD request against endpoint and
// treats any non-2xx response or transport error as a failed probe.
func httpConnectProbe(endpoint string) ConnectFunc {
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return nil
	}
}

// Connector is the reserved telemetry connector source: on an interval it
// probes the telemetry endpoint and pushes a connectivity-status sample to
// its subscriber. The manager wires its one subscriber directly to the
// configured redirect sink rather than through the declared pipes section.
type Connector struct {
	id       envelope.ComponentId
	logger   *slog.Logger
	interval time.Duration
	probe    ConnectFunc
	metrics  selfmetrics.Publisher

	mu      sync.Mutex
	subs    map[int]capability.Handler
	nextSub int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewConnector builds a Connector. probe defaults to an HTTP HEAD check
// against endpoint if nil.
func NewConnector(id envelope.ComponentId, endpoint string, probe ConnectFunc, interval time.Duration, metrics selfmetrics.Publisher, logger *slog.Logger) *Connector {
	if probe == nil {
		probe = httpConnectProbe(endpoint)
	}
	if interval <= 0 {
		interval = defaultConnectInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		id:       id,
		logger:   logger.With("component", string(id)),
		interval: interval,
		probe:    probe,
		metrics:  metrics,
		subs:     make(map[int]capability.Handler),
	}
}

// ID implements capability.Component.
func (c *Connector) ID() envelope.ComponentId { return c.id }

// Subscribe implements capability.EventStreamSource.
func (c *Connector) Subscribe(handler capability.Handler) (capability.Subscription, error) {
	c.mu.Lock()
	c.nextSub++
	key := c.nextSub
	c.subs[key] = handler
	c.mu.Unlock()

	return capability.SubscriptionFunc(func() {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
	}), nil
}

// Start implements capability.Lifecycle.
func (c *Connector) Start(ctx context.Context) error {
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop implements capability.Lifecycle. Safe to call more than once.
func (c *Connector) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	close(c.stop)
	c.wg.Wait()
	c.stop = nil
	return nil
}

func (c *Connector) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.probeOnce(ctx)
		}
	}
}

// probeOnce runs one connectivity probe. Per the redesigned connect-path
// contract, any probe error is counted and logged as a failure; it is never
// translated into a successful connectivity sample.
func (c *Connector) probeOnce(ctx context.Context) {
	err := c.probe(ctx)
	c.publish("telemetryConnectAttempts", selfmetrics.Increment, 1)

	if err != nil {
		c.logger.Warn("telemetry connect probe failed", "error", err)
		c.publish("telemetryConnectFailures", selfmetrics.Increment, 1)
		return
	}

	c.publish("telemetryConnectSuccess", selfmetrics.Increment, 1)
	c.broadcast(ctx, []selfmetrics.Sample{
		{Key: selfmetrics.MetricKey{Name: "telemetryConnected"}, Value: selfmetrics.MetricValue{Value: 1, CounterType: selfmetrics.Current}},
	})
}

func (c *Connector) broadcast(ctx context.Context, samples []selfmetrics.Sample) {
	c.mu.Lock()
	handlers := make([]capability.Handler, 0, len(c.subs))
	for _, h := range c.subs {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	env := envelope.New[any](samples, "", "")
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if err := h(ctx, env); err != nil {
			c.logger.Warn("telemetry connector subscriber handle failed", "error", err)
		}
	}
}

func (c *Connector) publish(name string, counterType selfmetrics.CounterType, value float64) {
	if c.metrics == nil {
		return
	}
	c.metrics.Publish(string(c.id), "telemetry_connector", counterType, map[string]float64{name: value})
}

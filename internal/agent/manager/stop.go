package manager

import (
	"context"
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/networkstatus"
)

// Stop executes the shutdown sequence. serviceStopping=true means the host
// process itself is shutting down: sources and subscriptions are fire-and-
// forget so the full grace window goes to sink flush instead, preserving
// that asymmetry deliberately. Stop never returns an error; all
// per-component failures are logged and contained.
func (m *Manager) Stop(ctx context.Context, serviceStopping bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(ctx, serviceStopping)
}

func (m *Manager) stopLocked(ctx context.Context, serviceStopping bool) {
	// Step 1: disarm timers. This runs even when the manager is already
	// stopped, since a failed reload leaves the watcher and timer armed.
	m.disarmReloadLocked()
	if m.selfUpdate != nil {
		m.selfUpdate.Stop()
		m.selfUpdate = nil
	}
	if m.configWatcher != nil {
		_ = m.configWatcher.Close()
		m.configWatcher = nil
	}

	if !m.running {
		return
	}

	// Step 2: fan out source stops.
	sourceTargets := make([]stoppable, 0, len(m.sources)+len(m.pipes))
	for id, source := range m.sources {
		if lifecycle, ok := source.(capability.Lifecycle); ok {
			sourceTargets = append(sourceTargets, stoppable{id: id, kind: "source", lifecycle: lifecycle})
		}
	}
	for id, pipe := range m.pipes {
		sourceTargets = append(sourceTargets, stoppable{id: id, kind: "pipe", lifecycle: pipe})
	}
	if serviceStopping {
		fireAndForget(ctx, sourceTargets, m.logger)
	} else {
		fanOutStop(ctx, sourceTargets, sourceStopTimeout, m.logger)
	}

	// Step 3: dispose subscriptions, same cap/isolation as sources.
	m.disposeSubscriptions(serviceStopping)

	// Step 4: fan out sink and plugin stops, always awaited.
	sinkTargets := make([]stoppable, 0, len(m.sinks)+len(m.plugins))
	for id, sink := range m.sinks {
		if lifecycle, ok := sink.(capability.Lifecycle); ok {
			sinkTargets = append(sinkTargets, stoppable{id: id, kind: "sink", lifecycle: lifecycle})
		}
	}
	for id, plugin := range m.plugins {
		if lifecycle, ok := plugin.(capability.Lifecycle); ok {
			sinkTargets = append(sinkTargets, stoppable{id: id, kind: "plugin", lifecycle: lifecycle})
		}
	}
	fanOutStop(ctx, sinkTargets, sinkStopTimeout, m.logger)

	// Step 5: reset process-wide network-status providers.
	networkstatus.ResetAll()

	m.sources = nil
	m.sourceTypes = nil
	m.pipes = nil
	m.sinks = nil
	m.sinkTypes = nil
	m.plugins = nil
	m.subscriptions = nil
	m.running = false

	m.logger.Info("manager stopped", "service_stopping", serviceStopping)
}

type stoppable struct {
	id        envelope.ComponentId
	kind      string
	lifecycle capability.Lifecycle
}

// fanOutStop runs Stop on every target concurrently, each isolated from the
// others' panics and errors, awaiting completion up to timeout. Targets that
// do not finish in time are abandoned, not force-killed — the manager
// proceeds regardless.
func fanOutStop(parent context.Context, targets []stoppable, timeout time.Duration, logger stopLogger) {
	if len(targets) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan stoppable, len(targets))
	for _, t := range targets {
		go func(t stoppable) {
			stopOneSafely(ctx, t, logger)
			done <- t
		}(t)
	}

	completed := 0
	for completed < len(targets) {
		select {
		case <-done:
			completed++
		case <-ctx.Done():
			logger.Warn("stop timed out, proceeding without remaining components",
				"kind", targets[0].kind, "completed", completed, "total", len(targets))
			return
		}
	}
}

// fireAndForget starts Stop on every target without waiting for any of
// them, used for the serviceStopping fast path.
func fireAndForget(parent context.Context, targets []stoppable, logger stopLogger) {
	for _, t := range targets {
		go stopOneSafely(context.Background(), t, logger)
	}
}

func stopOneSafely(ctx context.Context, t stoppable, logger stopLogger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("component stop panicked", "kind", t.kind, "id", t.id, "panic", r)
		}
	}()
	if err := t.lifecycle.Stop(ctx); err != nil {
		logger.Warn("component stop failed", "kind", t.kind, "id", t.id, "error", err)
	}
}

func (m *Manager) disposeSubscriptions(serviceStopping bool) {
	subs := m.subscriptions
	if len(subs) == 0 {
		return
	}

	done := make(chan struct{}, len(subs))
	for _, sub := range subs {
		go func(sub capability.Subscription) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("subscription dispose panicked", "panic", r)
				}
				done <- struct{}{}
			}()
			sub.Dispose()
		}(sub)
	}

	if serviceStopping {
		return
	}

	timer := time.NewTimer(sourceStopTimeout)
	defer timer.Stop()
	completed := 0
	for completed < len(subs) {
		select {
		case <-done:
			completed++
		case <-timer.C:
			m.logger.Warn("subscription dispose timed out", "completed", completed, "total", len(subs))
			return
		}
	}
}

// stopLogger is the narrow logging surface fan-out helpers need; *slog.Logger
// satisfies it directly.
type stopLogger interface {
	Warn(msg string, args ...any)
}

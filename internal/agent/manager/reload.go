package manager

import (
	"context"
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

// ReloadResult reports the outcome of one hot-reload cycle. Reload here is
// always a full stop/start, no topology diffing, so Version tracks the
// cycle count rather than a config revision number, and ComponentsReloaded
// holds per-kind load counts rather than per-instance detail.
type ReloadResult struct {
	Version            int
	Success            bool
	ComponentsReloaded []ComponentReloadResult
	Duration           time.Duration
	Error              error
}

// ComponentReloadResult is the load/fail count for one component kind
// (sources, sinks, pipes, plugins, credentials) during a reload cycle.
type ComponentReloadResult struct {
	Kind   string
	Loaded int
	Failed int
}

// LastReloadResult returns the outcome of the most recent hot-reload cycle,
// or nil if none has run yet.
func (m *Manager) LastReloadResult() *ReloadResult {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	return m.lastReload
}

func (m *Manager) componentReloadCounts() []ComponentReloadResult {
	snapshot := m.metrics.Snapshot()
	values := make(map[string]float64, len(snapshot))
	for _, sample := range snapshot {
		values[sample.Key.Name] = sample.Value.Value
	}

	kinds := []struct {
		kind, loadedKey, failedKey string
	}{
		{"credentials", "credentials_loaded", "credentials_failed"},
		{"sinks", "sinks_started", "sinks_failed"},
		{"sources", "sources_started", "sources_failed"},
		{"pipes", "pipes_connected", "pipes_failed"},
		{"plugins", "plugins_started", "plugins_failed"},
	}

	results := make([]ComponentReloadResult, 0, len(kinds))
	for _, k := range kinds {
		results = append(results, ComponentReloadResult{
			Kind:   k.kind,
			Loaded: int(values[k.loadedKey]),
			Failed: int(values[k.failedKey]),
		})
	}
	return results
}

// scheduleReloadCheck arms the periodic hot-reload timer. The timer disarms
// itself on entry (checkReload) and re-arms on exit so a slow reload can
// never overlap with the next tick, preserving single-writer discipline
// across Start/Stop/reload.
func (m *Manager) scheduleReloadCheck() {
	if m.reloadTimer != nil {
		m.reloadTimer.Stop()
	}
	m.reloadTimer = time.AfterFunc(m.configInterval, m.checkReload)
}

// disarmReloadLocked stops the reload timer without re-arming it. Called
// under m.mu from Stop.
func (m *Manager) disarmReloadLocked() {
	if m.reloadTimer != nil {
		m.reloadTimer.Stop()
		m.reloadTimer = nil
	}
}

// checkReload runs on the timer goroutine. It disarms on entry, compares
// the watcher's last-observed change time against configLoadTime, and if
// newer performs exactly one full Stop/Start cycle before re-arming.
func (m *Manager) checkReload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The manager may already be stopped by a failed reload; its watcher
	// stays armed so that the next change can still recover it.
	if m.configWatcher == nil {
		return
	}

	updatedAt := m.configWatcher.UpdatedAt()
	if !updatedAt.After(m.configLoadTime) {
		m.scheduleReloadCheck()
		return
	}

	ctx := context.Background()
	m.logger.Info("configuration change detected, reloading", "updated_at", updatedAt, "loaded_at", m.configLoadTime)

	start := time.Now()
	m.stopLocked(ctx, false)
	if err := m.startLocked(ctx); err != nil {
		m.reloadFailureCount++
		m.logger.Error("reload failed, manager left stopped", "error", err)
		m.metrics.Publish(string(selfmetrics.SourceID), "reload", selfmetrics.Increment, map[string]float64{
			"config_reload_failure_count": 1,
		})
		m.recordReloadResult(false, time.Since(start), err)

		// startLocked returned before arming its own watcher/timer, so the
		// next successful reload attempt still needs a live watcher to
		// recover from this failure.
		if err := m.armConfigWatch(); err != nil {
			m.logger.Warn("could not re-arm configuration watcher after failed reload", "error", err)
			return
		}
		m.scheduleReloadCheck()
		return
	}

	m.reloadSuccessCount++
	m.metrics.Publish(string(selfmetrics.SourceID), "reload", selfmetrics.Increment, map[string]float64{
		"config_reload_count": 1,
	})
	m.recordReloadResult(true, time.Since(start), nil)
}

func (m *Manager) recordReloadResult(success bool, duration time.Duration, err error) {
	result := &ReloadResult{
		Version:            m.reloadSuccessCount + m.reloadFailureCount,
		Success:            success,
		ComponentsReloaded: m.componentReloadCounts(),
		Duration:           duration,
		Error:              err,
	}
	m.reloadMu.Lock()
	m.lastReload = result
	m.reloadMu.Unlock()
}

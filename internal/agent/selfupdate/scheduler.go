// Package selfupdate implements the self-update timer: when enabled, it
// fires a package-manager invocation at a fixed interval with a randomized
// initial delay so a fleet of agents doesn't all update at once.
package selfupdate

import (
	"log/slog"
	"math/rand"
	"time"
)

// Trigger is the external collaborator that actually performs the update
// (a platform-native package-manager invocation). The scheduler only owns
// timing.
type Trigger func() error

// Scheduler arms a one-shot initial timer followed by a recurring one, both
// driven by a single interval.
type Scheduler struct {
	interval time.Duration
	trigger  Trigger
	logger   *slog.Logger

	timer *time.Timer
}

// New builds a Scheduler for the given interval in minutes. intervalMinutes
// <= 0 means self-update is disabled; callers should not call Start in that
// case (the manager checks `SelfUpdate > 0` before constructing one during
// its load sequence).
func New(intervalMinutes int, trigger Trigger, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: time.Duration(intervalMinutes) * time.Minute,
		trigger:  trigger,
		logger:   logger.With("component", "self_update"),
	}
}

// Start arms the initial timer at a randomized due time in [0, interval),
// de-synchronizing fleets that share the same configured interval.
func (s *Scheduler) Start() {
	initialDelay := time.Duration(rand.Float64() * float64(s.interval))
	s.logger.Info("self-update armed", "interval", s.interval, "initial_delay", initialDelay)

	s.timer = time.AfterFunc(initialDelay, s.fire)
}

func (s *Scheduler) fire() {
	if err := s.trigger(); err != nil {
		s.logger.Error("self-update trigger failed", "error", err)
	} else {
		s.logger.Info("self-update trigger completed")
	}

	// Re-arm for the steady-state cadence; only the initial delay is
	// randomized.
	s.timer = time.AfterFunc(s.interval, s.fire)
}

// Stop disarms the timer. Safe to call even if Start was never called.
func (s *Scheduler) Stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

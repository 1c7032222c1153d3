package perfcounter

import (
	"github.com/vitaliisemenov/agentcore/internal/agent/config"
	"github.com/vitaliisemenov/agentcore/internal/agent/manager"
	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
)

// Provider registers the performance-counter sink factory under the
// reserved built-in sink type name, so the manager's load step 4 can
// construct it independent of anything declared under Sinks.
func Provider(catalogs *manager.Catalogs) error {
	catalogs.Sinks.Register(manager.PerformanceCounterSinkType, build)
	return nil
}

func build(ctx *plugincontext.Context) (any, error) {
	cfg := Config{
		Addr:         ctx.Config.GetString("addr"),
		PollInterval: ctx.Config.GetDuration("pollinterval"),
		Logger:       ctx.Logger,
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	cfg.Id = manager.PerformanceCounterSinkType
	if snapFn, ok := ctx.Data["config_snapshot_fn"].(func() *config.Document); ok {
		cfg.ConfigSnapshotFn = snapFn
	}

	return New(cfg), nil
}

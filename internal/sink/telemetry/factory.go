package telemetry

import (
	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/agentcore/internal/agent/manager"
	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
)

// Provider registers both the telemetry sink and the telemetry connector
// source factories under their reserved type names.
func Provider(catalogs *manager.Catalogs) error {
	catalogs.Sinks.Register(manager.TelemetrySinkType, buildSink)
	catalogs.Sources.Register(manager.TelemetryConnectorSourceType, buildConnector)
	return nil
}

func buildSink(ctx *plugincontext.Context) (any, error) {
	cfg := Config{
		Id:              manager.TelemetrySinkType,
		Endpoint:        ctx.Config.GetString("endpoint"),
		RateLimit:       rate.Limit(ctx.Config.GetInt("ratelimitpersecond")),
		RateBurst:       ctx.Config.GetInt("rateburst"),
		FlushInterval:   ctx.Config.GetDuration("flushinterval"),
		PollInterval:    ctx.Config.GetDuration("pollinterval"),
		AttemptLimit:    ctx.Config.GetInt("attemptlimit"),
		IntervalSeconds: ctx.Config.GetInt("intervalseconds"),
		QueueLimit:      ctx.Config.GetInt("queuelimit"),
		Metrics:         ctx.Metrics,
		Logger:          ctx.Logger,
	}
	return New(cfg), nil
}

func buildConnector(ctx *plugincontext.Context) (any, error) {
	endpoint := ctx.Config.GetString("endpoint")
	interval := ctx.Config.GetDuration("connectintervalseconds")
	return NewConnector(manager.TelemetryConnectorSourceID, endpoint, nil, interval, ctx.Metrics, ctx.Logger), nil
}

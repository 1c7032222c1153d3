package manager

import (
	"context"

	"github.com/vitaliisemenov/agentcore/internal/agent/binder"
	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/config"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/networkstatus"
	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

func (m *Manager) loadCredentials(ctx context.Context, doc *config.Document) {
	loaded, failed := 0, 0
	for _, spec := range doc.Credentials {
		pctx := m.buildContext(envelope.ComponentId(spec.Id), componentView(spec))
		provider, known, err := m.catalogs.Credentials.Build(spec.Type, pctx)
		if !known {
			m.logger.Warn("unknown credential type", "id", spec.Id, "type", spec.Type)
			failed++
			continue
		}
		if err != nil {
			m.logger.Warn("credential construction failed", "id", spec.Id, "type", spec.Type, "error", err)
			failed++
			continue
		}
		m.credentials.Register(provider)
		loaded++
	}

	if failures := m.credentials.ResolveAll(ctx); len(failures) > 0 {
		for id, err := range failures {
			m.logger.Warn("credential resolution failed", "id", id, "error", err)
		}
	}

	m.metrics.Publish(string(selfmetrics.SourceID), "credentials", selfmetrics.Current, map[string]float64{
		"credentials_loaded": float64(loaded),
		"credentials_failed": float64(failed),
	})
}

func (m *Manager) loadBuiltinSinks(ctx context.Context, doc *config.Document) {
	m.constructBuiltinSink(ctx, PerformanceCounterSinkType, doc.PerformanceCounter)
	m.constructBuiltinSink(ctx, TelemetrySinkType, doc.Telemetrics)
}

func (m *Manager) constructBuiltinSink(ctx context.Context, typeName string, section map[string]any) {
	view, err := config.NewMapView(section)
	if err != nil {
		view = config.NewViperView(nil)
	}
	pctx := m.buildContext(envelope.ComponentId(typeName), view)

	sink, known, err := m.catalogs.Sinks.Build(typeName, pctx)
	if !known {
		return
	}
	if err != nil {
		m.logger.Warn("built-in sink construction failed", "type", typeName, "error", err)
		return
	}

	component, ok := sink.(capability.Component)
	if !ok {
		m.logger.Warn("built-in sink does not implement Component", "type", typeName)
		return
	}
	if lifecycle, ok := sink.(capability.Lifecycle); ok {
		if err := lifecycle.Start(ctx); err != nil {
			m.logger.Warn("built-in sink start failed", "type", typeName, "error", err)
			return
		}
	}

	m.sinks[component.ID()] = sink

	if sub, _ := m.metrics.Subscribe(asHandler(sink)); sub != nil {
		m.subscriptions = append(m.subscriptions, sub)
	}
	if pull, ok := sink.(capability.DataSink); ok {
		if err := pull.RegisterDataSource(m.metrics); err != nil {
			m.logger.Warn("built-in sink could not register self-metrics as data source", "type", typeName, "error", err)
		}
	}
}

// asHandler adapts a sink's Handle method, if it has one, to
// capability.Handler; sinks that are pull-only return nil and Subscribe is a
// harmless no-op against a nil handler.
func asHandler(sink any) capability.Handler {
	stream, ok := sink.(capability.EventStreamSink)
	if !ok {
		return nil
	}
	return stream.Handle
}

func (m *Manager) loadSinks(ctx context.Context, doc *config.Document) {
	started, failed := 0, 0
	for _, spec := range doc.Sinks {
		pctx := m.buildContext(envelope.ComponentId(spec.Id), componentView(spec))
		sink, known, err := m.catalogs.Sinks.Build(spec.Type, pctx)
		if !known {
			m.logger.Warn("unknown sink type", "id", spec.Id, "type", spec.Type)
			failed++
			continue
		}
		if err != nil {
			m.logger.Warn("sink construction failed", "id", spec.Id, "type", spec.Type, "error", err)
			failed++
			continue
		}

		component, ok := sink.(capability.Component)
		if !ok {
			m.logger.Warn("sink does not implement Component", "id", spec.Id, "type", spec.Type)
			failed++
			continue
		}
		if lifecycle, ok := sink.(capability.Lifecycle); ok {
			if err := lifecycle.Start(ctx); err != nil {
				m.logger.Warn("sink start failed", "id", spec.Id, "type", spec.Type, "error", err)
				failed++
				continue
			}
		}

		m.sinks[component.ID()] = sink
		m.sinkTypes[component.ID()] = spec.Type
		started++
	}

	m.metrics.Publish(string(selfmetrics.SourceID), "sinks", selfmetrics.Current, map[string]float64{
		"sinks_started": float64(started),
		"sinks_failed":  float64(failed),
	})
}

func (m *Manager) loadSources(doc *config.Document) {
	constructed, failed := 0, 0
	for _, spec := range doc.Sources {
		pctx := m.buildContext(envelope.ComponentId(spec.Id), componentView(spec))
		source, known, err := m.catalogs.Sources.Build(spec.Type, pctx)
		if !known {
			m.logger.Warn("unknown source type", "id", spec.Id, "type", spec.Type)
			failed++
			continue
		}
		if err != nil {
			m.logger.Warn("source construction failed", "id", spec.Id, "type", spec.Type, "error", err)
			failed++
			continue
		}

		component, ok := source.(capability.Component)
		if !ok {
			m.logger.Warn("source does not implement Component", "id", spec.Id, "type", spec.Type)
			failed++
			continue
		}

		m.sources[component.ID()] = source
		m.sourceTypes[component.ID()] = spec.Type
		constructed++
	}

	m.metrics.Publish(string(selfmetrics.SourceID), "sources", selfmetrics.Current, map[string]float64{
		"sources_constructed": float64(constructed),
		"sources_failed":      float64(failed),
	})
}

func (m *Manager) bindPipes(ctx context.Context, doc *config.Document) {
	connected, failed := 0, 0

	lookupSource := func(id string) (any, bool) {
		s, ok := m.sources[envelope.ComponentId(id)]
		return s, ok
	}
	lookupSink := func(id string) (any, bool) {
		s, ok := m.sinks[envelope.ComponentId(id)]
		return s, ok
	}
	buildPipeContext := func(upstreamType, downstreamType string) *plugincontext.Context {
		ctx := m.buildContext("", config.NewViperView(nil))
		return ctx.WithData("upstream_type", upstreamType).WithData("downstream_type", downstreamType)
	}

	for _, spec := range doc.Pipes {
		result := binder.Bind(spec, lookupSource, lookupSink, m.catalogs.Pipes, buildPipeContext,
			m.sourceTypes[envelope.ComponentId(spec.SourceRef)], m.sinkTypes[envelope.ComponentId(spec.SinkRef)])
		if result.Err != nil {
			m.logger.Warn("pipe binding failed", "id", spec.Id, "sourceref", spec.SourceRef, "sinkref", spec.SinkRef, "error", result.Err)
			failed++
			continue
		}
		if result.Outcome == binder.OutcomeTypedPipe && result.Pipe != nil {
			if err := result.Pipe.Start(ctx); err != nil {
				m.logger.Warn("pipe start failed", "id", spec.Id, "type", spec.Type, "error", err)
				for _, sub := range result.Subscriptions {
					sub.Dispose()
				}
				failed++
				continue
			}
			m.pipes[result.Pipe.ID()] = result.Pipe
		}
		m.subscriptions = append(m.subscriptions, result.Subscriptions...)
		connected++
	}

	m.wireTelemetryRedirect(doc)

	m.metrics.Publish(string(selfmetrics.SourceID), "pipes", selfmetrics.Current, map[string]float64{
		"pipes_connected": float64(connected),
		"pipes_failed":    float64(failed),
	})
}

// wireTelemetryRedirect installs the reserved telemetry pipe: if the
// Telemetrics section names a RedirectToSinkId, the always-present
// telemetry connector source is subscribed directly to that sink, bypassing
// the Pipes section entirely.
func (m *Manager) wireTelemetryRedirect(doc *config.Document) {
	view, err := config.NewMapView(doc.Telemetrics)
	if err != nil {
		return
	}
	redirectID := view.GetString("redirecttosinkid")
	if redirectID == "" {
		return
	}

	sink, ok := m.sinks[envelope.ComponentId(redirectID)]
	if !ok {
		m.logger.Warn("telemetry redirect sink not found", "sinkref", redirectID)
		return
	}
	sinkStream, ok := capability.AsEventStreamSink(sink)
	if !ok {
		m.logger.Warn("telemetry redirect sink does not accept pushed envelopes", "sinkref", redirectID)
		return
	}

	pctx := m.buildContext(TelemetryConnectorSourceID, config.NewViperView(nil))
	connector, known, err := m.catalogs.Sources.Build(TelemetryConnectorSourceType, pctx)
	if !known {
		return
	}
	if err != nil {
		m.logger.Warn("telemetry connector construction failed", "error", err)
		return
	}
	connectorStream, ok := capability.AsEventStreamSource(connector)
	if !ok {
		m.logger.Warn("telemetry connector does not implement event-stream source")
		return
	}

	// A connect failure here is a real failure: log and stop, rather than
	// silently treating a disconnected telemetry redirect as success.
	sub, err := connectorStream.Subscribe(sinkStream.Handle)
	if err != nil {
		m.logger.Warn("telemetry connector subscribe failed", "error", err)
		return
	}
	m.subscriptions = append(m.subscriptions, sub)

	if component, ok := connector.(capability.Component); ok {
		m.sources[component.ID()] = connector
		m.sourceTypes[component.ID()] = TelemetryConnectorSourceType
	}
}

func (m *Manager) startSources(ctx context.Context) {
	started, failed := 0, 0
	for id, source := range m.sources {
		lifecycle, ok := source.(capability.Lifecycle)
		if !ok {
			started++
			continue
		}
		if err := lifecycle.Start(ctx); err != nil {
			m.logger.Warn("source start failed", "id", id, "error", err)
			failed++
			continue
		}
		started++
	}

	m.metrics.Publish(string(selfmetrics.SourceID), "sources", selfmetrics.Current, map[string]float64{
		"sources_started": float64(started),
		"sources_failed":  float64(failed),
	})
}

func (m *Manager) armConfigWatch() error {
	watcher, err := config.NewWatcher(m.configPath, m.logger)
	if err != nil {
		return err
	}
	watcher.Start()
	m.configWatcher = watcher
	m.scheduleReloadCheck()
	return nil
}

func (m *Manager) loadPlugins(ctx context.Context, doc *config.Document) {
	started, failed := 0, 0
	for _, spec := range doc.Plugins {
		pctx := m.buildContext(envelope.ComponentId(spec.Id), componentView(spec))
		plugin, known, err := m.catalogs.Plugins.Build(spec.Type, pctx)
		if !known {
			m.logger.Warn("unknown plugin type", "id", spec.Id, "type", spec.Type)
			failed++
			continue
		}
		if err != nil {
			m.logger.Warn("plugin construction failed", "id", spec.Id, "type", spec.Type, "error", err)
			failed++
			continue
		}

		component, ok := plugin.(capability.Component)
		if !ok {
			m.logger.Warn("plugin does not implement Component", "id", spec.Id, "type", spec.Type)
			failed++
			continue
		}
		if lifecycle, ok := plugin.(capability.Lifecycle); ok {
			if err := lifecycle.Start(ctx); err != nil {
				m.logger.Warn("plugin start failed", "id", spec.Id, "type", spec.Type, "error", err)
				failed++
				continue
			}
		}

		m.plugins[component.ID()] = plugin
		if status, ok := plugin.(networkstatus.Provider); ok {
			networkstatus.Register(string(component.ID()), status)
		}
		started++
	}

	m.metrics.Publish(string(selfmetrics.SourceID), "plugins", selfmetrics.Current, map[string]float64{
		"plugins_started": float64(started),
		"plugins_failed":  float64(failed),
	})
}

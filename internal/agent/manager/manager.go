// Package manager implements the lifecycle manager: the component that
// loads a pluggable topology from configuration, binds sources to sinks,
// starts and stops everything in dependency order, hot-reloads on
// configuration change, and publishes its own operational counters.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/catalog"
	"github.com/vitaliisemenov/agentcore/internal/agent/config"
	"github.com/vitaliisemenov/agentcore/internal/agent/credential"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/paramstore"
	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfupdate"
)

const (
	sourceStopTimeout     = 300 * time.Second
	sinkStopTimeout       = 600 * time.Second
	defaultConfigInterval = 10 * time.Second

	// PerformanceCounterSinkType and TelemetrySinkType are the reserved type
	// names the built-in sinks register themselves under, so load step 4
	// can construct them independent of anything declared in Sinks.
	PerformanceCounterSinkType = "performancecounter"
	TelemetrySinkType          = "telemetry"

	// TelemetryConnectorSourceType is the reserved source type the
	// telemetry redirect pipe constructs when Telemetrics.RedirectToSinkId
	// is set.
	TelemetryConnectorSourceType = "telemetry_connector"
	TelemetryConnectorSourceID   = envelope.ComponentId("__telemetry_connector__")
)

// Catalogs bundles every per-kind factory catalog a FactoryProvider may
// register into. Sources and sinks are cataloged as `any` because the
// binder, not the catalog, decides which capability interface a
// constructed instance satisfies.
type Catalogs struct {
	Sources     *catalog.FactoryCatalog[any]
	Sinks       *catalog.FactoryCatalog[any]
	Pipes       *catalog.FactoryCatalog[capability.Pipe]
	Credentials *catalog.FactoryCatalog[credential.Provider]
	Plugins     *catalog.FactoryCatalog[any]
	Parsers     *catalog.FactoryCatalog[any]
}

func newCatalogs() *Catalogs {
	return &Catalogs{
		Sources:     catalog.New[any](),
		Sinks:       catalog.New[any](),
		Pipes:       catalog.New[capability.Pipe](),
		Credentials: catalog.New[credential.Provider](),
		Plugins:     catalog.New[any](),
		Parsers:     catalog.New[any](),
	}
}

// FactoryProvider registers factories into catalogs at discovery time. A
// provider that errors, or panics, is isolated: the manager counts it as a
// discovery failure for whichever catalog it was registering into and
// continues with the rest.
type FactoryProvider func(catalogs *Catalogs) error

// Config bundles everything the manager needs to construct itself.
type Config struct {
	ConfigPath string
	// LogConfigPath is the structured-log output path the host process
	// resolved its logger from (e.g. pkg/logger.Config.Filename); recorded
	// in the parameter store at start alongside the config directory.
	LogConfigPath  string
	Logger         *slog.Logger
	Params         plugincontext.ParameterStore
	CredentialSize int // LRU cache size for the credential registry; defaults to 64.
	Providers      []FactoryProvider
	SelfUpdateFn   selfupdate.Trigger
	BuildNumber    string
}

// Manager is the lifecycle manager. It is single-writer: Start, Stop, and
// reload must not run concurrently with one another, enforced by mu.
type Manager struct {
	logger *slog.Logger

	configPath     string
	logConfigPath  string
	configLoader   *config.Loader
	configWatcher  *config.Watcher
	configInterval time.Duration
	configLoadTime time.Time

	buildNumber  string
	selfUpdateFn selfupdate.Trigger

	metrics     *selfmetrics.Source
	params      plugincontext.ParameterStore
	credentials *credential.Registry

	catalogs  *Catalogs
	providers []FactoryProvider

	mu            sync.Mutex
	running       bool
	sources       map[envelope.ComponentId]any
	sourceTypes   map[envelope.ComponentId]string
	pipes         map[envelope.ComponentId]capability.Pipe
	sinks         map[envelope.ComponentId]any
	sinkTypes     map[envelope.ComponentId]string
	plugins       map[envelope.ComponentId]any
	subscriptions []capability.Subscription

	reloadTimer *time.Timer
	selfUpdate  *selfupdate.Scheduler

	reloadSuccessCount int
	reloadFailureCount int

	currentDoc *config.Document

	reloadMu   sync.Mutex
	lastReload *ReloadResult
}

// New constructs a Manager. It does not load configuration or start
// anything; call Start for that.
func New(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("manager: logger is required")
	}

	cacheSize := cfg.CredentialSize
	if cacheSize <= 0 {
		cacheSize = 64
	}
	credRegistry, err := credential.NewRegistry(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("manager: credential registry: %w", err)
	}

	logger := cfg.Logger.With("component", "manager")

	m := &Manager{
		logger:         logger,
		configPath:     cfg.ConfigPath,
		logConfigPath:  cfg.LogConfigPath,
		configLoader:   config.NewLoader(cfg.ConfigPath),
		configInterval: defaultConfigInterval,
		buildNumber:    cfg.BuildNumber,
		selfUpdateFn:   cfg.SelfUpdateFn,
		metrics:        selfmetrics.NewSource(logger),
		params:         cfg.Params,
		credentials:    credRegistry,
		providers:      cfg.Providers,
	}
	return m, nil
}

// ConfigSnapshot returns the most recently loaded configuration document
// with every sensitive-looking setting redacted, safe to expose on the
// performance-counter dashboard or hand to support. Returns nil before the
// first successful Start.
func (m *Manager) ConfigSnapshot() *config.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return config.Redact(m.currentDoc)
}

// SetConfigInterval changes the hot-reload check period. Safe to call
// before or after Start; it takes effect the next time the timer re-arms.
func (m *Manager) SetConfigInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.configInterval = d
	m.mu.Unlock()
}

// Start runs the full load sequence. A failure to load the configuration
// document at all is fatal and propagates out of Start; every other
// per-component failure is contained, logged, and counted.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	doc, err := m.configLoader.Load()
	if err != nil {
		return fmt.Errorf("manager: fatal: %w", err)
	}
	m.configLoadTime = time.Now().UTC()
	m.currentDoc = doc

	report := config.Validate(doc)
	for _, issue := range report.Issues {
		m.logger.Warn("configuration validation issue", "field", issue.Field, "message", issue.Message, "code", issue.Code)
	}

	m.catalogs = newCatalogs()
	m.sources = make(map[envelope.ComponentId]any)
	m.sourceTypes = make(map[envelope.ComponentId]string)
	m.pipes = make(map[envelope.ComponentId]capability.Pipe)
	m.sinks = make(map[envelope.ComponentId]any)
	m.sinkTypes = make(map[envelope.ComponentId]string)
	m.plugins = make(map[envelope.ComponentId]any)
	m.subscriptions = nil

	// Step 1: self-metrics source always exists first so every later step
	// can publish into it.
	m.metrics = selfmetrics.NewSource(m.logger)

	// Step 2: load factories for all kinds, isolating each provider.
	m.discoverFactories()

	// Step 3: construct credential providers.
	m.loadCredentials(ctx, doc)

	// Step 4: construct built-in sinks, subscribe them to self-metrics.
	m.loadBuiltinSinks(ctx, doc)

	// Step 5: construct and start user-declared sinks.
	m.loadSinks(ctx, doc)

	// Step 6: construct (not start) user-declared sources.
	m.loadSources(doc)

	// Step 7: bind pipes.
	m.bindPipes(ctx, doc)

	// Step 8: start sources.
	m.startSources(ctx)

	// Step 9: arm self-update timer.
	if doc.SelfUpdate > 0 && m.selfUpdateFn != nil {
		m.selfUpdate = selfupdate.New(doc.SelfUpdate, m.selfUpdateFn, m.logger)
		m.selfUpdate.Start()
		m.metrics.Publish(string(selfmetrics.SourceID), "self_update", selfmetrics.Current, map[string]float64{
			"self_update_interval_minutes": float64(doc.SelfUpdate),
		})
	}

	// Step 10: arm the config-watch timer.
	if err := m.armConfigWatch(); err != nil {
		m.logger.Warn("could not arm configuration watcher", "error", err)
	}

	// Step 11: construct and start generic plugins; register network-status
	// capable ones.
	m.loadPlugins(ctx, doc)

	if m.params != nil {
		_ = m.params.Set(ctx, paramstore.KeyConfigDir, filepath.Dir(m.configPath))
		_ = m.params.Set(ctx, paramstore.KeyStructuredLogFile, m.logConfigPath)
	}

	m.running = true
	m.logger.Info("manager started",
		"sources", len(m.sources), "sinks", len(m.sinks), "plugins", len(m.plugins),
		"build", m.buildNumber,
	)
	return nil
}

func (m *Manager) discoverFactories() {
	loaded, failed := 0, 0
	for _, provider := range m.providers {
		if err := m.safeDiscover(provider); err != nil {
			m.logger.Warn("factory provider registration failed", "error", err)
			failed++
			continue
		}
		loaded++
	}
	m.metrics.Publish(string(selfmetrics.SourceID), "factories", selfmetrics.Current, map[string]float64{
		"providers_loaded": float64(loaded),
		"providers_failed": float64(failed),
	})
}

// safeDiscover runs one provider in isolation: a panicking provider must
// never prevent the rest of discovery from completing.
func (m *Manager) safeDiscover(provider FactoryProvider) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("manager: factory provider panicked: %v", r)
		}
	}()
	return provider(m.catalogs)
}

func (m *Manager) buildContext(id envelope.ComponentId, sectionView plugincontext.ConfigView) *plugincontext.Context {
	ctx := plugincontext.New(id, sectionView, m.logger, m.metrics, m.credentials, m.params)
	ctx = ctx.WithData("id", string(id))
	return ctx.WithData("config_snapshot_fn", m.ConfigSnapshot)
}

func componentView(spec config.ComponentSpec) plugincontext.ConfigView {
	view, err := config.NewMapView(spec.Raw)
	if err != nil {
		return config.NewViperView(nil)
	}
	return view
}

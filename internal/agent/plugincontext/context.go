// Package plugincontext defines the per-component handle the manager builds
// for every source, sink, pipe, credential provider, and generic plugin it
// constructs from configuration.
package plugincontext

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
	"github.com/vitaliisemenov/agentcore/internal/agent/selfmetrics"
)

// ConfigView is a scoped, read-only view over one configuration section. The
// config package's loader implements this over a viper sub-tree; factories
// never see the whole document, only their own section.
type ConfigView interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
	Unmarshal(out any) error
	// Sub returns the nested view at key, or an empty view if key is absent.
	Sub(key string) ConfigView
}

// ParameterStore is the key/value persistence handle injected into every
// context. The concrete implementations live in the paramstore package; this
// narrow interface lets plugincontext name the contract without importing
// paramstore.
type ParameterStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CredentialRegistry is the read-only view over constructed credential
// providers a component may look itself up against.
type CredentialRegistry interface {
	Lookup(id string) (any, bool)
}

// Context is the per-component handle. It is built once per component by
// the manager/binder and handed to that component's factory.
type Context struct {
	Config      ConfigView
	Logger      *slog.Logger
	Metrics     selfmetrics.Publisher
	Credentials CredentialRegistry
	Params      ParameterStore

	// Data is the side-channel map used to pass typed values between the
	// binder and pipe constructors — e.g. upstream/downstream payload types
	// stashed ahead of constructing a typed pipe.
	Data map[string]any
}

// New builds a Context for a component identified by id. If id is blank the
// manager logger is reused unscoped.
func New(id envelope.ComponentId, cfg ConfigView, managerLogger *slog.Logger, metrics selfmetrics.Publisher, creds CredentialRegistry, params ParameterStore) *Context {
	logger := managerLogger
	if id != "" {
		logger = managerLogger.With("component", string(id))
	}

	return &Context{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Credentials: creds,
		Params:      params,
		Data:        make(map[string]any),
	}
}

// WithData returns a shallow copy of c with key set to value in Data. Used
// by the binder to stash payload-type hints without mutating a context a
// sibling construction path might still be reading.
func (c *Context) WithData(key string, value any) *Context {
	clone := *c
	clone.Data = make(map[string]any, len(c.Data)+1)
	for k, v := range c.Data {
		clone.Data[k] = v
	}
	clone.Data[key] = value
	return &clone
}

// Package catalog implements the generic per-kind factory registry: a
// case-insensitive name-to-factory map that plugin providers register into
// at discovery time and the manager looks up from at topology-construction
// time.
package catalog

import (
	"strings"
	"sync"

	"github.com/vitaliisemenov/agentcore/internal/agent/plugincontext"
)

// Factory builds one instance of K given a plugin context: a name is looked
// up in the catalog and the matching constructor returns an instance of
// kind K. The same catalog shape serves sources, sinks, pipes, credential
// providers, generic plugins, and record parsers alike.
type Factory[K any] func(ctx *plugincontext.Context) (K, error)

// FactoryCatalog is a case-insensitive registry of named factories for a
// single component kind. Registration is idempotent: registering the same
// name twice replaces the previous factory, last writer wins. It is safe
// for concurrent use.
type FactoryCatalog[K any] struct {
	mu      sync.RWMutex
	entries map[string]Factory[K]
	loaded  int
	failed  int
}

// New creates an empty catalog for kind K.
func New[K any]() *FactoryCatalog[K] {
	return &FactoryCatalog[K]{entries: make(map[string]Factory[K])}
}

// Register adds or replaces the factory registered under name. Lookup keys
// are normalized to lowercase; blank names are rejected.
func (c *FactoryCatalog[K]) Register(name string, factory Factory[K]) bool {
	key := normalize(name)
	if key == "" || factory == nil {
		c.recordFailure()
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = factory
	c.loaded++
	return true
}

// RecordDiscoveryFailure increments the failure counter for a provider that
// failed to register, without requiring a name. Used by the discovery loop
// when a provider itself errors before it can call Register.
func (c *FactoryCatalog[K]) RecordDiscoveryFailure() {
	c.recordFailure()
}

func (c *FactoryCatalog[K]) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

// Lookup returns the factory registered under name. An unknown or blank name
// returns the zero Factory and false; it never errors.
func (c *FactoryCatalog[K]) Lookup(name string) (Factory[K], bool) {
	key := normalize(name)
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.entries[key]
	return f, ok
}

// Build looks up name and, if found, invokes the factory with ctx. The bool
// return distinguishes "unknown name" from "factory returned an error" so
// callers can count and log each case distinctly.
func (c *FactoryCatalog[K]) Build(name string, ctx *plugincontext.Context) (K, bool, error) {
	var zero K
	f, ok := c.Lookup(name)
	if !ok {
		return zero, false, nil
	}
	v, err := f(ctx)
	if err != nil {
		c.recordFailure()
		return zero, true, err
	}
	return v, true, nil
}

// Names returns the registered factory names in no particular order.
func (c *FactoryCatalog[K]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}

// Stats reports the catalog's loaded/failed counters for publication as
// self-metrics. failed counts rejected registrations, discovery failures,
// and factories that returned an error from Build.
func (c *FactoryCatalog[K]) Stats() (loaded, failed int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded, c.failed
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

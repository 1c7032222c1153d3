// Package credential holds the credential-provider registry: constructed
// providers register their resolved credentials here, and components read
// them back through the read-only view carried in every PluginContext.
package credential

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vitaliisemenov/agentcore/internal/agent/capability"
	"github.com/vitaliisemenov/agentcore/internal/agent/envelope"
)

// Credential is an opaque resolved value (a token, a key pair, a connection
// string, ...); providers and their consumers agree on the concrete type by
// convention, the registry itself never inspects it.
type Credential any

// Provider constructs and resolves one credential entry. It is the unit the
// credential factory catalog produces.
type Provider interface {
	capability.Component
	Resolve(ctx context.Context) (Credential, error)
}

// Registry holds resolved credentials keyed by provider id, fronted by a
// bounded LRU cache so a registry backed by a provider with an expensive
// Resolve (e.g. a network round-trip to a secret store) doesn't re-resolve
// on every lookup.
type Registry struct {
	mu        sync.Mutex
	providers map[envelope.ComponentId]Provider
	cache     *lru.Cache[envelope.ComponentId, Credential]
}

// NewRegistry builds an empty registry with an LRU cache of the given size.
// cacheSize must be positive.
func NewRegistry(cacheSize int) (*Registry, error) {
	cache, err := lru.New[envelope.ComponentId, Credential](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("credential: new cache: %w", err)
	}
	return &Registry{
		providers: make(map[envelope.ComponentId]Provider),
		cache:     cache,
	}, nil
}

// Register adds a constructed provider under its own id. Idempotent: a
// later Register for the same id replaces the provider and evicts any
// cached credential for it.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	r.cache.Remove(p.ID())
}

// Resolve looks up or resolves (and caches) the credential for id.
func (r *Registry) Resolve(ctx context.Context, id envelope.ComponentId) (Credential, error) {
	if v, ok := r.cache.Get(id); ok {
		return v, nil
	}

	r.mu.Lock()
	p, ok := r.providers[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("credential: unknown provider %q", id)
	}

	v, err := p.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	r.cache.Add(id, v)
	return v, nil
}

// ResolveAll eagerly resolves every registered provider, returning the
// per-id errors for any that failed. The manager calls this once right
// after constructing the Credentials section so later Lookup calls from
// component factories never trigger a first resolution on the spot.
func (r *Registry) ResolveAll(ctx context.Context) map[envelope.ComponentId]error {
	r.mu.Lock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.Unlock()

	failures := make(map[envelope.ComponentId]error)
	for _, p := range providers {
		if _, err := r.Resolve(ctx, p.ID()); err != nil {
			failures[p.ID()] = err
		}
	}
	return failures
}

// Lookup implements plugincontext.CredentialRegistry's narrow read-only
// contract: it returns a cached credential without triggering resolution,
// so components reuse whatever the registry already resolved at start.
func (r *Registry) Lookup(id string) (any, bool) {
	return r.cache.Get(envelope.ComponentId(id))
}

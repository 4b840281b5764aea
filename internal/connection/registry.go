package connection

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry caches one Provider per credential. Managers share a registry
// so a provider client is built once per API key. Concurrent Get calls for
// the same key share a single factory call.
type Registry struct {
	factory ProviderFactory

	mu        sync.RWMutex
	providers map[string]Provider

	group singleflight.Group
}

// NewRegistry creates a registry backed by factory.
func NewRegistry(factory ProviderFactory) *Registry {
	return &Registry{
		factory:   factory,
		providers: make(map[string]Provider),
	}
}

// Get returns the cached provider for apiKey, building it on first use.
func (r *Registry) Get(apiKey string) (Provider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	r.mu.RLock()
	p, ok := r.providers[apiKey]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	if r.factory == nil {
		return nil, ErrNoFactory
	}

	v, err, _ := r.group.Do(apiKey, func() (interface{}, error) {
		r.mu.RLock()
		p, ok := r.providers[apiKey]
		r.mu.RUnlock()
		if ok {
			return p, nil
		}

		p, err := r.factory(apiKey)
		if err != nil {
			return nil, fmt.Errorf("build provider: %w", err)
		}

		r.mu.Lock()
		r.providers[apiKey] = p
		r.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Len returns the number of cached providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

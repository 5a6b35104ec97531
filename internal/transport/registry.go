package transport

import (
	"fmt"
	"sync"

	"golang.org/x/net/http/httpproxy"

	"buildClient/internal/models"
	"buildClient/internal/trust"
)

// Registry creates at most one pool per apiurl and keeps it for its own
// lifetime, normally the whole process.
type Registry struct {
	store    *trust.Store
	settings PoolSettings
	proxy    *httpproxy.Config

	mu       sync.Mutex
	pools    map[string]*Pool
	fallback *Pool
}

func NewRegistry(store *trust.Store, settings PoolSettings) *Registry {
	proxyCfg := settings.Proxy
	if proxyCfg == nil {
		proxyCfg = httpproxy.FromEnvironment()
	}
	return &Registry{
		store:    store,
		settings: settings,
		proxy:    proxyCfg,
		pools:    make(map[string]*Pool),
	}
}

func (r *Registry) Trust() *trust.Store { return r.store }

// Pool returns the pool for opts.APIURL, creating it on first use.
func (r *Registry) Pool(opts *models.HostOptions) (*Pool, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if pool, ok := r.pools[opts.APIURL]; ok {
		return pool, nil
	}
	pool, err := newHostPool(opts.Clone(), r.store, r.settings, r.proxy)
	if err != nil {
		return nil, fmt.Errorf("create connection pool for %s: %w", opts.APIURL, err)
	}
	r.pools[opts.APIURL] = pool
	return pool, nil
}

// Default returns the pool for hosts without configuration.
func (r *Registry) Default() *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fallback == nil {
		r.fallback = newDefaultPool(r.settings, r.proxy)
	}
	return r.fallback
}

// Len returns the number of host pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

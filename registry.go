package rpcpool

import (
	"sort"
	"sync"
)

// Registry is the curated set of candidate endpoints. It deduplicates
// by normalized URL and refuses non-production clusters outright; that
// refusal is policy, not a default a caller can switch off.
type Registry struct {
	mu       sync.Mutex
	order    []string
	entries  map[string]*Endpoint
	rejected int
}

// RegistryFilter narrows what List returns. The zero value selects
// every admitted endpoint.
type RegistryFilter struct {
	Classes      []EndpointClass
	OfficialOnly bool
	// WithAPIKeyOnly drops API-keyed endpoints whose key is absent.
	WithAPIKeyOnly bool
}

// NewRegistry builds a registry from the given seed endpoints. Seeds
// that fail URL normalization or name a non-production cluster are
// dropped; duplicates collapse onto the first occurrence.
func NewRegistry(seeds ...Endpoint) *Registry {
	r := &Registry{entries: make(map[string]*Endpoint)}
	for i := range seeds {
		_ = r.Add(seeds[i])
	}
	return r
}

// Add admits an endpoint. Adding a URL that already exists is a no-op
// returning nil. Non-production URLs return ErrNonProductionEndpoint
// regardless of class or discovery path.
func (r *Registry) Add(ep Endpoint) error {
	normalized, err := normalizeEndpointURL(ep.URL)
	if err != nil {
		return err
	}
	if isNonProduction(normalized) {
		r.mu.Lock()
		r.rejected++
		r.mu.Unlock()
		return ErrNonProductionEndpoint
	}
	ep.URL = normalized

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[normalized]; exists {
		return nil
	}
	stored := ep
	r.entries[normalized] = &stored
	r.order = append(r.order, normalized)
	return nil
}

// List returns admitted endpoints in insertion order, filtered. The
// returned values are copies; mutating them does not touch the registry.
func (r *Registry) List(filter RegistryFilter) []Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Endpoint
	for _, key := range r.order {
		ep := r.entries[key]
		if filter.OfficialOnly && !ep.Official {
			continue
		}
		if filter.WithAPIKeyOnly && ep.RequiresAPIKey && ep.APIKey == "" {
			continue
		}
		if len(filter.Classes) > 0 && !containsClass(filter.Classes, ep.Class) {
			continue
		}
		out = append(out, *ep)
	}
	return out
}

// Len reports how many endpoints are admitted.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Rejected reports how many offered endpoints were refused by policy.
func (r *Registry) Rejected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejected
}

// URLs returns the admitted URLs sorted lexicographically, for
// diagnostics output.
func (r *Registry) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := make([]string, len(r.order))
	copy(urls, r.order)
	sort.Strings(urls)
	return urls
}

func containsClass(classes []EndpointClass, c EndpointClass) bool {
	for _, candidate := range classes {
		if candidate == c {
			return true
		}
	}
	return false
}

// MainnetSeeds returns the default curated endpoint set: the official
// cluster entrypoint plus well-known public providers. API-keyed
// providers are included only when their key is supplied.
func MainnetSeeds(apiKeys map[string]string) []Endpoint {
	seeds := []Endpoint{
		{URL: "https://api.mainnet-beta.solana.com", Class: ClassOfficial, Official: true},
		{URL: "https://solana-api.projectserum.com", Class: ClassWellKnown},
		{URL: "https://rpc.ankr.com/solana", Class: ClassWellKnown},
		{URL: "https://solana.public-rpc.com", Class: ClassWellKnown},
	}
	if key, ok := apiKeys["helius"]; ok && key != "" {
		seeds = append(seeds, Endpoint{
			URL:            "https://mainnet.helius-rpc.com/?api-key=" + key,
			Class:          ClassAPIKeyed,
			RequiresAPIKey: true,
			APIKey:         key,
		})
	}
	if key, ok := apiKeys["quicknode"]; ok && key != "" {
		seeds = append(seeds, Endpoint{
			URL:            "https://solana-mainnet.quiknode.pro/" + key,
			Class:          ClassAPIKeyed,
			RequiresAPIKey: true,
			APIKey:         key,
		})
	}
	return seeds
}

package provider

import (
	"fmt"

	"RivalScanner/internal/ports"
)

// Registry keeps a mapping from news source names to their implementations.
type Registry struct {
	sources map[string]ports.NewsDiscoverer
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.NewsDiscoverer{}}
}

// Register adds or replaces a news source implementation.
func (r *Registry) Register(source ports.NewsDiscoverer) {
	if r.sources == nil {
		r.sources = map[string]ports.NewsDiscoverer{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a news source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.NewsDiscoverer, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("news source %s is not registered", name)
}

// Ordered resolves names in order, skipping the ones never registered
// (a source without credentials is simply not registered).
func (r *Registry) Ordered(names []string) ([]ports.NewsDiscoverer, []string) {
	out := make([]ports.NewsDiscoverer, 0, len(names))
	var missing []string
	for _, name := range names {
		source, err := r.Resolve(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		out = append(out, source)
	}
	return out, missing
}

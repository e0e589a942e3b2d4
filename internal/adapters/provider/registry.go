package provider

import "reviewpulse/internal/domain"

// Registry maps platforms to their adapters. It is built once at startup.
type Registry struct {
	byPlatform map[domain.Platform]domain.ReviewProvider
}

func NewRegistry(ps ...domain.ReviewProvider) *Registry {
	r := &Registry{byPlatform: make(map[domain.Platform]domain.ReviewProvider, len(ps))}
	for _, p := range ps {
		if p != nil {
			r.byPlatform[p.Platform()] = p
		}
	}
	return r
}

func (r *Registry) Get(p domain.Platform) (domain.ReviewProvider, bool) {
	a, ok := r.byPlatform[p]
	return a, ok
}

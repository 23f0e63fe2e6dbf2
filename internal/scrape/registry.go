package scrape

import "github.com/rotisserie/eris"

// Registry maps site keys to their scraper implementations.
type Registry struct {
	scrapers map[string]SiteScraper
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]SiteScraper)}
}

// Register adds a scraper. Re-registering a site key replaces it.
func (r *Registry) Register(s SiteScraper) {
	key := s.Site()
	if _, exists := r.scrapers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.scrapers[key] = s
}

// Get returns the scraper for a site key.
func (r *Registry) Get(site string) (SiteScraper, error) {
	s, ok := r.scrapers[site]
	if !ok {
		return nil, eris.Errorf("scrape: unknown site %q", site)
	}
	return s, nil
}

// All returns every registered scraper in registration order.
func (r *Registry) All() []SiteScraper {
	result := make([]SiteScraper, 0, len(r.order))
	for _, key := range r.order {
		result = append(result, r.scrapers[key])
	}
	return result
}

// Sites returns the registered site keys in registration order.
func (r *Registry) Sites() []string {
	return append([]string(nil), r.order...)
}

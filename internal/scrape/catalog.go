package scrape

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// CatalogEntry declares one known site in the yaml catalog.
type CatalogEntry struct {
	Key     string `yaml:"key"`
	Kind    string `yaml:"kind"`    // "event" or "restaurant"
	Fixture string `yaml:"fixture"` // replay batch file, optional
}

// Catalog is the site catalog file layout.
type Catalog struct {
	Sites []CatalogEntry `yaml:"sites"`
}

// DefaultCatalog covers the three known sites when no catalog file is
// configured.
func DefaultCatalog() Catalog {
	return Catalog{Sites: []CatalogEntry{
		{Key: "entradium", Kind: string(model.LeadKindEvent)},
		{Key: "wegow", Kind: string(model.LeadKindEvent)},
		{Key: "eltenedor", Kind: string(model.LeadKindRestaurant)},
	}}
}

// LoadCatalog reads and validates a yaml site catalog.
func LoadCatalog(path string) (Catalog, error) {
	var cat Catalog

	data, err := os.ReadFile(path)
	if err != nil {
		return cat, eris.Wrapf(err, "scrape: read catalog %s", path)
	}
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return cat, eris.Wrapf(err, "scrape: parse catalog %s", path)
	}

	seen := make(map[string]struct{}, len(cat.Sites))
	for _, s := range cat.Sites {
		if s.Key == "" {
			return cat, eris.Errorf("scrape: catalog %s: site with empty key", path)
		}
		if _, dup := seen[s.Key]; dup {
			return cat, eris.Errorf("scrape: catalog %s: duplicate site %q", path, s.Key)
		}
		seen[s.Key] = struct{}{}
		if s.Kind != string(model.LeadKindEvent) && s.Kind != string(model.LeadKindRestaurant) {
			return cat, eris.Errorf("scrape: catalog %s: site %q has unknown kind %q", path, s.Key, s.Kind)
		}
	}
	return cat, nil
}

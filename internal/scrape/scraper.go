// Package scrape defines the site scraper contract and the registry of
// known sites. The HTML extraction for a real site lives behind the
// SiteScraper interface; this package ships only the contract, the yaml
// site catalog, and a fixture-backed replay implementation.
package scrape

import (
	"context"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// ProgressFunc reports incremental adapter progress while a batch is
// being fetched. Implementations may call it zero or more times.
type ProgressFunc func(current, total int, itemName string)

// Batch is one scan invocation's yield. Errors holds per-record
// extraction failures as human-readable strings; a record failure never
// aborts the batch.
type Batch struct {
	Records []model.RawRecord
	Errors  []string
}

// SiteScraper produces the finite record batch for one site. A total
// site failure (unreachable, structure changed beyond recognition) is
// the only error return; it terminates that site's run.
type SiteScraper interface {
	Site() string
	Kind() model.LeadKind
	Fetch(ctx context.Context, progress ProgressFunc) (*Batch, error)
}

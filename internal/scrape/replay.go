package scrape

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// replayItem is one entry in a captured batch file. Either Record or
// Error is set; an error entry reproduces a per-record extraction
// failure.
type replayItem struct {
	Record *model.RawRecord `json:"record,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// ReplayScraper yields a captured batch from a JSON fixture file. It is
// the reference implementation of the SiteScraper contract and the ops
// tool for re-ingesting a saved batch. Yields are paced by a rate
// limiter, mirroring the network cadence of a live scraper.
type ReplayScraper struct {
	site    string
	kind    model.LeadKind
	fixture string
	limiter *rate.Limiter
}

// NewReplayScraper creates a replay scraper for one site. perSecond
// bounds the record yield rate; zero or negative means unpaced.
func NewReplayScraper(site string, kind model.LeadKind, fixture string, perSecond float64) *ReplayScraper {
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &ReplayScraper{site: site, kind: kind, fixture: fixture, limiter: limiter}
}

func (r *ReplayScraper) Site() string         { return r.site }
func (r *ReplayScraper) Kind() model.LeadKind { return r.kind }

// Fetch reads the fixture and yields its records with progress
// callbacks. A missing or malformed fixture is a terminal site failure.
func (r *ReplayScraper) Fetch(ctx context.Context, progress ProgressFunc) (*Batch, error) {
	data, err := os.ReadFile(r.fixture)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: %s: read fixture", r.site)
	}

	var items []replayItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, eris.Wrapf(err, "scrape: %s: parse fixture", r.site)
	}

	batch := &Batch{}
	for i, item := range items {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrapf(err, "scrape: %s: cancelled", r.site)
			}
		} else if ctx.Err() != nil {
			return nil, eris.Wrapf(ctx.Err(), "scrape: %s: cancelled", r.site)
		}

		switch {
		case item.Error != "":
			batch.Errors = append(batch.Errors, item.Error)
		case item.Record != nil:
			batch.Records = append(batch.Records, *item.Record)
			if progress != nil {
				progress(i+1, len(items), item.Record.Name)
			}
		}
	}
	return batch, nil
}

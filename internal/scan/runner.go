// Package scan drives scan runs: it invokes the site scraper, routes
// each record through the date normalizer and the dedup engine, and
// emits a live progress stream. One scan per site may be in flight at a
// time; runs for distinct sites proceed concurrently.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grupoagenda/leadscan-cli/internal/dates"
	"github.com/grupoagenda/leadscan-cli/internal/model"
	"github.com/grupoagenda/leadscan-cli/internal/reconcile"
	"github.com/grupoagenda/leadscan-cli/internal/scrape"
	"github.com/grupoagenda/leadscan-cli/internal/stream"
)

// ErrScanInFlight is returned when a scan for the requested site is
// already running; a second run would race on the same dedup keys.
var ErrScanInFlight = eris.New("scan: already in flight for this site")

// ZeroResultWarning flags a batch where the adapter returned nothing
// without reporting a failure — usually a site layout change.
const ZeroResultWarning = "found 0 items with no scrape error; likely a site layout change"

// Matcher is the post-scan bulk matching hook.
type Matcher interface {
	RunBulk(ctx context.Context) (model.MatchResult, error)
}

// ScanLog persists the audit record of a completed run.
type ScanLog interface {
	AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error
}

// Options configures a Runner.
type Options struct {
	MatchAfterScan bool
}

// Runner orchestrates scan runs.
type Runner struct {
	registry *scrape.Registry
	engine   *reconcile.Engine
	matcher  Matcher
	log      ScanLog
	opts     Options
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates a Runner. matcher may be nil when no post-scan matching
// pass is wanted; now is injectable for tests.
func New(registry *scrape.Registry, engine *reconcile.Engine, matcher Matcher, log ScanLog, opts Options, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{
		registry: registry,
		engine:   engine,
		matcher:  matcher,
		log:      log,
		opts:     opts,
		now:      now,
		inflight: make(map[string]bool),
	}
}

// Scan runs one site's scan and emits progress to sink. The terminal
// event (complete or error) is always emitted before returning.
func (r *Runner) Scan(ctx context.Context, site string, sink stream.Sink) (*model.ScanSummary, error) {
	if sink == nil {
		sink = stream.Discard{}
	}

	scraper, err := r.registry.Get(site)
	if err != nil {
		sink.Error(err.Error())
		return nil, err
	}

	if !r.acquire(site) {
		err := eris.Wrapf(ErrScanInFlight, "scan: %s", site)
		sink.Error(err.Error())
		return nil, err
	}
	defer r.release(site)

	started := r.now().UTC()
	summary, err := r.runSite(ctx, scraper, sink)
	r.appendLog(ctx, site, started, summary, err)

	if err != nil {
		sink.Error(err.Error())
		return summary, err
	}
	sink.Complete(*summary)
	return summary, nil
}

// ScanAll runs every registered site as an independent task. Site runs
// that fail terminally contribute an error string to the combined
// summary without affecting the other sites; the single complete event
// carries the merged counts.
func (r *Runner) ScanAll(ctx context.Context, sink stream.Sink) (*model.ScanSummary, error) {
	if sink == nil {
		sink = stream.Discard{}
	}

	combined := &model.ScanSummary{Site: "all", Errors: []string{}}
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, scraper := range r.registry.All() {
		g.Go(func() error {
			site := scraper.Site()
			if !r.acquire(site) {
				mu.Lock()
				combined.Errors = append(combined.Errors, fmt.Sprintf("%s: scan already in flight", site))
				mu.Unlock()
				return nil
			}
			started := r.now().UTC()
			summary, err := r.runSite(gCtx, scraper, sink)
			r.release(site)
			r.appendLog(ctx, site, started, summary, err)

			mu.Lock()
			defer mu.Unlock()
			if summary != nil {
				combined.ItemsFound += summary.ItemsFound
				combined.NewItems += summary.NewItems
				combined.Errors = append(combined.Errors, summary.Errors...)
			}
			if err != nil {
				combined.Errors = append(combined.Errors, fmt.Sprintf("%s: %s", site, err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	sink.Complete(*combined)
	return combined, nil
}

// runSite executes the phases for one site. The returned summary holds
// partial counts even when err is non-nil (persistence failures leave
// already-upserted records committed).
func (r *Runner) runSite(ctx context.Context, scraper scrape.SiteScraper, sink stream.Sink) (*model.ScanSummary, error) {
	site := scraper.Site()
	log := zap.L().With(zap.String("site", site))
	summary := &model.ScanSummary{Site: site, Errors: []string{}}

	log.Info("scan: starting")
	sink.Progress(stream.Progress{Site: site, Phase: model.ScanPhaseFetching, Message: "fetching listings"})

	batch, err := scraper.Fetch(ctx, func(current, total int, itemName string) {
		sink.Progress(stream.Progress{
			Site:     site,
			Phase:    model.ScanPhaseFetching,
			Current:  current,
			Total:    total,
			ItemName: itemName,
		})
	})
	if err != nil {
		log.Error("scan: site fetch failed", zap.Error(err))
		return summary, eris.Wrapf(err, "scan: %s: fetch", site)
	}

	summary.ItemsFound = len(batch.Records)
	summary.Errors = append(summary.Errors, batch.Errors...)

	sink.Progress(stream.Progress{Site: site, Phase: model.ScanPhaseParsing, Total: len(batch.Records), Message: "reconciling listings"})

	for i, rec := range batch.Records {
		if rec.SourceURL == "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: record %q has no source url", site, rec.Name))
			continue
		}

		var eventDate *time.Time
		if scraper.Kind() == model.LeadKindEvent && rec.RawDateText != "" {
			if d, ok := dates.Normalize(rec.RawDateText, r.now()); ok {
				eventDate = &d
			}
			// Unparseable text is not an error; the raw string rides
			// along on the lead for display.
		}

		created, err := r.engine.Upsert(ctx, site, scraper.Kind(), rec, eventDate)
		if err != nil {
			// Store failures are fatal for the run; committed upserts stay.
			log.Error("scan: persistence failed", zap.String("source_url", rec.SourceURL), zap.Error(err))
			return summary, eris.Wrapf(err, "scan: %s: persist %s", site, rec.SourceURL)
		}
		if created {
			summary.NewItems++
		}

		sink.Progress(stream.Progress{
			Site:     site,
			Phase:    model.ScanPhasePersisting,
			Current:  i + 1,
			Total:    len(batch.Records),
			ItemName: rec.Name,
		})
	}

	if summary.ItemsFound == 0 && len(batch.Errors) == 0 {
		log.Warn("scan: zero results without scrape errors")
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", site, ZeroResultWarning))
	}

	observed := make([]string, 0, len(batch.Records))
	for _, rec := range batch.Records {
		if rec.SourceURL != "" {
			observed = append(observed, rec.SourceURL)
		}
	}
	if _, err := r.engine.Sweep(ctx, site, observed); err != nil {
		summary.Errors = append(summary.Errors, err.Error())
	}

	if r.opts.MatchAfterScan && r.matcher != nil {
		sink.Progress(stream.Progress{Site: site, Phase: model.ScanPhaseMatching, Message: "linking businesses"})
		if _, err := r.matcher.RunBulk(ctx); err != nil {
			// Matching is best-effort after a successful scan.
			log.Warn("scan: bulk matching failed", zap.Error(err))
			summary.Errors = append(summary.Errors, err.Error())
		}
	}

	log.Info("scan: complete",
		zap.Int("items_found", summary.ItemsFound),
		zap.Int("new_items", summary.NewItems),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary, nil
}

func (r *Runner) appendLog(ctx context.Context, site string, started time.Time, summary *model.ScanSummary, err error) {
	if r.log == nil {
		return
	}
	entry := model.ScanLogEntry{
		Site:       site,
		StartedAt:  started,
		FinishedAt: r.now().UTC(),
		Terminal:   "done",
	}
	if summary != nil {
		entry.ItemsFound = summary.ItemsFound
		entry.NewItems = summary.NewItems
		entry.Errors = summary.Errors
	}
	if err != nil {
		entry.Terminal = "error"
		entry.Errors = append(entry.Errors, err.Error())
	}
	if logErr := r.log.AppendScanLog(ctx, entry); logErr != nil {
		zap.L().Warn("scan: failed to append scan log", zap.String("site", site), zap.Error(logErr))
	}
}

func (r *Runner) acquire(site string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[site] {
		return false
	}
	r.inflight[site] = true
	return true
}

func (r *Runner) release(site string) {
	r.mu.Lock()
	delete(r.inflight, site)
	r.mu.Unlock()
}

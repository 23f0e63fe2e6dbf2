// Package reconcile implements the dedup/upsert engine: it reconciles a
// freshly scraped batch against the persisted lead set, deciding creates
// versus touches on the natural key (site, source URL) and keeping the
// first-seen / last-scanned freshness fields honest.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// Store is the persistence surface the engine needs. CreateLead assigns
// the lead ID; TouchLead writes only the descriptive fields, last
// scanned timestamp and status, never first_seen_at or the match fields.
type Store interface {
	GetLeadByKey(ctx context.Context, site, sourceURL string) (*model.Lead, error)
	CreateLead(ctx context.Context, lead *model.Lead) error
	TouchLead(ctx context.Context, lead *model.Lead) error
	MarkMissedScans(ctx context.Context, site string, observedURLs []string) (int, error)
	ExpireEventLeads(ctx context.Context, asOf time.Time) (int, error)
	ExpireStaleLeads(ctx context.Context, missedScansToExpire int) (int, error)
}

// Options holds the reconciliation policy knobs.
type Options struct {
	// MissedScansToExpire is the freshness window for leads without a
	// date (restaurant deals): expire after this many consecutive scans
	// that no longer observe the record. Zero disables auto-expiry.
	MissedScansToExpire int
}

// Engine reconciles scraped records against the lead store.
type Engine struct {
	store Store
	opts  Options
	now   func() time.Time
}

// New creates an Engine. now is injectable for tests; nil means the wall
// clock.
func New(store Store, opts Options, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, opts: opts, now: now}
}

// Upsert reconciles one scraped record. eventDate is the normalized date
// for event leads, nil when absent or unparseable. It reports whether
// the record was created (first observation) as opposed to touched.
func (e *Engine) Upsert(ctx context.Context, site string, kind model.LeadKind, rec model.RawRecord, eventDate *time.Time) (bool, error) {
	if rec.SourceURL == "" {
		return false, eris.Errorf("reconcile: %s: record %q has no source url", site, rec.Name)
	}

	now := e.now().UTC()
	status := deriveStatus(kind, eventDate, now)

	existing, err := e.store.GetLeadByKey(ctx, site, rec.SourceURL)
	if err != nil {
		return false, eris.Wrapf(err, "reconcile: %s: lookup %s", site, rec.SourceURL)
	}

	if existing == nil {
		lead := &model.Lead{
			Site:          site,
			Kind:          kind,
			SourceURL:     rec.SourceURL,
			FirstSeenAt:   now,
			LastScannedAt: now,
			Status:        status,
			MatchSource:   model.MatchSourceNone,
		}
		applyDescriptive(lead, rec, eventDate)
		if err := e.store.CreateLead(ctx, lead); err != nil {
			return false, eris.Wrapf(err, "reconcile: %s: create %s", site, rec.SourceURL)
		}
		zap.L().Debug("reconcile: new lead",
			zap.String("site", site),
			zap.String("source_url", rec.SourceURL),
		)
		return true, nil
	}

	// Re-observation: descriptive fields follow the source, the
	// protected fields stay put regardless of new content.
	applyDescriptive(existing, rec, eventDate)
	existing.LastScannedAt = now
	existing.MissedScans = 0
	existing.Status = status
	if err := e.store.TouchLead(ctx, existing); err != nil {
		return false, eris.Wrapf(err, "reconcile: %s: touch %s", site, rec.SourceURL)
	}
	return false, nil
}

// Sweep applies the post-scan freshness accounting for one site: leads
// not observed in this scan accumulate a missed count, and those past
// the configured window expire. A zero window leaves unobserved leads
// untouched entirely.
func (e *Engine) Sweep(ctx context.Context, site string, observedURLs []string) (int, error) {
	if e.opts.MissedScansToExpire <= 0 {
		return 0, nil
	}
	if _, err := e.store.MarkMissedScans(ctx, site, observedURLs); err != nil {
		return 0, eris.Wrapf(err, "reconcile: %s: mark missed scans", site)
	}
	expired, err := e.store.ExpireStaleLeads(ctx, e.opts.MissedScansToExpire)
	if err != nil {
		return 0, eris.Wrapf(err, "reconcile: %s: expire stale", site)
	}
	if expired > 0 {
		zap.L().Info("reconcile: expired stale leads",
			zap.String("site", site),
			zap.Int("expired", expired),
		)
	}
	return expired, nil
}

// ExpireStale marks leads past the freshness window as expired,
// independent of any scan. A zero window is a no-op.
func (e *Engine) ExpireStale(ctx context.Context) (int, error) {
	if e.opts.MissedScansToExpire <= 0 {
		return 0, nil
	}
	n, err := e.store.ExpireStaleLeads(ctx, e.opts.MissedScansToExpire)
	if err != nil {
		return 0, eris.Wrap(err, "reconcile: expire stale")
	}
	return n, nil
}

// ExpirePast marks event leads whose normalized date has passed.
func (e *Engine) ExpirePast(ctx context.Context) (int, error) {
	n, err := e.store.ExpireEventLeads(ctx, e.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "reconcile: expire past events")
	}
	return n, nil
}

func applyDescriptive(lead *model.Lead, rec model.RawRecord, eventDate *time.Time) {
	lead.Name = rec.Name
	lead.RawDateText = rec.RawDateText
	lead.Place = rec.Place
	lead.Cuisine = rec.Cuisine
	lead.Promoter = rec.Promoter
	lead.Discount = rec.Discount
	lead.ImageURL = rec.ImageURL
	lead.EventDate = eventDate
}

// deriveStatus recomputes the lifecycle status on every observation.
// Undated or unparseable event leads default to active.
func deriveStatus(kind model.LeadKind, eventDate *time.Time, now time.Time) model.LeadStatus {
	if kind == model.LeadKindEvent && eventDate != nil {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if eventDate.Before(day) {
			return model.LeadStatusExpired
		}
	}
	return model.LeadStatusActive
}

// Package match links scraped lead names to the business registry with a
// confidence score. Manual links are sticky: every automated write goes
// through the matcher, which refuses to touch a manually linked lead
// until the link is explicitly cleared.
package match

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// Store is the persistence surface the matcher needs.
type Store interface {
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListUnmatchedLeads(ctx context.Context) ([]model.Lead, error)
	ListBusinesses(ctx context.Context) ([]model.Business, error)
	UpdateLeadMatch(ctx context.Context, leadID, businessID string, confidence float64, source model.MatchSource) error
}

// Candidate is the best registry match for a lead name.
type Candidate struct {
	BusinessID string  `json:"business_id"`
	Confidence float64 `json:"confidence"`
}

// Matcher computes and persists lead-to-business links.
type Matcher struct {
	store         Store
	bulkThreshold float64
	bulkMu        sync.Mutex
}

// New creates a Matcher. bulkThreshold gates the bulk pass only; direct
// single links accept any positive signal.
func New(store Store, bulkThreshold float64) *Matcher {
	return &Matcher{store: store, bulkThreshold: bulkThreshold}
}

// Match scores leadName against every registry entry and returns the
// highest-scoring candidate, or nil when no entry has any positive
// signal. Read-only: nothing is persisted.
func (m *Matcher) Match(leadName string, registry []model.Business) *Candidate {
	var best *Candidate
	for _, b := range registry {
		score := Similarity(leadName, b.Name)
		if score <= 0 {
			continue
		}
		if best == nil || score > best.Confidence {
			best = &Candidate{BusinessID: b.ID, Confidence: score}
		}
	}
	return best
}

// RunBulk links every unmatched, non-manual lead whose best candidate
// clears the bulk threshold. Idempotent: a second run with no new data
// reports updated = 0. Concurrent bulk passes are serialized so updated
// counts cannot double.
func (m *Matcher) RunBulk(ctx context.Context) (model.MatchResult, error) {
	m.bulkMu.Lock()
	defer m.bulkMu.Unlock()

	var result model.MatchResult

	leads, err := m.store.ListUnmatchedLeads(ctx)
	if err != nil {
		return result, eris.Wrap(err, "match: list unmatched leads")
	}
	result.Total = len(leads)
	if result.Total == 0 {
		return result, nil
	}

	registry, err := m.store.ListBusinesses(ctx)
	if err != nil {
		return result, eris.Wrap(err, "match: list businesses")
	}

	for _, lead := range leads {
		if ctx.Err() != nil {
			return result, eris.Wrap(ctx.Err(), "match: bulk pass cancelled")
		}
		// The unmatched query excludes manual links, but the invariant
		// lives here, not in the query.
		if lead.MatchSource == model.MatchSourceManual {
			continue
		}

		cand := m.Match(lead.Name, registry)
		if cand == nil || cand.Confidence < m.bulkThreshold {
			continue
		}
		result.Matched++

		if lead.MatchedBusinessID == cand.BusinessID && lead.MatchConfidence == cand.Confidence {
			continue
		}
		if err := m.store.UpdateLeadMatch(ctx, lead.ID, cand.BusinessID, cand.Confidence, model.MatchSourceSystem); err != nil {
			return result, eris.Wrapf(err, "match: persist link for lead %s", lead.ID)
		}
		result.Updated++
	}

	zap.L().Info("match: bulk pass complete",
		zap.Int("total", result.Total),
		zap.Int("matched", result.Matched),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

// SetMatch records a manual link. An empty businessID clears the link and
// demotes the source to none, making the lead eligible for the bulk pass
// again.
func (m *Matcher) SetMatch(ctx context.Context, leadID, businessID string) error {
	if _, err := m.store.GetLead(ctx, leadID); err != nil {
		return eris.Wrapf(err, "match: get lead %s", leadID)
	}

	if businessID == "" {
		if err := m.store.UpdateLeadMatch(ctx, leadID, "", 0, model.MatchSourceNone); err != nil {
			return eris.Wrapf(err, "match: clear link for lead %s", leadID)
		}
		zap.L().Info("match: link cleared", zap.String("lead_id", leadID))
		return nil
	}

	if err := m.store.UpdateLeadMatch(ctx, leadID, businessID, 1.0, model.MatchSourceManual); err != nil {
		return eris.Wrapf(err, "match: set manual link for lead %s", leadID)
	}
	zap.L().Info("match: manual link set",
		zap.String("lead_id", leadID),
		zap.String("business_id", businessID),
	)
	return nil
}

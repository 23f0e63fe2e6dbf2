package store

import (
	"context"
	"time"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Site   string           `json:"site,omitempty"`
	Kind   model.LeadKind   `json:"kind,omitempty"`
	Status model.LeadStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
}

// Store defines the persistence interface for the lead pipeline. The
// lead store is read/write (keyed upsert); the business table is a
// read-only registry snapshot refreshed from the CRM.
type Store interface {
	// Leads
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	GetLeadByKey(ctx context.Context, site, sourceURL string) (*model.Lead, error)
	CreateLead(ctx context.Context, lead *model.Lead) error
	TouchLead(ctx context.Context, lead *model.Lead) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	ListUnmatchedLeads(ctx context.Context) ([]model.Lead, error)
	UpdateLeadMatch(ctx context.Context, leadID, businessID string, confidence float64, source model.MatchSource) error

	// Freshness
	MarkMissedScans(ctx context.Context, site string, observedURLs []string) (int, error)
	ExpireEventLeads(ctx context.Context, asOf time.Time) (int, error)
	ExpireStaleLeads(ctx context.Context, missedScansToExpire int) (int, error)
	Stats(ctx context.Context, now time.Time) (*model.LeadStats, error)

	// Business registry snapshot
	ListBusinesses(ctx context.Context) ([]model.Business, error)
	ReplaceBusinesses(ctx context.Context, businesses []model.Business) error

	// Scan log
	AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error
	ListScanLog(ctx context.Context, site string, limit int) ([]model.ScanLogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

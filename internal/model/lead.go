package model

import "time"

// LeadKind distinguishes the two lead variants sharing one lifecycle.
type LeadKind string

const (
	LeadKindEvent      LeadKind = "event"
	LeadKindRestaurant LeadKind = "restaurant"
)

// LeadStatus is derived, never scraped: event leads expire once their
// normalized date passes, restaurant leads by the freshness-window policy.
type LeadStatus string

const (
	LeadStatusActive  LeadStatus = "active"
	LeadStatusExpired LeadStatus = "expired"
)

// MatchSource records who linked a lead to a business.
type MatchSource string

const (
	MatchSourceNone   MatchSource = "none"
	MatchSourceSystem MatchSource = "system"
	MatchSourceManual MatchSource = "manual"
)

// Lead is a discovered external listing tracked across repeated scans.
// (Site, SourceURL) is the natural key; descriptive fields are overwritten
// on every re-scan while FirstSeenAt and the match fields are protected.
type Lead struct {
	ID        string   `json:"id"`
	Site      string   `json:"site"`
	Kind      LeadKind `json:"kind"`
	SourceURL string   `json:"source_url"`

	Name        string `json:"name"`
	RawDateText string `json:"raw_date_text,omitempty"` // event leads only; kept verbatim even when unparseable
	Place       string `json:"place,omitempty"`
	Cuisine     string `json:"cuisine,omitempty"`
	Promoter    string `json:"promoter,omitempty"`
	Discount    string `json:"discount,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`

	EventDate *time.Time `json:"event_date,omitempty"` // normalized from RawDateText; nil when unparseable

	FirstSeenAt   time.Time  `json:"first_seen_at"`
	LastScannedAt time.Time  `json:"last_scanned_at"`
	MissedScans   int        `json:"missed_scans,omitempty"`
	Status        LeadStatus `json:"status"`

	MatchedBusinessID string      `json:"matched_business_id,omitempty"`
	MatchConfidence   float64     `json:"match_confidence,omitempty"`
	MatchSource       MatchSource `json:"match_source"`
}

// Business is a read-only entry from the CRM business registry.
type Business struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MatchResult is the outcome of a bulk matching pass.
type MatchResult struct {
	Total   int `json:"total"`   // unmatched, non-manual leads considered
	Matched int `json:"matched"` // leads with a candidate above threshold
	Updated int `json:"updated"` // links actually persisted
}

// LeadStats summarizes the lead set at read time.
type LeadStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Expired  int `json:"expired"`
	Matched  int `json:"matched"`
	NewToday int `json:"new_today"` // first_seen_at within the current business day, derived
}

package model

import "time"

// ScanPhase is the orchestrator's position in a site run.
type ScanPhase string

// Terminal state is not a phase: it travels as the stream event type.
const (
	ScanPhaseFetching   ScanPhase = "fetching"
	ScanPhaseParsing    ScanPhase = "parsing"
	ScanPhaseMatching   ScanPhase = "matching"
	ScanPhasePersisting ScanPhase = "persisting"
)

// RawRecord is one item as yielded by a site scraper, before normalization.
type RawRecord struct {
	SourceURL   string `json:"source_url"`
	Name        string `json:"name"`
	RawDateText string `json:"raw_date_text,omitempty"`
	Place       string `json:"place,omitempty"`
	Cuisine     string `json:"cuisine,omitempty"`
	Promoter    string `json:"promoter,omitempty"`
	Discount    string `json:"discount,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ScanSummary is the terminal result of one site's scan run.
type ScanSummary struct {
	Site       string   `json:"site"`
	ItemsFound int      `json:"itemsFound"`
	NewItems   int      `json:"newItems"`
	Errors     []string `json:"errors"`
}

// ScanLogEntry is the persisted audit record of a scan run.
type ScanLogEntry struct {
	ID         string    `json:"id"`
	Site       string    `json:"site"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ItemsFound int       `json:"items_found"`
	NewItems   int       `json:"new_items"`
	Errors     []string  `json:"errors,omitempty"`
	Terminal   string    `json:"terminal"` // "done" or "error"
}

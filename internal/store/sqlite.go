package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY,
	site                TEXT NOT NULL,
	kind                TEXT NOT NULL,
	source_url          TEXT NOT NULL,
	name                TEXT NOT NULL DEFAULT '',
	raw_date_text       TEXT NOT NULL DEFAULT '',
	place               TEXT NOT NULL DEFAULT '',
	cuisine             TEXT NOT NULL DEFAULT '',
	promoter            TEXT NOT NULL DEFAULT '',
	discount            TEXT NOT NULL DEFAULT '',
	image_url           TEXT NOT NULL DEFAULT '',
	event_date          DATETIME,
	first_seen_at       DATETIME NOT NULL,
	last_scanned_at     DATETIME NOT NULL,
	missed_scans        INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'active',
	matched_business_id TEXT NOT NULL DEFAULT '',
	match_confidence    REAL NOT NULL DEFAULT 0,
	match_source        TEXT NOT NULL DEFAULT 'none',
	UNIQUE(site, source_url)
);

CREATE TABLE IF NOT EXISTS businesses (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_log (
	id          TEXT PRIMARY KEY,
	site        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	items_found INTEGER NOT NULL DEFAULT 0,
	new_items   INTEGER NOT NULL DEFAULT 0,
	errors      TEXT,
	terminal    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_site ON leads(site);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_match ON leads(match_source, matched_business_id);
CREATE INDEX IF NOT EXISTS idx_scan_log_site ON scan_log(site, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const leadColumns = `id, site, kind, source_url, name, raw_date_text, place, cuisine,
	promoter, discount, image_url, event_date, first_seen_at, last_scanned_at,
	missed_scans, status, matched_business_id, match_confidence, match_source`

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, leadID)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: lead not found: %s", leadID)
	}
	return lead, err
}

func (s *SQLiteStore) GetLeadByKey(ctx context.Context, site, sourceURL string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE site = ? AND source_url = ?`, site, sourceURL)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return lead, err
}

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Site, string(lead.Kind), lead.SourceURL, lead.Name,
		lead.RawDateText, lead.Place, lead.Cuisine, lead.Promoter, lead.Discount,
		lead.ImageURL, nullTime(lead.EventDate), lead.FirstSeenAt, lead.LastScannedAt,
		lead.MissedScans, string(lead.Status), lead.MatchedBusinessID,
		lead.MatchConfidence, string(lead.MatchSource),
	)
	return eris.Wrapf(err, "sqlite: insert lead %s/%s", lead.Site, lead.SourceURL)
}

// TouchLead writes the descriptive fields, freshness and status only.
// first_seen_at and the match columns are deliberately absent from the
// update set.
func (s *SQLiteStore) TouchLead(ctx context.Context, lead *model.Lead) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET name = ?, raw_date_text = ?, place = ?, cuisine = ?,
		 promoter = ?, discount = ?, image_url = ?, event_date = ?,
		 last_scanned_at = ?, missed_scans = ?, status = ?
		 WHERE id = ?`,
		lead.Name, lead.RawDateText, lead.Place, lead.Cuisine, lead.Promoter,
		lead.Discount, lead.ImageURL, nullTime(lead.EventDate),
		lead.LastScannedAt, lead.MissedScans, string(lead.Status), lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch lead %s", lead.ID)
	}
	return checkRowsAffected(res, "lead", lead.ID)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Site != "" {
		query += ` AND site = ?`
		args = append(args, filter.Site)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY first_seen_at DESC`

	// Limit zero means every row.
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return s.queryLeads(ctx, query, args...)
}

func (s *SQLiteStore) ListUnmatchedLeads(ctx context.Context) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE matched_business_id = '' AND match_source != ?
		 ORDER BY first_seen_at DESC`,
		string(model.MatchSourceManual),
	)
}

// UpdateLeadMatch persists a link. System writes carry a guard so an
// automated pass can never clobber a manual link; the write simply
// affects zero rows in that case.
func (s *SQLiteStore) UpdateLeadMatch(ctx context.Context, leadID, businessID string, confidence float64, source model.MatchSource) error {
	query := `UPDATE leads SET matched_business_id = ?, match_confidence = ?, match_source = ? WHERE id = ?`
	args := []any{businessID, confidence, string(source), leadID}
	if source == model.MatchSourceSystem {
		query += ` AND match_source != ?`
		args = append(args, string(model.MatchSourceManual))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead match %s", leadID)
	}
	if source == model.MatchSourceSystem {
		return nil // zero rows means the lead is manually linked; not an error
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) MarkMissedScans(ctx context.Context, site string, observedURLs []string) (int, error) {
	query := `UPDATE leads SET missed_scans = missed_scans + 1
		 WHERE site = ? AND status = ?`
	args := []any{site, string(model.LeadStatusActive)}
	if len(observedURLs) > 0 {
		query += ` AND source_url NOT IN (` + placeholders(len(observedURLs)) + `)`
		for _, u := range observedURLs {
			args = append(args, u)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: mark missed scans for %s", site)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ExpireEventLeads(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?
		 WHERE kind = ? AND status = ? AND event_date IS NOT NULL AND event_date < ?`,
		string(model.LeadStatusExpired), string(model.LeadKindEvent),
		string(model.LeadStatusActive), asOf,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire event leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ExpireStaleLeads(ctx context.Context, missedScansToExpire int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?
		 WHERE kind = ? AND status = ? AND missed_scans >= ?`,
		string(model.LeadStatusExpired), string(model.LeadKindRestaurant),
		string(model.LeadStatusActive), missedScansToExpire,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire stale leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Stats derives the read-time counters. newToday counts leads first seen
// on the current calendar day of the caller's timezone; it is never a
// stored flag.
func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (*model.LeadStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UTC()

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN matched_business_id != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN first_seen_at >= ? THEN 1 ELSE 0 END), 0)
		 FROM leads`,
		string(model.LeadStatusActive), string(model.LeadStatusExpired), dayStart,
	)

	var stats model.LeadStats
	if err := row.Scan(&stats.Total, &stats.Active, &stats.Expired, &stats.Matched, &stats.NewToday); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	return &stats, nil
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context) ([]model.Business, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM businesses ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		var b model.Business
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		businesses = append(businesses, b)
	}
	return businesses, eris.Wrap(rows.Err(), "sqlite: list businesses iterate")
}

// ReplaceBusinesses swaps the registry snapshot atomically.
func (s *SQLiteStore) ReplaceBusinesses(ctx context.Context, businesses []model.Business) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace businesses")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM businesses`); err != nil {
		return eris.Wrap(err, "sqlite: clear businesses")
	}
	for _, b := range businesses {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO businesses (id, name) VALUES (?, ?)`, b.ID, b.Name); err != nil {
			return eris.Wrapf(err, "sqlite: insert business %s", b.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace businesses")
}

func (s *SQLiteStore) AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	errorsJSON, err := json.Marshal(entry.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scan errors")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_log (id, site, started_at, finished_at, items_found, new_items, errors, terminal)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Site, entry.StartedAt, entry.FinishedAt,
		entry.ItemsFound, entry.NewItems, string(errorsJSON), entry.Terminal,
	)
	return eris.Wrapf(err, "sqlite: append scan log for %s", entry.Site)
}

func (s *SQLiteStore) ListScanLog(ctx context.Context, site string, limit int) ([]model.ScanLogEntry, error) {
	query := `SELECT id, site, started_at, finished_at, items_found, new_items, errors, terminal
		 FROM scan_log WHERE 1=1`
	var args []any
	if site != "" {
		query += ` AND site = ?`
		args = append(args, site)
	}
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scan log")
	}
	defer rows.Close()

	var entries []model.ScanLogEntry
	for rows.Next() {
		var e model.ScanLogEntry
		var errorsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Site, &e.StartedAt, &e.FinishedAt,
			&e.ItemsFound, &e.NewItems, &errorsJSON, &e.Terminal); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log entry")
		}
		if errorsJSON.Valid && errorsJSON.String != "" {
			if err := json.Unmarshal([]byte(errorsJSON.String), &e.Errors); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal scan errors")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list scan log iterate")
}

func (s *SQLiteStore) queryLeads(ctx context.Context, query string, args ...any) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: query leads iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var kind, status, matchSource string
	var eventDate sql.NullTime

	err := row.Scan(&l.ID, &l.Site, &kind, &l.SourceURL, &l.Name, &l.RawDateText,
		&l.Place, &l.Cuisine, &l.Promoter, &l.Discount, &l.ImageURL, &eventDate,
		&l.FirstSeenAt, &l.LastScannedAt, &l.MissedScans, &status,
		&l.MatchedBusinessID, &l.MatchConfidence, &matchSource)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}

	l.Kind = model.LeadKind(kind)
	l.Status = model.LeadStatus(status)
	l.MatchSource = model.MatchSource(matchSource)
	if eventDate.Valid {
		t := eventDate.Time
		l.EventDate = &t
	}
	return &l, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects a pgx pool to the given database URL.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, for tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                  UUID PRIMARY KEY,
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
	event_date          TIMESTAMPTZ,
	first_seen_at       TIMESTAMPTZ NOT NULL,
	last_scanned_at     TIMESTAMPTZ NOT NULL,
	missed_scans        INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'active',
	matched_business_id TEXT NOT NULL DEFAULT '',
	match_confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	match_source        TEXT NOT NULL DEFAULT 'none',
	UNIQUE(site, source_url)
);

CREATE TABLE IF NOT EXISTS businesses (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_log (
	id          UUID PRIMARY KEY,
	site        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	items_found INTEGER NOT NULL DEFAULT 0,
	new_items   INTEGER NOT NULL DEFAULT 0,
	errors      JSONB,
	terminal    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_site ON leads(site);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_match ON leads(match_source, matched_business_id);
CREATE INDEX IF NOT EXISTS idx_scan_log_site ON scan_log(site, started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, leadID)
	lead, err := scanLeadPg(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("postgres: lead not found: %s", leadID)
	}
	return lead, err
}

func (s *PostgresStore) GetLeadByKey(ctx context.Context, site, sourceURL string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE site = $1 AND source_url = $2`, site, sourceURL)
	lead, err := scanLeadPg(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return lead, err
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		lead.ID, lead.Site, string(lead.Kind), lead.SourceURL, lead.Name,
		lead.RawDateText, lead.Place, lead.Cuisine, lead.Promoter, lead.Discount,
		lead.ImageURL, lead.EventDate, lead.FirstSeenAt, lead.LastScannedAt,
		lead.MissedScans, string(lead.Status), lead.MatchedBusinessID,
		lead.MatchConfidence, string(lead.MatchSource),
	)
	return eris.Wrapf(err, "postgres: insert lead %s/%s", lead.Site, lead.SourceURL)
}

func (s *PostgresStore) TouchLead(ctx context.Context, lead *model.Lead) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET name = $1, raw_date_text = $2, place = $3, cuisine = $4,
		 promoter = $5, discount = $6, image_url = $7, event_date = $8,
		 last_scanned_at = $9, missed_scans = $10, status = $11
		 WHERE id = $12`,
		lead.Name, lead.RawDateText, lead.Place, lead.Cuisine, lead.Promoter,
		lead.Discount, lead.ImageURL, lead.EventDate, lead.LastScannedAt,
		lead.MissedScans, string(lead.Status), lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch lead %s", lead.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: lead not found: %s", lead.ID)
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE ($1 = '' OR site = $1)
		 AND ($2 = '' OR kind = $2) AND ($3 = '' OR status = $3)
		 ORDER BY first_seen_at DESC`
	args := []any{filter.Site, string(filter.Kind), string(filter.Status)}
	// Limit zero means every row.
	if filter.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, filter.Limit)
	}
	return s.queryLeads(ctx, query, args...)
}

func (s *PostgresStore) ListUnmatchedLeads(ctx context.Context) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE matched_business_id = '' AND match_source != $1
		 ORDER BY first_seen_at DESC`,
		string(model.MatchSourceManual),
	)
}

func (s *PostgresStore) UpdateLeadMatch(ctx context.Context, leadID, businessID string, confidence float64, source model.MatchSource) error {
	query := `UPDATE leads SET matched_business_id = $1, match_confidence = $2, match_source = $3 WHERE id = $4`
	args := []any{businessID, confidence, string(source), leadID}
	if source == model.MatchSourceSystem {
		query += ` AND match_source != $5`
		args = append(args, string(model.MatchSourceManual))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead match %s", leadID)
	}
	if source != model.MatchSourceSystem && tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) MarkMissedScans(ctx context.Context, site string, observedURLs []string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET missed_scans = missed_scans + 1
		 WHERE site = $1 AND status = $2 AND NOT (source_url = ANY($3))`,
		site, string(model.LeadStatusActive), observedURLs,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: mark missed scans for %s", site)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ExpireEventLeads(ctx context.Context, asOf time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1
		 WHERE kind = $2 AND status = $3 AND event_date IS NOT NULL AND event_date < $4`,
		string(model.LeadStatusExpired), string(model.LeadKindEvent),
		string(model.LeadStatusActive), asOf,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: expire event leads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ExpireStaleLeads(ctx context.Context, missedScansToExpire int) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1
		 WHERE kind = $2 AND status = $3 AND missed_scans >= $4`,
		string(model.LeadStatusExpired), string(model.LeadKindRestaurant),
		string(model.LeadStatusActive), missedScansToExpire,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: expire stale leads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Stats(ctx context.Context, now time.Time) (*model.LeadStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UTC()

	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(*) FILTER (WHERE status = $2),
		        COUNT(*) FILTER (WHERE matched_business_id != ''),
		        COUNT(*) FILTER (WHERE first_seen_at >= $3)
		 FROM leads`,
		string(model.LeadStatusActive), string(model.LeadStatusExpired), dayStart,
	)

	var stats model.LeadStats
	if err := row.Scan(&stats.Total, &stats.Active, &stats.Expired, &stats.Matched, &stats.NewToday); err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &stats, nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context) ([]model.Business, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM businesses ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		var b model.Business
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		businesses = append(businesses, b)
	}
	return businesses, eris.Wrap(rows.Err(), "postgres: list businesses iterate")
}

func (s *PostgresStore) ReplaceBusinesses(ctx context.Context, businesses []model.Business) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace businesses")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM businesses`); err != nil {
		return eris.Wrap(err, "postgres: clear businesses")
	}
	for _, b := range businesses {
		if _, err := tx.Exec(ctx,
			`INSERT INTO businesses (id, name) VALUES ($1, $2)`, b.ID, b.Name); err != nil {
			return eris.Wrapf(err, "postgres: insert business %s", b.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace businesses")
}

func (s *PostgresStore) AppendScanLog(ctx context.Context, entry model.ScanLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	errorsJSON, err := json.Marshal(entry.Errors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scan errors")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scan_log (id, site, started_at, finished_at, items_found, new_items, errors, terminal)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Site, entry.StartedAt, entry.FinishedAt,
		entry.ItemsFound, entry.NewItems, errorsJSON, entry.Terminal,
	)
	return eris.Wrapf(err, "postgres: append scan log for %s", entry.Site)
}

func (s *PostgresStore) ListScanLog(ctx context.Context, site string, limit int) ([]model.ScanLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, site, started_at, finished_at, items_found, new_items, errors, terminal
		 FROM scan_log WHERE ($1 = '' OR site = $1)
		 ORDER BY started_at DESC LIMIT $2`,
		site, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scan log")
	}
	defer rows.Close()

	var entries []model.ScanLogEntry
	for rows.Next() {
		var e model.ScanLogEntry
		var errorsJSON []byte
		if err := rows.Scan(&e.ID, &e.Site, &e.StartedAt, &e.FinishedAt,
			&e.ItemsFound, &e.NewItems, &errorsJSON, &e.Terminal); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log entry")
		}
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &e.Errors); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal scan errors")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list scan log iterate")
}

func (s *PostgresStore) queryLeads(ctx context.Context, query string, args ...any) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLeadPg(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: query leads iterate")
}

func scanLeadPg(row scannable) (*model.Lead, error) {
	var l model.Lead
	var kind, status, matchSource string
	var eventDate *time.Time

	err := row.Scan(&l.ID, &l.Site, &kind, &l.SourceURL, &l.Name, &l.RawDateText,
		&l.Place, &l.Cuisine, &l.Promoter, &l.Discount, &l.ImageURL, &eventDate,
		&l.FirstSeenAt, &l.LastScannedAt, &l.MissedScans, &status,
		&l.MatchedBusinessID, &l.MatchConfidence, &matchSource)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan lead")
	}

	l.Kind = model.LeadKind(kind)
	l.Status = model.LeadStatus(status)
	l.MatchSource = model.MatchSource(matchSource)
	l.EventDate = eventDate
	return &l, nil
}

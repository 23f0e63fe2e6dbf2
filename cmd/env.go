package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/grupoagenda/leadscan-cli/internal/match"
	"github.com/grupoagenda/leadscan-cli/internal/model"
	"github.com/grupoagenda/leadscan-cli/internal/reconcile"
	"github.com/grupoagenda/leadscan-cli/internal/scan"
	"github.com/grupoagenda/leadscan-cli/internal/scrape"
	"github.com/grupoagenda/leadscan-cli/internal/store"
	"github.com/grupoagenda/leadscan-cli/pkg/crm"
)

// env bundles the wired pipeline components for a command invocation.
type env struct {
	Store    store.Store
	Registry *scrape.Registry
	Engine   *reconcile.Engine
	Matcher  *match.Matcher
	Runner   *scan.Runner
	Location *time.Location
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadscan.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRegistry builds the site registry from the configured catalog.
// Every site runs the replay scraper over its captured batch fixture;
// live extraction sits behind the same contract out of process.
func initRegistry() (*scrape.Registry, error) {
	catalog := scrape.DefaultCatalog()
	if cfg.Scan.CatalogPath != "" {
		loaded, err := scrape.LoadCatalog(cfg.Scan.CatalogPath)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}

	registry := scrape.NewRegistry()
	for _, site := range catalog.Sites {
		fixture := site.Fixture
		if fixture == "" {
			fixture = filepath.Join(cfg.Scan.FixtureDir, site.Key+".json")
		}
		registry.Register(scrape.NewReplayScraper(
			site.Key,
			model.LeadKind(site.Kind),
			fixture,
			cfg.Scan.RecordsPerSec,
		))
	}
	return registry, nil
}

func initCRM() (crm.Registry, error) {
	if cfg.CRM.ClientID == "" {
		return nil, eris.New("crm client ID is required (LEADSCAN_CRM_CLIENT_ID)")
	}
	return crm.New(crm.Config{
		LoginURL:   cfg.CRM.LoginURL,
		Username:   cfg.CRM.Username,
		ClientID:   cfg.CRM.ClientID,
		KeyPath:    cfg.CRM.KeyPath,
		RatePerSec: cfg.CRM.RatePerSec,
		Where:      cfg.CRM.AccountWhere,
	})
}

// initPipeline wires the store, registry, engine, matcher and runner.
func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry, err := initRegistry()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Scan.Timezone)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrapf(err, "load timezone %s", cfg.Scan.Timezone)
	}

	engine := reconcile.New(st, reconcile.Options{
		MissedScansToExpire: cfg.Reconcile.MissedScansToExpire,
	}, nil)
	matcher := match.New(st, cfg.Match.BulkThreshold)
	runner := scan.New(registry, engine, matcher, st, scan.Options{
		MatchAfterScan: cfg.Scan.MatchAfterScan,
	}, nil)

	return &env{
		Store:    st,
		Registry: registry,
		Engine:   engine,
		Matcher:  matcher,
		Runner:   runner,
		Location: loc,
	}, nil
}

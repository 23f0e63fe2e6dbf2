package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grupoagenda/leadscan-cli/internal/model"
	"github.com/grupoagenda/leadscan-cli/internal/reconcile"
	"github.com/grupoagenda/leadscan-cli/internal/scrape"
	"github.com/grupoagenda/leadscan-cli/internal/stream"
)

type fakeLeadStore struct {
	mu    sync.Mutex
	leads map[string]*model.Lead // keyed site|url
	fail  error
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: map[string]*model.Lead{}}
}

func (f *fakeLeadStore) GetLeadByKey(_ context.Context, site, sourceURL string) (*model.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	l, ok := f.leads[site+"|"+sourceURL]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLeadStore) CreateLead(_ context.Context, lead *model.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	lead.ID = "lead-" + lead.SourceURL
	cp := *lead
	f.leads[lead.Site+"|"+lead.SourceURL] = &cp
	return nil
}

func (f *fakeLeadStore) TouchLead(_ context.Context, lead *model.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *lead
	f.leads[lead.Site+"|"+lead.SourceURL] = &cp
	return nil
}

func (f *fakeLeadStore) MarkMissedScans(context.Context, string, []string) (int, error) {
	return 0, nil
}

func (f *fakeLeadStore) ExpireEventLeads(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeLeadStore) ExpireStaleLeads(context.Context, int) (int, error) {
	return 0, nil
}

type fakeScraper struct {
	site    string
	kind    model.LeadKind
	batch   *scrape.Batch
	err     error
	started     chan struct{} // closed when Fetch begins, if non-nil
	startedOnce sync.Once
	release     chan struct{} // Fetch blocks until closed, if non-nil
}

func (f *fakeScraper) Site() string         { return f.site }
func (f *fakeScraper) Kind() model.LeadKind { return f.kind }

func (f *fakeScraper) Fetch(ctx context.Context, progress scrape.ProgressFunc) (*scrape.Batch, error) {
	if f.started != nil {
		f.startedOnce.Do(func() { close(f.started) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if progress != nil {
		for i, rec := range f.batch.Records {
			progress(i+1, len(f.batch.Records), rec.Name)
		}
	}
	return f.batch, nil
}

type recordingSink struct {
	mu        sync.Mutex
	progress  []stream.Progress
	completes []model.ScanSummary
	errors    []string
}

func (r *recordingSink) Progress(p stream.Progress) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	r.mu.Unlock()
}

func (r *recordingSink) Complete(s model.ScanSummary) {
	r.mu.Lock()
	r.completes = append(r.completes, s)
	r.mu.Unlock()
}

func (r *recordingSink) Error(msg string) {
	r.mu.Lock()
	r.errors = append(r.errors, msg)
	r.mu.Unlock()
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
}

func newTestRunner(t *testing.T, scrapers []scrape.SiteScraper, store reconcile.Store, opts Options) *Runner {
	t.Helper()
	reg := scrape.NewRegistry()
	for _, s := range scrapers {
		reg.Register(s)
	}
	engine := reconcile.New(store, reconcile.Options{}, fixedNow)
	return New(reg, engine, nil, nil, opts, fixedNow)
}

func TestScanCreatesAndTouches(t *testing.T) {
	store := newFakeLeadStore()
	scraper := &fakeScraper{
		site: "entradium",
		kind: model.LeadKindEvent,
		batch: &scrape.Batch{Records: []model.RawRecord{
			{SourceURL: "https://entradium.com/e/1", Name: "Concierto Flamenco", RawDateText: "SÁBADO 15 DE MARZO DE 2025"},
			{SourceURL: "https://entradium.com/e/2", Name: "Festival Jazz", RawDateText: "12 Y 13 ABRIL"},
			{SourceURL: "https://entradium.com/e/3", Name: "Teatro Clásico"},
		}},
	}
	r := newTestRunner(t, []scrape.SiteScraper{scraper}, store, Options{})

	sink := &recordingSink{}
	summary, err := r.Scan(context.Background(), "entradium", sink)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ItemsFound)
	assert.Equal(t, 3, summary.NewItems)
	assert.Empty(t, summary.Errors)

	// Normalized date landed on the lead; unparseable stays nil.
	lead, err := store.GetLeadByKey(context.Background(), "entradium", "https://entradium.com/e/1")
	require.NoError(t, err)
	require.NotNil(t, lead.EventDate)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), *lead.EventDate)

	undated, err := store.GetLeadByKey(context.Background(), "entradium", "https://entradium.com/e/3")
	require.NoError(t, err)
	assert.Nil(t, undated.EventDate)
	assert.Equal(t, model.LeadStatusActive, undated.Status)

	// Second run over the same batch creates nothing new.
	summary, err = r.Scan(context.Background(), "entradium", stream.Discard{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ItemsFound)
	assert.Equal(t, 0, summary.NewItems)

	require.NotEmpty(t, sink.completes)
	assert.Equal(t, "entradium", sink.completes[0].Site)
}

func TestScanRecordWithoutURLIsSkipped(t *testing.T) {
	store := newFakeLeadStore()
	scraper := &fakeScraper{
		site: "eltenedor",
		kind: model.LeadKindRestaurant,
		batch: &scrape.Batch{Records: []model.RawRecord{
			{SourceURL: "", Name: "Sin Enlace"},
			{SourceURL: "https://eltenedor.es/r/9", Name: "Casa Pepe", Discount: "-40%"},
		}},
	}
	r := newTestRunner(t, []scrape.SiteScraper{scraper}, store, Options{})

	summary, err := r.Scan(context.Background(), "eltenedor", stream.Discard{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsFound)
	assert.Equal(t, 1, summary.NewItems)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "no source url")
}

func TestScanZeroResultsFlagged(t *testing.T) {
	scraper := &fakeScraper{
		site:  "wegow",
		kind:  model.LeadKindEvent,
		batch: &scrape.Batch{},
	}
	r := newTestRunner(t, []scrape.SiteScraper{scraper}, newFakeLeadStore(), Options{})

	summary, err := r.Scan(context.Background(), "wegow", stream.Discard{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsFound)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], ZeroResultWarning)
}

func TestScanFetchFailureEmitsErrorEvent(t *testing.T) {
	scraper := &fakeScraper{
		site: "wegow",
		kind: model.LeadKindEvent,
		err:  eris.New("status 503"),
	}
	r := newTestRunner(t, []scrape.SiteScraper{scraper}, newFakeLeadStore(), Options{})

	sink := &recordingSink{}
	_, err := r.Scan(context.Background(), "wegow", sink)
	require.Error(t, err)
	require.Len(t, sink.errors, 1)
	assert.Contains(t, sink.errors[0], "503")
	assert.Empty(t, sink.completes)
}

func TestScanUnknownSite(t *testing.T) {
	r := newTestRunner(t, nil, newFakeLeadStore(), Options{})
	_, err := r.Scan(context.Background(), "nope", stream.Discard{})
	require.Error(t, err)
}

func TestScanSameSiteRejectedWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	scraper := &fakeScraper{
		site:    "entradium",
		kind:    model.LeadKindEvent,
		batch:   &scrape.Batch{},
		started: started,
		release: release,
	}
	r := newTestRunner(t, []scrape.SiteScraper{scraper}, newFakeLeadStore(), Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Scan(context.Background(), "entradium", stream.Discard{})
	}()
	<-started

	_, err := r.Scan(context.Background(), "entradium", stream.Discard{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrScanInFlight))

	close(release)
	<-done

	// Released after completion.
	_, err = r.Scan(context.Background(), "entradium", stream.Discard{})
	require.NoError(t, err)
}

func TestScanAllMergesAndIsolatesFailures(t *testing.T) {
	store := newFakeLeadStore()
	ok := &fakeScraper{
		site: "entradium",
		kind: model.LeadKindEvent,
		batch: &scrape.Batch{Records: []model.RawRecord{
			{SourceURL: "https://entradium.com/e/1", Name: "Concierto"},
		}},
	}
	bad := &fakeScraper{
		site: "wegow",
		kind: model.LeadKindEvent,
		err:  eris.New("connection reset"),
	}
	r := newTestRunner(t, []scrape.SiteScraper{ok, bad}, store, Options{})

	sink := &recordingSink{}
	summary, err := r.ScanAll(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsFound)
	assert.Equal(t, 1, summary.NewItems)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "wegow")

	// One terminal event for the whole run.
	assert.Len(t, sink.completes, 1)
	assert.Empty(t, sink.errors)
}

type countingMatcher struct {
	calls int
}

func (c *countingMatcher) RunBulk(context.Context) (model.MatchResult, error) {
	c.calls++
	return model.MatchResult{}, nil
}

func TestScanRunsMatcherWhenConfigured(t *testing.T) {
	scraper := &fakeScraper{
		site: "entradium",
		kind: model.LeadKindEvent,
		batch: &scrape.Batch{Records: []model.RawRecord{
			{SourceURL: "https://entradium.com/e/1", Name: "Concierto"},
		}},
	}
	reg := scrape.NewRegistry()
	reg.Register(scraper)
	engine := reconcile.New(newFakeLeadStore(), reconcile.Options{}, fixedNow)
	matcher := &countingMatcher{}
	r := New(reg, engine, matcher, nil, Options{MatchAfterScan: true}, fixedNow)

	_, err := r.Scan(context.Background(), "entradium", stream.Discard{})
	require.NoError(t, err)
	assert.Equal(t, 1, matcher.calls)
}

type memScanLog struct {
	mu      sync.Mutex
	entries []model.ScanLogEntry
}

func (m *memScanLog) AppendScanLog(_ context.Context, e model.ScanLogEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func TestScanAppendsScanLog(t *testing.T) {
	scraper := &fakeScraper{
		site: "entradium",
		kind: model.LeadKindEvent,
		batch: &scrape.Batch{Records: []model.RawRecord{
			{SourceURL: "https://entradium.com/e/1", Name: "Concierto"},
		}},
	}
	reg := scrape.NewRegistry()
	reg.Register(scraper)
	engine := reconcile.New(newFakeLeadStore(), reconcile.Options{}, fixedNow)
	log := &memScanLog{}
	r := New(reg, engine, nil, log, Options{}, fixedNow)

	_, err := r.Scan(context.Background(), "entradium", stream.Discard{})
	require.NoError(t, err)
	require.Len(t, log.entries, 1)
	assert.Equal(t, "entradium", log.entries[0].Site)
	assert.Equal(t, "done", log.entries[0].Terminal)
	assert.Equal(t, 1, log.entries[0].ItemsFound)
	assert.Equal(t, 1, log.entries[0].NewItems)
}

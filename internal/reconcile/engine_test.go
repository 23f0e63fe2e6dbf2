package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

type memStore struct {
	leads       map[string]*model.Lead // keyed site|url
	markedSites []string
	expireCalls int
}

func newMemStore() *memStore {
	return &memStore{leads: map[string]*model.Lead{}}
}

func (m *memStore) GetLeadByKey(_ context.Context, site, sourceURL string) (*model.Lead, error) {
	l, ok := m.leads[site+"|"+sourceURL]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) CreateLead(_ context.Context, lead *model.Lead) error {
	lead.ID = "id-" + lead.SourceURL
	cp := *lead
	m.leads[lead.Site+"|"+lead.SourceURL] = &cp
	return nil
}

func (m *memStore) TouchLead(_ context.Context, lead *model.Lead) error {
	existing := m.leads[lead.Site+"|"+lead.SourceURL]
	cp := *lead
	// Protected fields never move on a touch.
	cp.FirstSeenAt = existing.FirstSeenAt
	cp.MatchedBusinessID = existing.MatchedBusinessID
	cp.MatchConfidence = existing.MatchConfidence
	cp.MatchSource = existing.MatchSource
	m.leads[lead.Site+"|"+lead.SourceURL] = &cp
	return nil
}

func (m *memStore) MarkMissedScans(_ context.Context, site string, _ []string) (int, error) {
	m.markedSites = append(m.markedSites, site)
	return 0, nil
}

func (m *memStore) ExpireEventLeads(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (m *memStore) ExpireStaleLeads(context.Context, int) (int, error) {
	m.expireCalls++
	return 2, nil
}

func at(day int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, time.March, day, 12, 0, 0, 0, time.UTC)
	}
}

func TestUpsertCreateThenTouch(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{}, at(10))

	rec := model.RawRecord{
		SourceURL:   "https://entradium.com/e/1",
		Name:        "Concierto Flamenco",
		RawDateText: "15 DE MARZO",
		Place:       "Sala Apolo",
	}
	date := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

	created, err := engine.Upsert(context.Background(), "entradium", model.LeadKindEvent, rec, &date)
	require.NoError(t, err)
	assert.True(t, created)

	lead := store.leads["entradium|https://entradium.com/e/1"]
	require.NotNil(t, lead)
	assert.Equal(t, at(10)(), lead.FirstSeenAt)
	assert.Equal(t, model.LeadStatusActive, lead.Status)
	assert.Equal(t, model.MatchSourceNone, lead.MatchSource)

	// Re-observation five days later with changed descriptive fields.
	later := New(store, Options{}, at(15))
	rec.Name = "Concierto Flamenco (Nueva Fecha)"
	created, err = later.Upsert(context.Background(), "entradium", model.LeadKindEvent, rec, &date)
	require.NoError(t, err)
	assert.False(t, created)

	lead = store.leads["entradium|https://entradium.com/e/1"]
	assert.Equal(t, "Concierto Flamenco (Nueva Fecha)", lead.Name)
	assert.Equal(t, at(15)(), lead.LastScannedAt)
	assert.Equal(t, at(10)(), lead.FirstSeenAt, "first seen never moves")
	assert.Equal(t, 0, lead.MissedScans)
}

func TestUpsertRequiresSourceURL(t *testing.T) {
	engine := New(newMemStore(), Options{}, at(10))
	_, err := engine.Upsert(context.Background(), "wegow", model.LeadKindEvent, model.RawRecord{Name: "Sin URL"}, nil)
	assert.Error(t, err)
}

func TestUpsertPastEventExpiresOnObservation(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{}, at(20))

	past := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	rec := model.RawRecord{SourceURL: "https://wegow.com/e/7", Name: "Gira Pasada"}
	_, err := engine.Upsert(context.Background(), "wegow", model.LeadKindEvent, rec, &past)
	require.NoError(t, err)

	assert.Equal(t, model.LeadStatusExpired, store.leads["wegow|https://wegow.com/e/7"].Status)
}

func TestUpsertSameDayEventStaysActive(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{}, at(15))

	today := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	rec := model.RawRecord{SourceURL: "https://wegow.com/e/8", Name: "Esta Noche"}
	_, err := engine.Upsert(context.Background(), "wegow", model.LeadKindEvent, rec, &today)
	require.NoError(t, err)

	assert.Equal(t, model.LeadStatusActive, store.leads["wegow|https://wegow.com/e/8"].Status)
}

func TestUpsertRestaurantIgnoresDateStatus(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{}, at(20))

	rec := model.RawRecord{SourceURL: "https://eltenedor.es/r/1", Name: "Casa Pepe", Discount: "-40%"}
	_, err := engine.Upsert(context.Background(), "eltenedor", model.LeadKindRestaurant, rec, nil)
	require.NoError(t, err)

	assert.Equal(t, model.LeadStatusActive, store.leads["eltenedor|https://eltenedor.es/r/1"].Status)
}

func TestSweepDisabledByZeroWindow(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{MissedScansToExpire: 0}, at(10))

	expired, err := engine.Sweep(context.Background(), "eltenedor", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Empty(t, store.markedSites)
	assert.Equal(t, 0, store.expireCalls)
}

func TestSweepMarksAndExpires(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{MissedScansToExpire: 3}, at(10))

	expired, err := engine.Sweep(context.Background(), "eltenedor", []string{"https://eltenedor.es/r/1"})
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.Equal(t, []string{"eltenedor"}, store.markedSites)
}

func TestExpireStaleAppliesWindow(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{MissedScansToExpire: 3}, at(10))

	expired, err := engine.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
	assert.Equal(t, 1, store.expireCalls)
	// No scan ran, so no missed-scan accounting happens here.
	assert.Empty(t, store.markedSites)
}

func TestExpireStaleDisabledByZeroWindow(t *testing.T) {
	store := newMemStore()
	engine := New(store, Options{MissedScansToExpire: 0}, at(10))

	expired, err := engine.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Equal(t, 0, store.expireCalls)
}

package crm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// fakeQuerier answers SOQL queries with canned records, decoding them
// the way go-salesforce does: the record set is a JSON array, so the
// target must be a pointer to a slice.
type fakeQuerier struct {
	soql    string
	records []map[string]any
	err     error
}

func (f *fakeQuerier) Query(soql string, sObject any) error {
	f.soql = soql
	if f.err != nil {
		return f.err
	}
	raw, err := json.Marshal(f.records)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, sObject)
}

func TestListBusinessesDecodesAccountRecords(t *testing.T) {
	var _ querier = (*salesforce.Salesforce)(nil)

	fake := &fakeQuerier{records: []map[string]any{
		{"Id": "001A", "Name": "Sala Apolo"},
		{"Id": "001B", "Name": ""},
		{"Id": "001C", "Name": "Casa Pepe"},
	}}
	r := &sfRegistry{sf: fake}

	businesses, err := r.ListBusinesses(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "SELECT Id, Name FROM Account", fake.soql)
	require.Len(t, businesses, 2)
	assert.Equal(t, model.Business{ID: "001A", Name: "Sala Apolo"}, businesses[0])
	assert.Equal(t, model.Business{ID: "001C", Name: "Casa Pepe"}, businesses[1])
}

func TestListBusinessesAppliesWhereClause(t *testing.T) {
	fake := &fakeQuerier{}
	r := &sfRegistry{sf: fake, where: "BillingCountry = 'Spain'"}

	_, err := r.ListBusinesses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SELECT Id, Name FROM Account WHERE BillingCountry = 'Spain'", fake.soql)
}

func TestListBusinessesQueryError(t *testing.T) {
	fake := &fakeQuerier{err: eris.New("invalid session")}
	r := &sfRegistry{sf: fake}

	_, err := r.ListBusinesses(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm: query accounts")
}

func TestListBusinessesRateLimitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeQuerier{}
	r := &sfRegistry{sf: fake, limiter: rate.NewLimiter(rate.Limit(1), 1)}

	_, err := r.ListBusinesses(ctx)
	require.Error(t, err)
	assert.Empty(t, fake.soql)
}

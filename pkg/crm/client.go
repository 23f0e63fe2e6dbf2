// Package crm provides JWT-authenticated read access to the CRM
// business registry (Salesforce Accounts).
package crm

import (
	"context"
	"fmt"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/grupoagenda/leadscan-cli/internal/model"
)

// Registry is the read surface the matcher needs from the CRM.
type Registry interface {
	ListBusinesses(ctx context.Context) ([]model.Business, error)
}

// Config holds the Salesforce connection settings.
type Config struct {
	LoginURL   string
	Username   string
	ClientID   string
	KeyPath    string
	RatePerSec float64
	// Where is an optional SOQL filter appended to the Account query,
	// e.g. "Type = 'Venue' AND BillingCountry = 'Spain'".
	Where string
}

// querier is the subset of the go-salesforce/v3 API the registry uses.
type querier interface {
	Query(soql string, sObject any) error
}

// account mirrors the queried Account fields.
type account struct {
	ID   string `json:"Id" salesforce:"Id"`
	Name string `json:"Name" salesforce:"Name"`
}

// sfRegistry wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: go-salesforce/v3 does not accept context.Context, so ctx only
// governs the rate limiter wait.
type sfRegistry struct {
	sf      querier
	limiter *rate.Limiter
	where   string
}

// New connects to Salesforce with the JWT bearer flow and returns a
// Registry over the Account object.
func New(cfg Config) (Registry, error) {
	pemData, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "crm: read JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.LoginURL,
		Username:       cfg.Username,
		ConsumerKey:    cfg.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "crm: init salesforce")
	}

	r := &sfRegistry{sf: sf, where: cfg.Where}
	if cfg.RatePerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(int(cfg.RatePerSec), 1))
	}
	return r, nil
}

func (r *sfRegistry) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// ListBusinesses queries every Account's Id and Name. go-salesforce
// follows nextRecordsUrl pagination internally and decodes the record
// set into a slice target, so the query result is passed as one.
func (r *sfRegistry) ListBusinesses(ctx context.Context) ([]model.Business, error) {
	if err := r.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "crm: rate limit")
	}

	soql := "SELECT Id, Name FROM Account"
	if r.where != "" {
		soql = fmt.Sprintf("%s WHERE %s", soql, r.where)
	}

	var records []account
	if err := r.sf.Query(soql, &records); err != nil {
		return nil, eris.Wrap(err, "crm: query accounts")
	}

	businesses := make([]model.Business, 0, len(records))
	for _, a := range records {
		if a.Name == "" {
			continue
		}
		businesses = append(businesses, model.Business{ID: a.ID, Name: a.Name})
	}
	return businesses, nil
}

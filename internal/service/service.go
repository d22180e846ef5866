// Package service is the engine facade: it selects the working account and
// composes the scanner, discoverer, resolver, comparator and estimator into
// the operations a caller actually invokes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dmestre/meliwatch/internal/category"
	"github.com/dmestre/meliwatch/internal/estimate"
	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/model"
	"github.com/dmestre/meliwatch/internal/normalize"
	"github.com/dmestre/meliwatch/internal/rival"
	"github.com/dmestre/meliwatch/internal/sales"
	"github.com/dmestre/meliwatch/internal/stock"
	"github.com/dmestre/meliwatch/internal/store"
)

// ErrNoAccounts means the credential store holds no linked seller at all.
var ErrNoAccounts = errors.New("service: no accounts configured")

// topListSize is how many market listings a category report carries.
const topListSize = 10

// marketSearchLimit bounds the public search feeding the top list.
const marketSearchLimit = 50

// MarketAPI is the small slice of the marketplace client the facade calls
// directly; everything else goes through the composed engines.
type MarketAPI interface {
	GetItem(ctx context.Context, token, itemID string) *meli.Item
	SearchSitePublic(ctx context.Context, query string, limit int) *meli.SearchResult
}

// TokenSource resolves a usable token for one account.
type TokenSource interface {
	ValidToken(ctx context.Context, account model.Account) (string, error)
}

// Scanner runs one full stock pass.
type Scanner interface {
	Scan(ctx context.Context) (*model.StockReport, error)
}

// Deps carries everything the facade composes.
type Deps struct {
	Accounts   store.CredentialStore
	Reports    store.ReportStore
	API        MarketAPI
	Tokens     TokenSource
	Scanner    Scanner
	Discoverer *category.Discoverer
	Resolver   *rival.Resolver
	Comparator *sales.Comparator
	Estimator  *estimate.Estimator

	// PreferredUserID pins which account backs the read operations; empty
	// means the first linked account.
	PreferredUserID string
}

// Service is the engine facade.
type Service struct {
	deps Deps
	now  func() time.Time
}

// New creates the facade. A nil estimator gets a default one.
func New(deps Deps) *Service {
	if deps.Estimator == nil {
		deps.Estimator = estimate.NewEstimator()
	}
	return &Service{deps: deps, now: time.Now}
}

// TriggerScan runs one stock scan across every account and returns the
// persisted report.
func (s *Service) TriggerScan(ctx context.Context) (*model.StockReport, error) {
	return s.deps.Scanner.Scan(ctx)
}

// LatestStockReport returns the snapshot of the most recent scan.
func (s *Service) LatestStockReport(ctx context.Context) (*model.StockReport, error) {
	report, err := s.deps.Reports.LoadStockReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stock report: %w", err)
	}
	return report, nil
}

// ListCategories discovers the categories the working seller publishes in.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	acc, token, err := s.workingAccount(ctx)
	if err != nil {
		return nil, err
	}
	return s.deps.Discoverer.SellerCategories(ctx, token, acc.UserID), nil
}

// CategoryReport builds the market top list for one category plus the
// seller's own month-over-year sales in it. month is 1-12; anything else
// means the current month.
func (s *Service) CategoryReport(ctx context.Context, categoryID string, month int) (*model.CategoryReport, error) {
	acc, token, err := s.workingAccount(ctx)
	if err != nil {
		return nil, err
	}
	if month < 1 || month > 12 {
		month = int(s.now().Month())
	}

	name := s.deps.Discoverer.Name(ctx, token, categoryID)

	var listings []model.NormalizedListing
	if res := s.deps.API.SearchSitePublic(ctx, name, marketSearchLimit); res != nil {
		listings = make([]model.NormalizedListing, 0, len(res.Results))
		for _, entry := range res.Results {
			listings = append(listings, normalize.FromSearchEntry(entry))
		}
	}
	if len(listings) == 0 {
		log.Printf("service: market search for %q came up empty", name)
	}

	top, volume := s.deps.Estimator.TopN(listings, topListSize)

	stats := s.deps.Comparator.MonthlySales(ctx, token, acc.UserID, categoryID, month)
	stats.MarketVolume = volume

	return &model.CategoryReport{Top10: top, Stats: stats}, nil
}

// Versus compares one of the seller's own listings against its strongest
// resolvable competitor. rival.ErrNoCandidate passes through untouched so
// callers can tell "no competitor" from a transport failure.
func (s *Service) Versus(ctx context.Context, itemID string) (*model.ComparisonResult, error) {
	acc, token, err := s.workingAccount(ctx)
	if err != nil {
		return nil, err
	}

	own := s.deps.API.GetItem(ctx, token, itemID)
	if own == nil {
		return nil, fmt.Errorf("service: listing %s not reachable for account %s", itemID, acc.UserID)
	}

	categoryName := s.deps.Discoverer.Name(ctx, token, own.CategoryID)

	candidate, err := s.deps.Resolver.Resolve(ctx, token, own, categoryName)
	if err != nil {
		return nil, err
	}

	return &model.ComparisonResult{
		Me:       normalize.Normalize(normalize.FromItem(own)),
		Rival:    s.deps.Estimator.Fill(normalize.Normalize(candidate), 0),
		Category: categoryName,
	}, nil
}

// workingAccount picks the account backing read operations and resolves a
// live token for it. The preferred account wins when configured and
// present; otherwise the first linked account serves.
func (s *Service) workingAccount(ctx context.Context) (model.Account, string, error) {
	acc, err := s.selectAccount(ctx)
	if err != nil {
		return model.Account{}, "", err
	}
	token, err := s.deps.Tokens.ValidToken(ctx, acc)
	if err != nil {
		return model.Account{}, "", fmt.Errorf("account %s: %w", acc.UserID, err)
	}
	return acc, token, nil
}

func (s *Service) selectAccount(ctx context.Context) (model.Account, error) {
	if s.deps.PreferredUserID != "" {
		acc, err := s.deps.Accounts.GetAccount(ctx, s.deps.PreferredUserID)
		if err == nil {
			return *acc, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Account{}, fmt.Errorf("loading account %s: %w", s.deps.PreferredUserID, err)
		}
		log.Printf("service: preferred account %s not linked, falling back to first", s.deps.PreferredUserID)
	}

	accounts, err := s.deps.Accounts.ListAccounts(ctx)
	if err != nil {
		return model.Account{}, fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		return model.Account{}, ErrNoAccounts
	}
	return accounts[0], nil
}

var _ Scanner = (*stock.Scanner)(nil)

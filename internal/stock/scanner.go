package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmestre/meliwatch/internal/concurrent"
	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/model"
	"github.com/dmestre/meliwatch/internal/store"
)

// ErrNoAccounts is the only hard failure a scan can produce besides a
// report-store write error: with nothing configured there is nothing to do.
var ErrNoAccounts = errors.New("stock: no accounts configured")

// multiGetChunk is the upstream multiget limit.
const multiGetChunk = 20

const editPermalinkFormat = "https://www.mercadolibre.com.ar/publicaciones/%s/modificar"

// MarketAPI is the slice of the marketplace client the scanner needs.
type MarketAPI interface {
	SearchActiveItemIDs(ctx context.Context, token, userID string) []string
	MultiGetItems(ctx context.Context, token string, itemIDs, attributes []string) []meli.Item
	GetItem(ctx context.Context, token, itemID string) *meli.Item
}

// TokenSource resolves a usable token for one account.
type TokenSource interface {
	ValidToken(ctx context.Context, account model.Account) (string, error)
}

// Scanner walks every linked account, classifies stockouts and persists one
// aggregate report, replacing the previous snapshot. One account failing
// auth never aborts the scan; it is logged per account and skipped.
type Scanner struct {
	accounts store.CredentialStore
	reports  store.ReportStore
	api      MarketAPI
	tokens   TokenSource
	fetcher  *concurrent.Fetcher
}

// NewScanner creates a stock scanner.
func NewScanner(accounts store.CredentialStore, reports store.ReportStore, api MarketAPI, tokens TokenSource, fetcher *concurrent.Fetcher) *Scanner {
	if fetcher == nil {
		fetcher = concurrent.NewFetcher(concurrent.Config{})
	}
	return &Scanner{
		accounts: accounts,
		reports:  reports,
		api:      api,
		tokens:   tokens,
		fetcher:  fetcher,
	}
}

// accountResult is one account's contribution to the report.
type accountResult struct {
	flags    []model.StockFlag
	variants []model.VariantFlag
	status   model.AccountStatus
}

// Scan runs one full pass and persists the resulting report.
func (s *Scanner) Scan(ctx context.Context) (*model.StockReport, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	// Accounts own disjoint credential slices, so they can run in parallel.
	// Results are collected per account and appended in account order to
	// keep the report stable.
	results := make([]accountResult, len(accounts))
	var wg sync.WaitGroup
	for i, acc := range accounts {
		wg.Add(1)
		go func(i int, acc model.Account) {
			defer wg.Done()
			results[i] = s.scanAccount(ctx, acc)
		}(i, acc)
	}
	wg.Wait()

	report := &model.StockReport{
		ScanID:            uuid.NewString(),
		Timestamp:         time.Now().UTC(),
		SinStockTotal:     []model.StockFlag{},
		VariantesSinStock: []model.VariantFlag{},
		PerAccountLog:     make([]model.AccountStatus, 0, len(accounts)),
	}
	for _, r := range results {
		report.SinStockTotal = append(report.SinStockTotal, r.flags...)
		report.VariantesSinStock = append(report.VariantesSinStock, r.variants...)
		report.PerAccountLog = append(report.PerAccountLog, r.status)
	}

	if err := s.reports.SaveStockReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persisting stock report: %w", err)
	}

	log.Printf("stock: scan %s done, %d listings and %d variants flagged across %d accounts",
		report.ScanID, len(report.SinStockTotal), len(report.VariantesSinStock), len(accounts))
	return report, nil
}

// scanAccount processes one account end to end.
func (s *Scanner) scanAccount(ctx context.Context, acc model.Account) accountResult {
	token, err := s.tokens.ValidToken(ctx, acc)
	if err != nil {
		return accountResult{status: model.AccountStatus{
			Alias:   acc.Alias,
			Status:  model.StatusAuthError,
			Message: "could not refresh token",
		}}
	}

	itemIDs := s.api.SearchActiveItemIDs(ctx, token, acc.UserID)
	if len(itemIDs) == 0 {
		return accountResult{status: model.AccountStatus{Alias: acc.Alias, Status: model.StatusOK}}
	}

	items := s.fetchDetails(ctx, token, itemIDs)

	var res accountResult
	for _, item := range items {
		flags, variants := classify(acc.Alias, item.ToListing())
		res.flags = append(res.flags, flags...)
		res.variants = append(res.variants, variants...)
	}
	res.status = model.AccountStatus{
		Alias:  acc.Alias,
		Status: model.StatusProcessed,
		Items:  len(items),
	}
	return res
}

// fetchDetails resolves item details in multiget chunks issued as a bounded
// parallel batch and joined before classification. A chunk that degrades to
// absence is retried id by id so one bad id cannot hide nineteen good ones.
func (s *Scanner) fetchDetails(ctx context.Context, token string, itemIDs []string) []meli.Item {
	var chunks []string
	for i := 0; i < len(itemIDs); i += multiGetChunk {
		end := min(i+multiGetChunk, len(itemIDs))
		chunks = append(chunks, strings.Join(itemIDs[i:end], ","))
	}

	results := s.fetcher.FetchAll(ctx, chunks, func(ctx context.Context, chunk string) interface{} {
		ids := strings.Split(chunk, ",")
		if items := s.api.MultiGetItems(ctx, token, ids, nil); items != nil {
			return items
		}
		var items []meli.Item
		for _, id := range ids {
			if item := s.api.GetItem(ctx, token, id); item != nil {
				items = append(items, *item)
			}
		}
		return items
	})

	var items []meli.Item
	for _, r := range results {
		if batch, ok := r.Value.([]meli.Item); ok {
			items = append(items, batch...)
		}
	}
	return items
}

// classify flags stockouts for one listing. Listings with variations are
// evaluated per variation; a zero-quantity variation flags that variation
// only. Listings without variations are flagged whole at quantity zero.
func classify(alias string, listing model.Listing) ([]model.StockFlag, []model.VariantFlag) {
	editLink := fmt.Sprintf(editPermalinkFormat, listing.ItemID)

	if len(listing.Variations) > 0 {
		var variants []model.VariantFlag
		for _, v := range listing.Variations {
			if v.AvailableQuantity != 0 {
				continue
			}
			variants = append(variants, model.VariantFlag{
				Account:       alias,
				ItemID:        listing.ItemID,
				VariationID:   v.VariationID,
				VariationName: variationName(v),
				Title:         listing.Title,
				Permalink:     editLink,
			})
		}
		return nil, variants
	}

	if listing.AvailableQuantity == 0 {
		return []model.StockFlag{{
			Account:   alias,
			ItemID:    listing.ItemID,
			Title:     listing.Title,
			Permalink: editLink,
		}}, nil
	}
	return nil, nil
}

// variationName renders "Color: Rojo - Talle: M", falling back to the raw
// variation id when the upstream omits attribute combinations.
func variationName(v model.Variation) string {
	if len(v.AttributeCombination) == 0 {
		return fmt.Sprintf("ID: %d", v.VariationID)
	}
	parts := make([]string, 0, len(v.AttributeCombination))
	for _, a := range v.AttributeCombination {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Name, a.ValueName))
	}
	return strings.Join(parts, " - ")
}

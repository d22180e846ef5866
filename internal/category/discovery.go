package category

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/dmestre/meliwatch/internal/cache"
	"github.com/dmestre/meliwatch/internal/concurrent"
	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/model"
)

// itemProbeLimit bounds the one-by-one item lookups of the last tier so a
// large catalog does not stall the caller.
const itemProbeLimit = 15

// MarketAPI is the slice of the marketplace client discovery needs.
type MarketAPI interface {
	GetUser(ctx context.Context, token string) *meli.User
	SearchActiveItemIDs(ctx context.Context, token, userID string) []string
	SearchSeller(ctx context.Context, sellerID string) *meli.SearchResult
	SearchOrders(ctx context.Context, token, sellerID, from, to string, limit, offset int) *meli.OrderSearch
	GetItem(ctx context.Context, token, itemID string) *meli.Item
	GetCategory(ctx context.Context, token, categoryID string) *meli.Category
}

// Discoverer finds the categories a seller operates in. Sellers with a dead
// items search (scope limits, paused publications) still get answers through
// the public seller search or their order history.
type Discoverer struct {
	api     MarketAPI
	fetcher *concurrent.Fetcher
	names   *cache.Memory
}

// NewDiscoverer creates a discoverer. Category names change rarely; they are
// cached for an hour.
func NewDiscoverer(api MarketAPI, fetcher *concurrent.Fetcher) *Discoverer {
	if fetcher == nil {
		fetcher = concurrent.NewFetcher(concurrent.Config{})
	}
	return &Discoverer{
		api:     api,
		fetcher: fetcher,
		names:   cache.NewMemory(time.Hour),
	}
}

// SellerCategories returns the id/name pairs of every category the seller
// was seen in. Absence at every tier yields an empty slice, not an error.
func (d *Discoverer) SellerCategories(ctx context.Context, token, userID string) []model.Category {
	if u := d.api.GetUser(ctx, token); u != nil {
		userID = formatUserID(u.ID)
	}

	categoryIDs, itemIDs := d.harvest(ctx, token, userID)

	// No category surfaced directly: probe the first items one by one with
	// credentials, which also sees paused or private publications.
	if len(categoryIDs) == 0 && len(itemIDs) > 0 {
		if len(itemIDs) > itemProbeLimit {
			itemIDs = itemIDs[:itemProbeLimit]
		}
		results := d.fetcher.FetchAll(ctx, itemIDs, func(ctx context.Context, id string) interface{} {
			return d.api.GetItem(ctx, token, id)
		})
		seen := map[string]bool{}
		for _, r := range results {
			item, ok := r.Value.(*meli.Item)
			if !ok || item == nil || item.CategoryID == "" {
				continue
			}
			if !seen[item.CategoryID] {
				seen[item.CategoryID] = true
				categoryIDs = append(categoryIDs, item.CategoryID)
			}
		}
	}

	log.Printf("category: %d categories discovered for seller %s", len(categoryIDs), userID)
	return d.resolveNames(ctx, token, categoryIDs)
}

// harvest walks the acquisition tiers in decreasing trust: the seller's own
// item search, the public seller search, then paid-order history. The first
// tier yielding anything wins; later tiers can surface category ids
// directly, short-circuiting the item probe.
func (d *Discoverer) harvest(ctx context.Context, token, userID string) (categoryIDs, itemIDs []string) {
	if ids := d.api.SearchActiveItemIDs(ctx, token, userID); len(ids) > 0 {
		return nil, ids
	}

	if res := d.api.SearchSeller(ctx, userID); res != nil && len(res.Results) > 0 {
		seen := map[string]bool{}
		for _, e := range res.Results {
			if e.CategoryID != "" && !seen[e.CategoryID] {
				seen[e.CategoryID] = true
				categoryIDs = append(categoryIDs, e.CategoryID)
			}
		}
		return categoryIDs, nil
	}

	orders := d.api.SearchOrders(ctx, token, userID, "", "", 50, 0)
	if orders == nil {
		return nil, nil
	}
	seenCat := map[string]bool{}
	seenItem := map[string]bool{}
	for _, order := range orders.Results {
		for _, oi := range order.OrderItems {
			if oi.Item.CategoryID != "" && !seenCat[oi.Item.CategoryID] {
				seenCat[oi.Item.CategoryID] = true
				categoryIDs = append(categoryIDs, oi.Item.CategoryID)
			}
			if oi.Item.ID != "" && !seenItem[oi.Item.ID] {
				seenItem[oi.Item.ID] = true
				itemIDs = append(itemIDs, oi.Item.ID)
			}
		}
	}
	return categoryIDs, itemIDs
}

// resolveNames maps category ids to names, falling back to "ID: <id>" when
// the lookup degrades to absence.
func (d *Discoverer) resolveNames(ctx context.Context, token string, categoryIDs []string) []model.Category {
	out := make([]model.Category, 0, len(categoryIDs))
	for _, id := range categoryIDs {
		out = append(out, model.Category{ID: id, Name: d.Name(ctx, token, id)})
	}
	return out
}

// Name resolves one category name through the cache.
func (d *Discoverer) Name(ctx context.Context, token, categoryID string) string {
	if name, ok := d.names.GetString(categoryID); ok {
		return name
	}
	if cat := d.api.GetCategory(ctx, token, categoryID); cat != nil && cat.Name != "" {
		d.names.Set(categoryID, cat.Name, 0)
		return cat.Name
	}
	return "ID: " + categoryID
}

// formatUserID renders the numeric upstream id as the string form used
// everywhere else in this package.
func formatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

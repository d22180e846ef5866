package sales

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmestre/meliwatch/internal/cache"
	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/model"
)

const (
	orderPageSize = 50
	orderHardCap  = 1000
	itemChunkSize = 20
)

// MarketAPI is the slice of the marketplace client the comparator needs.
type MarketAPI interface {
	SearchOrders(ctx context.Context, token, sellerID, from, to string, limit, offset int) *meli.OrderSearch
	MultiGetItems(ctx context.Context, token string, itemIDs, attributes []string) []meli.Item
}

// Comparator computes own sales for a category in a month window against the
// same month of the prior year. Order pages and item lookups are fail-soft:
// an absent page truncates the count instead of failing the comparison.
type Comparator struct {
	api MarketAPI
	now func() time.Time
}

// NewComparator creates a comparator.
func NewComparator(api MarketAPI) *Comparator {
	return &Comparator{api: api, now: time.Now}
}

// NewComparatorAt pins the clock, mainly for tests.
func NewComparatorAt(api MarketAPI, now func() time.Time) *Comparator {
	return &Comparator{api: api, now: now}
}

// MonthlySales counts paid orders with at least one line in categoryID for
// the given month of the current and prior year, and derives the growth
// percentage. month is 1-12.
func (c *Comparator) MonthlySales(ctx context.Context, token, sellerID, categoryID string, month int) model.MonthlyStats {
	yearCurrent := c.now().Year()
	yearPrev := yearCurrent - 1

	// itemID -> categoryID, shared across both windows within this call.
	categories := cache.NewMemory(0)

	var cur, prev int
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		from, to := monthRange(yearCurrent, month)
		cur = c.countWindow(ctx, token, sellerID, categoryID, from, to, categories)
	}()
	go func() {
		defer wg.Done()
		from, to := monthRange(yearPrev, month)
		prev = c.countWindow(ctx, token, sellerID, categoryID, from, to, categories)
	}()
	wg.Wait()

	return model.MonthlyStats{
		YearCurrent:  yearCurrent,
		YearPrev:     yearPrev,
		SalesCurrent: cur,
		SalesPrev:    prev,
		GrowthPct:    Growth(prev, cur),
	}
}

// Growth is the month-over-year percentage: prior>0 gives the usual delta,
// growth from nothing is pinned at 100, and two empty months are flat.
func Growth(prev, cur int) float64 {
	switch {
	case prev > 0:
		return (float64(cur) - float64(prev)) / float64(prev) * 100
	case cur > 0:
		return 100
	default:
		return 0
	}
}

// monthRange bounds one calendar month in the upstream's -03:00 local time.
func monthRange(year, month int) (string, string) {
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	from := fmt.Sprintf("%d-%02d-01T00:00:00.000-03:00", year, month)
	to := fmt.Sprintf("%d-%02d-%02dT23:59:59.999-03:00", year, month, lastDay)
	return from, to
}

// countWindow pages one date window and counts qualifying orders. An order
// qualifies when any of its line items resolves to the target category.
func (c *Comparator) countWindow(ctx context.Context, token, sellerID, categoryID, from, to string, categories *cache.Memory) int {
	total := 0

	for offset := 0; offset < orderHardCap; offset += orderPageSize {
		page := c.api.SearchOrders(ctx, token, sellerID, from, to, orderPageSize, offset)
		if page == nil || len(page.Results) == 0 {
			break
		}

		c.resolveCategories(ctx, token, page.Results, categories)

		for _, order := range page.Results {
			if orderInCategory(order, categoryID, categories) {
				total++
			}
		}

		if offset+orderPageSize >= page.Paging.Total {
			break
		}
	}
	return total
}

// resolveCategories fills the cache for every line item of a page, taking
// the embedded category when the order carries it and batching item lookups
// in chunks of 20 for the rest.
func (c *Comparator) resolveCategories(ctx context.Context, token string, orders []meli.Order, categories *cache.Memory) {
	var missing []string
	seen := map[string]bool{}

	for _, order := range orders {
		for _, oi := range order.OrderItems {
			id := oi.Item.ID
			if id == "" {
				continue
			}
			if oi.Item.CategoryID != "" {
				categories.Set(id, oi.Item.CategoryID, 0)
				continue
			}
			if _, ok := categories.GetString(id); ok || seen[id] {
				continue
			}
			seen[id] = true
			missing = append(missing, id)
		}
	}

	for i := 0; i < len(missing); i += itemChunkSize {
		end := min(i+itemChunkSize, len(missing))
		items := c.api.MultiGetItems(ctx, token, missing[i:end], []string{"id", "category_id"})
		for _, item := range items {
			if item.ID != "" && item.CategoryID != "" {
				categories.Set(item.ID, item.CategoryID, 0)
			}
		}
	}
}

func orderInCategory(order meli.Order, categoryID string, categories *cache.Memory) bool {
	for _, oi := range order.OrderItems {
		if cat, ok := categories.GetString(oi.Item.ID); ok && cat == categoryID {
			return true
		}
	}
	return false
}

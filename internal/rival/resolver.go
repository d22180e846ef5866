package rival

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/normalize"
)

// ErrNoCandidate is the terminal resolver outcome: every tier and every
// detail fetch came up empty. It is an explicit negative result, never
// retried and never replaced with a fabricated competitor.
var ErrNoCandidate = errors.New("rival: no competitor found")

// titleKeywords is how many leading title words feed the last-resort search.
const titleKeywords = 2

// MarketAPI is the slice of the marketplace client the resolver needs.
type MarketAPI interface {
	CategoryHighlights(ctx context.Context, token, categoryID string) []meli.HighlightEntry
	SearchSite(ctx context.Context, token, query string, limit int) *meli.SearchResult
	SearchSitePublic(ctx context.Context, query string, limit int) *meli.SearchResult
	GetItem(ctx context.Context, token, itemID string) *meli.Item
	GetItemPublic(ctx context.Context, itemID string) *meli.Item
	GetProduct(ctx context.Context, token, productID string) *meli.CatalogProduct
}

// Candidate is one possible competitor surfaced by a tier.
type Candidate struct {
	ID            string
	Price         float64
	DirectListing bool
}

// Tier is one acquisition strategy. Tiers are ordered by decreasing trust
// and evaluated strictly in sequence; a later tier's request is never issued
// before the earlier tier's outcome is known.
type Tier struct {
	Name string
	Run  func(ctx context.Context) []Candidate
}

// Resolver finds a comparable competitor listing for one of the seller's own
// publications.
type Resolver struct {
	api MarketAPI
}

// NewResolver creates a resolver.
func NewResolver(api MarketAPI) *Resolver {
	return &Resolver{api: api}
}

// Resolve runs the tier chain for the given listing and resolves the chosen
// candidate's details. categoryName drives the public-search tier; the
// listing's own id is excluded everywhere.
func (r *Resolver) Resolve(ctx context.Context, token string, own *meli.Item, categoryName string) (normalize.Candidate, error) {
	tiers := []Tier{
		{Name: "highlights", Run: func(ctx context.Context) []Candidate {
			return r.highlightCandidates(ctx, token, own.CategoryID)
		}},
		{Name: "public_category_search", Run: func(ctx context.Context) []Candidate {
			return r.publicSearchCandidates(ctx, categoryName)
		}},
		{Name: "title_search", Run: func(ctx context.Context) []Candidate {
			return r.titleSearchCandidates(ctx, token, own.Title)
		}},
	}

	best, ok := firstUsable(ctx, tiers, own.ID)
	if !ok {
		return normalize.Candidate{}, ErrNoCandidate
	}

	return r.resolveDetail(ctx, token, best.ID)
}

// firstUsable evaluates tiers in order and stops at the first one yielding a
// usable candidate set. Exclusion of the caller's own id and de-duplication
// by id apply across tiers: an id already seen in an earlier tier does not
// count as new evidence in a later one.
func firstUsable(ctx context.Context, tiers []Tier, ownID string) (Candidate, bool) {
	seen := map[string]bool{ownID: true}

	for _, tier := range tiers {
		var usable []Candidate
		for _, c := range tier.Run(ctx) {
			if c.ID == "" || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			usable = append(usable, c)
		}
		if len(usable) == 0 {
			continue
		}
		log.Printf("rival: %d candidate(s) from tier %s", len(usable), tier.Name)
		return pick(usable), true
	}
	return Candidate{}, false
}

// pick prefers a candidate with a non-zero price and a direct-listing schema
// marker; failing that, the first candidate stands as best effort.
func pick(candidates []Candidate) Candidate {
	for _, c := range candidates {
		if c.Price > 0 && c.DirectListing {
			return c
		}
	}
	return candidates[0]
}

func (r *Resolver) highlightCandidates(ctx context.Context, token, categoryID string) []Candidate {
	entries := r.api.CategoryHighlights(ctx, token, categoryID)
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		id := e.EntryID()
		if id == "" {
			continue
		}
		// Leaderboard entries carry no price; the ITEM type is the only
		// schema marker available at this tier.
		out = append(out, Candidate{ID: id, DirectListing: e.Type != "PRODUCT"})
	}
	return out
}

func (r *Resolver) publicSearchCandidates(ctx context.Context, categoryName string) []Candidate {
	res := r.api.SearchSitePublic(ctx, categoryName, 5)
	return searchCandidates(res)
}

func (r *Resolver) titleSearchCandidates(ctx context.Context, token, title string) []Candidate {
	words := strings.Fields(title)
	if len(words) > titleKeywords {
		words = words[:titleKeywords]
	}
	if len(words) == 0 {
		return nil
	}
	res := r.api.SearchSite(ctx, token, strings.Join(words, " "), 5)
	return searchCandidates(res)
}

func searchCandidates(res *meli.SearchResult) []Candidate {
	if res == nil {
		return nil
	}
	out := make([]Candidate, 0, len(res.Results))
	for _, e := range res.Results {
		out = append(out, Candidate{
			ID:            e.ID,
			Price:         e.Price,
			DirectListing: !e.CatalogListing,
		})
	}
	return out
}

// resolveDetail fetches the chosen candidate's full payload. The state
// machine mirrors the upstream's split personality: an id can name a direct
// listing, a catalog product, or a listing only visible without credentials.
//
//	FETCH_AS_LISTING -> ok: done; absent -> FETCH_AS_CATALOG_PRODUCT
//	FETCH_AS_CATALOG_PRODUCT -> ok: done; absent -> FETCH_PUBLIC_UNAUTH
//	FETCH_PUBLIC_UNAUTH -> ok: done; absent -> FAILURE
func (r *Resolver) resolveDetail(ctx context.Context, token, id string) (normalize.Candidate, error) {
	if item := r.api.GetItem(ctx, token, id); item != nil {
		return normalize.FromItem(item), nil
	}

	log.Printf("rival: %s not fetchable as listing, trying catalog product", id)
	if product := r.api.GetProduct(ctx, token, id); product != nil {
		return normalize.FromProduct(product), nil
	}

	log.Printf("rival: %s not fetchable with credentials, trying public", id)
	if item := r.api.GetItemPublic(ctx, id); item != nil {
		return normalize.FromItem(item), nil
	}

	return normalize.Candidate{}, ErrNoCandidate
}

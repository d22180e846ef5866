package meli

import "github.com/dmestre/meliwatch/internal/model"

// User is the payload of the session-liveness probe.
type User struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// Item is a seller's direct publication. SoldQuantity stays a pointer because
// the normalizer needs to tell "upstream said zero" apart from "upstream said
// nothing".
type Item struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Price             float64           `json:"price"`
	CategoryID        string            `json:"category_id"`
	Thumbnail         string            `json:"thumbnail"`
	SecureThumbnail   string            `json:"secure_thumbnail"`
	Permalink         string            `json:"permalink"`
	Condition         string            `json:"condition"`
	SoldQuantity      *int              `json:"sold_quantity"`
	AvailableQuantity int               `json:"available_quantity"`
	Variations        []model.Variation `json:"variations"`
	Error             string            `json:"error,omitempty"`
}

// Valid reports whether the payload is a real item and not an upstream
// error body that decoded cleanly.
func (i *Item) Valid() bool {
	return i != nil && i.Error == "" && i.ID != ""
}

// CatalogProduct is the aggregated catalog schema. A catalog product has no
// single seller price; the buy box winner and the price aggregator are the
// closest it offers.
type CatalogProduct struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Permalink  string `json:"permalink"`
	PictureURL string `json:"picture_url"`
	Pictures   []struct {
		URL string `json:"url"`
	} `json:"pictures"`
	BuyBoxWinner *struct {
		Price float64 `json:"price"`
	} `json:"buy_box_winner"`
	PriceAggregator *struct {
		MinPrice     float64 `json:"min_price"`
		AveragePrice float64 `json:"average_price"`
	} `json:"price_aggregator"`
	SoldQuantity *int   `json:"sold_quantity"`
	Error        string `json:"error,omitempty"`
}

// Valid reports whether the payload is a real catalog product.
func (p *CatalogProduct) Valid() bool {
	return p != nil && p.Error == "" && p.ID != ""
}

// Category is the category lookup payload.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchEntry is one result of a site search. CatalogListing marks entries
// that point at a catalog aggregate rather than a direct publication.
type SearchEntry struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Price          float64 `json:"price"`
	Thumbnail      string  `json:"thumbnail"`
	Permalink      string  `json:"permalink"`
	CategoryID     string  `json:"category_id"`
	SoldQuantity   *int    `json:"sold_quantity"`
	CatalogListing bool    `json:"catalog_listing"`
}

// SearchResult is the site search envelope.
type SearchResult struct {
	Results []SearchEntry `json:"results"`
	Paging  Paging        `json:"paging"`
}

// Paging is the common pagination envelope.
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// HighlightEntry is one entry of the official category leaderboard. The
// upstream has shipped both flat ids and ids nested under "content".
type HighlightEntry struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content *struct {
		ID string `json:"id"`
	} `json:"content"`
}

// EntryID returns the id regardless of which shape the upstream used.
func (h HighlightEntry) EntryID() string {
	if h.ID != "" {
		return h.ID
	}
	if h.Content != nil {
		return h.Content.ID
	}
	return ""
}

// Highlights is the category leaderboard envelope.
type Highlights struct {
	Content []HighlightEntry `json:"content"`
}

// ItemIDSearch is the envelope of a seller's own item id search.
type ItemIDSearch struct {
	Results []string `json:"results"`
	Paging  Paging   `json:"paging"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	Item struct {
		ID         string `json:"id"`
		CategoryID string `json:"category_id"`
	} `json:"item"`
	Quantity int `json:"quantity"`
}

// Order is one paid order as returned by the order search.
type Order struct {
	ID         int64       `json:"id"`
	OrderItems []OrderItem `json:"order_items"`
}

// OrderSearch is the order search envelope.
type OrderSearch struct {
	Results []Order `json:"results"`
	Paging  Paging  `json:"paging"`
}

// MultiGetEntry is one element of a multiget response; Code carries the
// per-id HTTP status.
type MultiGetEntry struct {
	Code int  `json:"code"`
	Body Item `json:"body"`
}

// ToListing converts an upstream item into the domain listing shape.
func (i *Item) ToListing() model.Listing {
	return model.Listing{
		ItemID:            i.ID,
		Title:             i.Title,
		Price:             i.Price,
		Thumbnail:         i.Thumbnail,
		Permalink:         i.Permalink,
		CategoryID:        i.CategoryID,
		AvailableQuantity: i.AvailableQuantity,
		Variations:        i.Variations,
	}
}

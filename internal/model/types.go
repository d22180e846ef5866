package model

import "time"

// Account holds one seller's MercadoLibre credentials. Owned by the
// credential store; only the token manager writes it back, and only the
// token pair.
type Account struct {
	UserID       string `json:"user_id"`
	Alias        string `json:"alias"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Listing is one seller publication, fetched per scan and never persisted.
type Listing struct {
	ItemID            string      `json:"id"`
	Title             string      `json:"title"`
	Price             float64     `json:"price"`
	Thumbnail         string      `json:"thumbnail"`
	Permalink         string      `json:"permalink"`
	CategoryID        string      `json:"category_id"`
	AvailableQuantity int         `json:"available_quantity"`
	Variations        []Variation `json:"variations"`
}

// Variation is one sellable combination within a listing (size, color, ...).
type Variation struct {
	VariationID          int64                  `json:"id"`
	AttributeCombination []AttributeCombination `json:"attribute_combinations"`
	AvailableQuantity    int                    `json:"available_quantity"`
}

// AttributeCombination names one axis of a variation.
type AttributeCombination struct {
	Name      string `json:"name"`
	ValueName string `json:"value_name"`
}

// StockFlag marks a listing that is fully out of stock.
type StockFlag struct {
	Account   string `json:"account"`
	ItemID    string `json:"item_id"`
	Title     string `json:"title"`
	Permalink string `json:"permalink"`
}

// VariantFlag marks a single variation that is out of stock while the
// listing itself may still have sellable combinations.
type VariantFlag struct {
	Account       string `json:"account"`
	ItemID        string `json:"item_id"`
	VariationID   int64  `json:"variation_id"`
	VariationName string `json:"variation_name"`
	Title         string `json:"title"`
	Permalink     string `json:"permalink"`
}

// Per-account scan outcomes.
const (
	StatusAuthError = "error_auth"
	StatusOK        = "ok"
	StatusProcessed = "procesado"
)

// AccountStatus is one entry of the per-account scan log.
type AccountStatus struct {
	Alias   string `json:"alias"`
	Status  string `json:"status"`
	Items   int    `json:"items"`
	Message string `json:"message,omitempty"`
}

// StockReport is the aggregate of one scan across every account. Exactly one
// live report exists at a time; each scan overwrites the previous snapshot.
type StockReport struct {
	ScanID            string          `json:"scan_id"`
	Timestamp         time.Time       `json:"last_update"`
	SinStockTotal     []StockFlag     `json:"sin_stock_total"`
	VariantesSinStock []VariantFlag   `json:"variantes_sin_stock"`
	PerAccountLog     []AccountStatus `json:"log_cuentas"`
}

// SchemaKind discriminates the two incompatible upstream shapes a rival
// lookup can produce.
type SchemaKind string

const (
	SchemaItem           SchemaKind = "item"
	SchemaCatalogProduct SchemaKind = "catalog_product"
)

// Provenance tags whether a figure came from the upstream or was synthesized.
type Provenance string

const (
	ProvenanceReal      Provenance = "real"
	ProvenanceHeuristic Provenance = "heuristic"
)

// NormalizedListing is the unified shape both upstream schemas map into.
type NormalizedListing struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Thumbnail    string     `json:"thumbnail"`
	Price        float64    `json:"price"`
	Permalink    string     `json:"permalink"`
	SoldQuantity int        `json:"sold_quantity"`
	Provenance   Provenance `json:"provenance"`
}

// ComparisonResult pairs the caller's listing against the resolved rival.
type ComparisonResult struct {
	Me       NormalizedListing `json:"me"`
	Rival    NormalizedListing `json:"rival"`
	Category string            `json:"category"`
}

// Category is a resolved category id/name pair.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MonthlyStats summarizes own sales for a category month-over-year.
type MonthlyStats struct {
	YearCurrent  int     `json:"year_current"`
	YearPrev     int     `json:"year_prev"`
	SalesCurrent int     `json:"ventas_actuales"`
	SalesPrev    int     `json:"ventas_anterior"`
	GrowthPct    float64 `json:"porcentaje_crecimiento"`
	MarketVolume int     `json:"mercado_volumen"`
}

// CategoryReport is the compute-report payload: market top list plus own
// sales stats.
type CategoryReport struct {
	Top10 []NormalizedListing `json:"top10"`
	Stats MonthlyStats        `json:"stats"`
}

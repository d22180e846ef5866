package normalize

import (
	"strings"
	"unicode"

	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/model"
)

// Candidate is the tagged union of the two upstream schemas. Exactly one of
// Item and Product is set, matching Kind; each variant exposes only the
// fields its schema guarantees.
type Candidate struct {
	Kind    model.SchemaKind
	Item    *meli.Item
	Product *meli.CatalogProduct
}

// FromItem wraps a direct listing.
func FromItem(item *meli.Item) Candidate {
	return Candidate{Kind: model.SchemaItem, Item: item}
}

// FromProduct wraps a catalog aggregate.
func FromProduct(product *meli.CatalogProduct) Candidate {
	return Candidate{Kind: model.SchemaCatalogProduct, Product: product}
}

// Normalize maps either schema into the unified listing shape. The per-field
// precedence encodes trust ordering and must not be reordered:
//
//	title:     item.title, else product.name
//	thumbnail: item.thumbnail, else item.secure_thumbnail,
//	           else first product picture, else product.picture_url
//	price:     item.price, else buy box winner, else aggregator min,
//	           else aggregator average, else 0
//	permalink: source permalink, else canonical URL from id and title
//	sold:      source value, else 0
//
// Provenance is real only when the source actually carried a sales figure;
// an empty provenance marks "upstream said nothing", which is what gates the
// heuristic estimator downstream.
func Normalize(c Candidate) model.NormalizedListing {
	var out model.NormalizedListing

	switch c.Kind {
	case model.SchemaItem:
		if c.Item == nil {
			return out
		}
		out.ID = c.Item.ID
		out.Title = c.Item.Title
		out.Thumbnail = firstNonEmpty(c.Item.Thumbnail, c.Item.SecureThumbnail)
		out.Price = c.Item.Price
		out.Permalink = c.Item.Permalink
		if c.Item.SoldQuantity != nil {
			out.SoldQuantity = *c.Item.SoldQuantity
			out.Provenance = model.ProvenanceReal
		}

	case model.SchemaCatalogProduct:
		if c.Product == nil {
			return out
		}
		out.ID = c.Product.ID
		out.Title = c.Product.Name
		out.Thumbnail = productThumbnail(c.Product)
		out.Price = productPrice(c.Product)
		out.Permalink = c.Product.Permalink
		if c.Product.SoldQuantity != nil {
			out.SoldQuantity = *c.Product.SoldQuantity
			out.Provenance = model.ProvenanceReal
		}
	}

	if out.Permalink == "" {
		out.Permalink = CanonicalURL(out.ID, out.Title)
	}
	return out
}

// FromSearchEntry normalizes a search result row directly; rows carry the
// direct-listing subset of fields.
func FromSearchEntry(e meli.SearchEntry) model.NormalizedListing {
	out := model.NormalizedListing{
		ID:        e.ID,
		Title:     e.Title,
		Thumbnail: e.Thumbnail,
		Price:     e.Price,
		Permalink: e.Permalink,
	}
	if e.SoldQuantity != nil {
		out.SoldQuantity = *e.SoldQuantity
		out.Provenance = model.ProvenanceReal
	}
	if out.Permalink == "" {
		out.Permalink = CanonicalURL(out.ID, out.Title)
	}
	return out
}

// productThumbnail picks the first picture, falling back to the legacy
// single-picture field.
func productThumbnail(p *meli.CatalogProduct) string {
	for _, pic := range p.Pictures {
		if pic.URL != "" {
			return pic.URL
		}
	}
	return p.PictureURL
}

// productPrice walks the catalog price sources in decreasing trust: the buy
// box winner is an actual offer, the aggregator figures are derived.
func productPrice(p *meli.CatalogProduct) float64 {
	if p.BuyBoxWinner != nil && p.BuyBoxWinner.Price > 0 {
		return p.BuyBoxWinner.Price
	}
	if p.PriceAggregator != nil {
		if p.PriceAggregator.MinPrice > 0 {
			return p.PriceAggregator.MinPrice
		}
		if p.PriceAggregator.AveragePrice > 0 {
			return p.PriceAggregator.AveragePrice
		}
	}
	return 0
}

// CanonicalURL synthesizes a stable public URL for sources that omit the
// permalink.
func CanonicalURL(id, title string) string {
	slug := slugify(title)
	if slug == "" {
		return "https://www.mercadolibre.com.ar/p/" + id
	}
	return "https://www.mercadolibre.com.ar/" + slug + "/p/" + id
}

// slugify lowercases and dashes a title the way listado URLs do.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package meli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmestre/meliwatch/internal/ratelimit"
)

// Client is a fail-soft wrapper around the MercadoLibre API. Every method
// returns a decoded payload or an absence value (nil pointer, nil slice);
// non-success statuses, timeouts and malformed bodies never surface as
// errors. Downstream components branch on absence as a routine case.
//
// Tokens are passed explicitly per call; the client holds no account state.
type Client struct {
	baseURL       string
	siteID        string
	httpClient    *http.Client
	limiter       *rate.Limiter
	publicLimiter *ratelimit.Limiter
}

// Config holds client construction settings.
type Config struct {
	BaseURL        string
	SiteID         string
	RequestTimeout time.Duration
	RequestsPerSec float64
	PublicLimiter  *ratelimit.Limiter
}

// DefaultConfig returns production settings: the real API, MLA site, 10s
// timeout degrading to absence on expiry.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.mercadolibre.com",
		SiteID:         "MLA",
		RequestTimeout: 10 * time.Second,
		RequestsPerSec: 5,
	}
}

// NewClient creates a marketplace client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mercadolibre.com"
	}
	if cfg.SiteID == "" {
		cfg.SiteID = "MLA"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 5
	}
	publicLimiter := cfg.PublicLimiter
	if publicLimiter == nil {
		publicLimiter = ratelimit.NewPublicSearchLimiter()
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		siteID:        cfg.SiteID,
		httpClient:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), int(cfg.RequestsPerSec)+1),
		publicLimiter: publicLimiter,
	}
}

// SiteID returns the configured marketplace site.
func (c *Client) SiteID() string {
	return c.siteID
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetUser runs the session-liveness probe. A nil result means the token was
// rejected or the upstream is unreachable.
func (c *Client) GetUser(ctx context.Context, token string) *User {
	var u User
	if !c.getJSON(ctx, "/users/me", token, &u) {
		return nil
	}
	if u.ID == 0 {
		return nil
	}
	return &u
}

// SearchActiveItemIDs pages through a seller's active publications and
// returns every item id. A partial page failure truncates rather than fails.
func (c *Client) SearchActiveItemIDs(ctx context.Context, token, userID string) []string {
	var ids []string
	offset := 0
	for {
		path := fmt.Sprintf("/users/%s/items/search?status=active&limit=50&offset=%d", userID, offset)
		var page ItemIDSearch
		if !c.getJSON(ctx, path, token, &page) {
			return ids
		}
		ids = append(ids, page.Results...)
		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= page.Paging.Total {
			return ids
		}
	}
}

// GetItem fetches one publication.
func (c *Client) GetItem(ctx context.Context, token, itemID string) *Item {
	var item Item
	if !c.getJSON(ctx, "/items/"+url.PathEscape(itemID), token, &item) {
		return nil
	}
	if !item.Valid() {
		return nil
	}
	return &item
}

// MultiGetItems fetches up to 20 publications in one call, with an optional
// attributes filter. Entries whose per-id code is not 2xx are dropped.
func (c *Client) MultiGetItems(ctx context.Context, token string, itemIDs []string, attributes []string) []Item {
	if len(itemIDs) == 0 {
		return nil
	}
	path := "/items?ids=" + url.QueryEscape(strings.Join(itemIDs, ","))
	if len(attributes) > 0 {
		path += "&attributes=" + url.QueryEscape(strings.Join(attributes, ","))
	}

	var entries []MultiGetEntry
	if !c.getJSON(ctx, path, token, &entries) {
		return nil
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.Code/100 != 2 && e.Code != 0 {
			continue
		}
		if e.Body.Valid() {
			items = append(items, e.Body)
		}
	}
	return items
}

// GetCategory resolves a category id to its metadata.
func (c *Client) GetCategory(ctx context.Context, token, categoryID string) *Category {
	var cat Category
	if !c.getJSON(ctx, "/categories/"+url.PathEscape(categoryID), token, &cat) {
		return nil
	}
	if cat.ID == "" {
		return nil
	}
	return &cat
}

// CategoryHighlights fetches the official best-seller leaderboard for a
// category. Needs an authenticated token; scope denials degrade to absence.
func (c *Client) CategoryHighlights(ctx context.Context, token, categoryID string) []HighlightEntry {
	path := fmt.Sprintf("/highlights/%s/category/%s", c.siteID, url.PathEscape(categoryID))
	var h Highlights
	if !c.getJSON(ctx, path, token, &h) {
		return nil
	}
	return h.Content
}

// SearchSite runs an authenticated site-wide search.
func (c *Client) SearchSite(ctx context.Context, token, query string, limit int) *SearchResult {
	path := fmt.Sprintf("/sites/%s/search?q=%s&limit=%d", c.siteID, url.QueryEscape(query), limit)
	var res SearchResult
	if !c.getJSON(ctx, path, token, &res) {
		return nil
	}
	return &res
}

// SearchSitePublic runs the same search without credentials, through the
// browser-identity path. Used when the authenticated surface denies scope.
func (c *Client) SearchSitePublic(ctx context.Context, query string, limit int) *SearchResult {
	u := fmt.Sprintf("%s/sites/%s/search?q=%s&limit=%d", c.baseURL, c.siteID, url.QueryEscape(query), limit)
	var res SearchResult
	if !c.publicGet(ctx, u, &res) {
		return nil
	}
	return &res
}

// SearchSeller lists a seller's publications through the public search.
func (c *Client) SearchSeller(ctx context.Context, sellerID string) *SearchResult {
	u := fmt.Sprintf("%s/sites/%s/search?seller_id=%s", c.baseURL, c.siteID, url.QueryEscape(sellerID))
	var res SearchResult
	if !c.publicGet(ctx, u, &res) {
		return nil
	}
	return &res
}

// GetItemPublic fetches one publication without credentials.
func (c *Client) GetItemPublic(ctx context.Context, itemID string) *Item {
	var item Item
	if !c.publicGet(ctx, c.baseURL+"/items/"+url.PathEscape(itemID), &item) {
		return nil
	}
	if !item.Valid() {
		return nil
	}
	return &item
}

// GetProduct fetches a catalog aggregate.
func (c *Client) GetProduct(ctx context.Context, token, productID string) *CatalogProduct {
	var p CatalogProduct
	if !c.getJSON(ctx, "/products/"+url.PathEscape(productID), token, &p) {
		return nil
	}
	if !p.Valid() {
		return nil
	}
	return &p
}

// SearchOrders pages a seller's paid orders, optionally inside a date
// window. Empty bounds search the whole history.
func (c *Client) SearchOrders(ctx context.Context, token, sellerID, from, to string, limit, offset int) *OrderSearch {
	path := fmt.Sprintf("/orders/search?seller=%s&order.status=paid", url.QueryEscape(sellerID))
	if from != "" {
		path += "&order.date_created.from=" + url.QueryEscape(from)
	}
	if to != "" {
		path += "&order.date_created.to=" + url.QueryEscape(to)
	}
	path += fmt.Sprintf("&limit=%d&offset=%d", limit, offset)

	var res OrderSearch
	if !c.getJSON(ctx, path, token, &res) {
		return nil
	}
	return &res
}

// RefreshToken exchanges a refresh token for a new pair. This is the one
// client call that returns an error: the token manager needs to distinguish
// a rejected grant from transient unavailability, and both end the refresh.
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var pair TokenPair
	if err := decodeJSON(resp.Body, &pair); err != nil {
		return nil, fmt.Errorf("parsing refresh response: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}
	return &pair, nil
}

// TokenPair is the OAuth refresh exchange payload. The upstream rotates the
// refresh token on every exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// getJSON issues an authenticated GET and decodes the body into `into`.
// Returns false on any failure: transport error, non-2xx, malformed body.
func (c *Client) getJSON(ctx context.Context, path, token string, into interface{}) bool {
	if err := c.limiter.Wait(ctx); err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		log.Printf("meli: %s returned %d", path, resp.StatusCode)
		return false
	}

	if err := decodeJSON(resp.Body, into); err != nil {
		log.Printf("meli: malformed payload from %s: %v", path, err)
		return false
	}
	return true
}

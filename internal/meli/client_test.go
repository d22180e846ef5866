package meli

import (
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dmestre/meliwatch/internal/model"
	"github.com/dmestre/meliwatch/internal/ratelimit"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:        srv.URL,
		SiteID:         "MLA",
		RequestsPerSec: 1000,
		PublicLimiter:  ratelimit.NewLimiter(1000, time.Millisecond),
	})
}

func TestNewClient_TrimsBaseURL(t *testing.T) {
	c := NewClient(Config{BaseURL: "https://api.mercadolibre.com/"})

	if c.BaseURL() != "https://api.mercadolibre.com" {
		t.Errorf("Expected trailing slash trimmed, got %q", c.BaseURL())
	}
	if c.SiteID() != "MLA" {
		t.Errorf("Expected default site, got %q", c.SiteID())
	}
}

func TestItemToListing(t *testing.T) {
	item := Item{
		ID:                "MLA100",
		Title:             "Mate Imperial",
		Price:             9000,
		CategoryID:        "MLA1055",
		Thumbnail:         "https://http2.mlstatic.com/D_1.jpg",
		Permalink:         "https://articulo.mercadolibre.com.ar/MLA100",
		AvailableQuantity: 4,
		Variations:        []model.Variation{{VariationID: 7, AvailableQuantity: 0}},
	}

	listing := item.ToListing()
	if listing.ItemID != "MLA100" || listing.Title != "Mate Imperial" || listing.Price != 9000 {
		t.Errorf("Unexpected listing %+v", listing)
	}
	if listing.CategoryID != "MLA1055" || listing.AvailableQuantity != 4 {
		t.Errorf("Category or quantity lost in conversion: %+v", listing)
	}
	if len(listing.Variations) != 1 || listing.Variations[0].VariationID != 7 {
		t.Errorf("Variations lost in conversion: %+v", listing.Variations)
	}
}

func TestGetUser_SendsBearerToken(t *testing.T) {
	var gotAuth string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"id": 322199723, "nickname": "VENDEDOR"}`)
	}))

	u := c.GetUser(context.Background(), "APP_USR-token")
	if u == nil || u.ID != 322199723 {
		t.Fatalf("Expected user payload, got %+v", u)
	}
	if gotAuth != "Bearer APP_USR-token" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}
}

func TestGetUser_RejectedTokenIsAbsence(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "invalid_token"}`)
	}))

	if u := c.GetUser(context.Background(), "stale"); u != nil {
		t.Errorf("Rejected token should read as absence, got %+v", u)
	}
}

func TestGetItem_NotFoundAndMalformedAreAbsence(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"id": "MLA1", "title":`)
		}},
		{"error body with 200", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"error": "resource not found"}`)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, tc.handler)
			if item := c.GetItem(context.Background(), "tok", "MLA1"); item != nil {
				t.Errorf("Expected absence, got %+v", item)
			}
		})
	}
}

func TestSearchActiveItemIDs_PagesUntilExhausted(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		switch offset {
		case 0:
			ids := make([]string, 50)
			for i := range ids {
				ids[i] = fmt.Sprintf(`"MLA%d"`, i)
			}
			fmt.Fprintf(w, `{"results": [%s], "paging": {"total": 60}}`, strings.Join(ids, ","))
		case 50:
			fmt.Fprint(w, `{"results": ["MLA50","MLA51","MLA52","MLA53","MLA54","MLA55","MLA56","MLA57","MLA58","MLA59"], "paging": {"total": 60}}`)
		default:
			t.Errorf("Unexpected offset %d", offset)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))

	ids := c.SearchActiveItemIDs(context.Background(), "tok", "322199723")
	if len(ids) != 60 {
		t.Fatalf("Expected 60 ids across two pages, got %d", len(ids))
	}
}

func TestSearchActiveItemIDs_TruncatesOnPageFailure(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ids := make([]string, 50)
		for i := range ids {
			ids[i] = fmt.Sprintf(`"MLA%d"`, i)
		}
		fmt.Fprintf(w, `{"results": [%s], "paging": {"total": 120}}`, strings.Join(ids, ","))
	}))

	ids := c.SearchActiveItemIDs(context.Background(), "tok", "322199723")
	if len(ids) != 50 {
		t.Errorf("A failed later page should truncate, not fail; got %d ids", len(ids))
	}
}

func TestMultiGetItems_DropsFailedEntries(t *testing.T) {
	var gotIDs string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		fmt.Fprint(w, `[
			{"code": 200, "body": {"id": "MLA1", "title": "Uno", "available_quantity": 3}},
			{"code": 404, "body": {"error": "not found"}},
			{"code": 200, "body": {"id": "MLA3", "title": "Tres", "available_quantity": 0}}
		]`)
	}))

	items := c.MultiGetItems(context.Background(), "tok", []string{"MLA1", "MLA2", "MLA3"}, []string{"id", "available_quantity"})
	if len(items) != 2 {
		t.Fatalf("Expected the 404 entry dropped, got %d items", len(items))
	}
	if items[0].ID != "MLA1" || items[1].ID != "MLA3" {
		t.Errorf("Unexpected surviving items %+v", items)
	}
	if gotIDs != "MLA1,MLA2,MLA3" {
		t.Errorf("Expected comma-joined ids, got %q", gotIDs)
	}
}

func TestMultiGetItems_EmptyInput(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("No request should be issued for an empty id list")
		w.WriteHeader(http.StatusBadRequest)
	}))

	if items := c.MultiGetItems(context.Background(), "tok", nil, nil); items != nil {
		t.Errorf("Expected nil, got %+v", items)
	}
}

func TestSearchOrders_WindowParamsOptional(t *testing.T) {
	var gotQuery string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"results": [], "paging": {"total": 0}}`)
	}))

	c.SearchOrders(context.Background(), "tok", "111", "", "", 50, 0)
	if gotQuery == "" || strings.Contains(gotQuery, "date_created") {
		t.Errorf("Unbounded search must omit window params, got %q", gotQuery)
	}

	c.SearchOrders(context.Background(), "tok", "111", "2024-07-01T00:00:00.000-03:00", "2024-07-31T23:59:59.999-03:00", 50, 0)
	if !strings.Contains(gotQuery, "date_created.from") || !strings.Contains(gotQuery, "date_created.to") {
		t.Errorf("Bounded search must carry both window params, got %q", gotQuery)
	}
}

func TestSearchSitePublic_BrowserIdentityAndGzip(t *testing.T) {
	var gotUA string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, `{"results": [{"id": "MLA1", "title": "Mate", "price": 5000}], "paging": {"total": 1}}`)
		gz.Close()
	}))

	res := c.SearchSitePublic(context.Background(), "mate", 5)
	if res == nil || len(res.Results) != 1 || res.Results[0].ID != "MLA1" {
		t.Fatalf("Expected decoded gzip payload, got %+v", res)
	}
	if gotUA != publicUserAgent {
		t.Errorf("Public fetch must carry the browser identity, got %q", gotUA)
	}
}

func TestSearchSitePublic_DeflateEncodings(t *testing.T) {
	const payload = `{"results": [{"id": "MLA1", "title": "Mate", "price": 5000}], "paging": {"total": 1}}`

	cases := []struct {
		name     string
		compress func(w io.Writer) io.WriteCloser
	}{
		{"zlib-wrapped", func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) }},
		{"raw flate", func(w io.Writer) io.WriteCloser {
			fw, _ := flate.NewWriter(w, flate.DefaultCompression)
			return fw
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Encoding", "deflate")
				cw := tc.compress(w)
				fmt.Fprint(cw, payload)
				cw.Close()
			}))

			res := c.SearchSitePublic(context.Background(), "mate", 5)
			if res == nil || len(res.Results) != 1 || res.Results[0].ID != "MLA1" {
				t.Fatalf("Expected decoded deflate payload, got %+v", res)
			}
		})
	}
}

func TestSearchSitePublic_HTMLBlockPageIsAbsence(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Acceso denegado</title></head><body></body></html>`)
	}))

	if res := c.SearchSitePublic(context.Background(), "mate", 5); res != nil {
		t.Errorf("An HTML interstitial should read as absence, got %+v", res)
	}
}

func TestRefreshToken_Exchange(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "TG-old" {
			t.Errorf("Unexpected form %v", r.Form)
		}
		fmt.Fprint(w, `{"access_token": "APP_USR-new", "refresh_token": "TG-new", "expires_in": 21600, "token_type": "Bearer"}`)
	}))

	pair, err := c.RefreshToken(context.Background(), "client", "secret", "TG-old")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if pair.AccessToken != "APP_USR-new" || pair.RefreshToken != "TG-new" {
		t.Errorf("Unexpected pair %+v", pair)
	}
}

func TestRefreshToken_RejectedGrant(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant"}`)
	}))

	if _, err := c.RefreshToken(context.Background(), "client", "secret", "TG-old"); err == nil {
		t.Fatal("Expected an error for a rejected grant")
	}
}

func TestRefreshToken_MissingAccessToken(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"token_type": "Bearer"}`)
	}))

	if _, err := c.RefreshToken(context.Background(), "client", "secret", "TG-old"); err == nil {
		t.Fatal("Expected an error for an empty access token")
	}
}

func TestCategoryHighlights_PathIncludesSite(t *testing.T) {
	var gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"content": [{"id": "MLA1", "position": 1}]}`)
	}))

	entries := c.CategoryHighlights(context.Background(), "tok", "MLA1055")
	if len(entries) != 1 || entries[0].EntryID() != "MLA1" {
		t.Fatalf("Expected one highlight, got %+v", entries)
	}
	if gotPath != "/highlights/MLA/category/MLA1055" {
		t.Errorf("Unexpected path %s", gotPath)
	}
}

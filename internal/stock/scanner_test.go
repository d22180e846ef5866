package stock

import (
	"context"
	"strings"
	"testing"

	"github.com/dmestre/meliwatch/internal/auth"
	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/model"
	"github.com/dmestre/meliwatch/internal/store"
)

type mockMarket struct {
	itemsByUser map[string][]string
	details     map[string]meli.Item
}

func (m *mockMarket) SearchActiveItemIDs(_ context.Context, _, userID string) []string {
	return m.itemsByUser[userID]
}

func (m *mockMarket) MultiGetItems(_ context.Context, _ string, itemIDs, _ []string) []meli.Item {
	var out []meli.Item
	for _, id := range itemIDs {
		if item, ok := m.details[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

func (m *mockMarket) GetItem(_ context.Context, _, itemID string) *meli.Item {
	if item, ok := m.details[itemID]; ok {
		return &item
	}
	return nil
}

type mockTokens struct {
	failFor map[string]bool
}

func (m *mockTokens) ValidToken(_ context.Context, acc model.Account) (string, error) {
	if m.failFor[acc.UserID] {
		return "", auth.ErrAuthFailure
	}
	return "token-" + acc.UserID, nil
}

func TestClassify_VariationsAllInStock(t *testing.T) {
	item := meli.Item{
		ID:    "MLA100",
		Title: "Zapatillas",
		Variations: []model.Variation{
			{VariationID: 1, AvailableQuantity: 3},
			{VariationID: 2, AvailableQuantity: 1},
		},
	}

	flags, variants := classify("Tienda", item.ToListing())
	if len(flags) != 0 || len(variants) != 0 {
		t.Errorf("Expected no flags, got %d listing and %d variant flags", len(flags), len(variants))
	}
}

func TestClassify_SingleVariationOutOfStock(t *testing.T) {
	item := meli.Item{
		ID:    "MLA100",
		Title: "Zapatillas",
		Variations: []model.Variation{
			{VariationID: 1, AvailableQuantity: 3},
			{
				VariationID:       2,
				AvailableQuantity: 0,
				AttributeCombination: []model.AttributeCombination{
					{Name: "Color", ValueName: "Rojo"},
					{Name: "Talle", ValueName: "M"},
				},
			},
		},
	}

	flags, variants := classify("Tienda", item.ToListing())
	if len(flags) != 0 {
		t.Errorf("Variation stockout must not flag the listing, got %d flags", len(flags))
	}
	if len(variants) != 1 {
		t.Fatalf("Expected exactly 1 variant flag, got %d", len(variants))
	}

	v := variants[0]
	if v.VariationID != 2 {
		t.Errorf("Expected variation 2, got %d", v.VariationID)
	}
	if v.VariationName != "Color: Rojo - Talle: M" {
		t.Errorf("Unexpected variation name %q", v.VariationName)
	}
	if !strings.Contains(v.Permalink, "MLA100/modificar") {
		t.Errorf("Expected synthesized edit permalink, got %q", v.Permalink)
	}
}

func TestClassify_VariationWithoutAttributes(t *testing.T) {
	item := meli.Item{
		ID:         "MLA100",
		Variations: []model.Variation{{VariationID: 77, AvailableQuantity: 0}},
	}

	_, variants := classify("Tienda", item.ToListing())
	if len(variants) != 1 || variants[0].VariationName != "ID: 77" {
		t.Fatalf("Expected id fallback name, got %+v", variants)
	}
}

func TestClassify_ListingWithoutVariations(t *testing.T) {
	item := meli.Item{ID: "MLA200", Title: "Mate", AvailableQuantity: 0}

	flags, variants := classify("Tienda", item.ToListing())
	if len(flags) != 1 {
		t.Fatalf("Expected 1 listing flag, got %d", len(flags))
	}
	if len(variants) != 0 {
		t.Errorf("Expected no variant flags, got %d", len(variants))
	}
	if flags[0].Permalink != "https://www.mercadolibre.com.ar/publicaciones/MLA200/modificar" {
		t.Errorf("Unexpected permalink %q", flags[0].Permalink)
	}
}

func TestScan_PartialAuthFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.SaveAccount(ctx, model.Account{UserID: "1", Alias: "Cuenta A"})
	_ = st.SaveAccount(ctx, model.Account{UserID: "2", Alias: "Cuenta B"})

	soldTwo := 2
	market := &mockMarket{
		itemsByUser: map[string][]string{"1": {"MLA1", "MLA2"}},
		details: map[string]meli.Item{
			"MLA1": {ID: "MLA1", Title: "Termo", AvailableQuantity: 0},
			"MLA2": {ID: "MLA2", Title: "Bombilla", AvailableQuantity: 5, SoldQuantity: &soldTwo},
		},
	}
	tokens := &mockTokens{failFor: map[string]bool{"2": true}}

	scanner := NewScanner(st, st, market, tokens, nil)
	report, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(report.SinStockTotal) != 1 {
		t.Fatalf("Expected exactly 1 stockout, got %d", len(report.SinStockTotal))
	}
	if report.SinStockTotal[0].Account != "Cuenta A" || report.SinStockTotal[0].ItemID != "MLA1" {
		t.Errorf("Stockout misattributed: %+v", report.SinStockTotal[0])
	}

	if len(report.PerAccountLog) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(report.PerAccountLog))
	}
	var statusB string
	for _, entry := range report.PerAccountLog {
		if entry.Alias == "Cuenta B" {
			statusB = entry.Status
		}
	}
	if statusB != model.StatusAuthError {
		t.Errorf("Expected error_auth for Cuenta B, got %q", statusB)
	}

	// The report must also be the persisted snapshot.
	saved, err := st.LoadStockReport(ctx)
	if err != nil {
		t.Fatalf("LoadStockReport failed: %v", err)
	}
	if saved.ScanID != report.ScanID {
		t.Error("Persisted snapshot does not match returned report")
	}
}

func TestScan_SnapshotOverwritten(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.SaveAccount(ctx, model.Account{UserID: "1", Alias: "Cuenta A"})

	market := &mockMarket{itemsByUser: map[string][]string{}}
	scanner := NewScanner(st, st, market, &mockTokens{}, nil)

	first, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("First scan failed: %v", err)
	}
	second, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Second scan failed: %v", err)
	}
	if first.ScanID == second.ScanID {
		t.Error("Scans should get distinct ids")
	}

	saved, _ := st.LoadStockReport(ctx)
	if saved.ScanID != second.ScanID {
		t.Error("Store should hold only the latest snapshot")
	}
}

func TestScan_NoAccounts(t *testing.T) {
	st := store.NewMemoryStore()
	scanner := NewScanner(st, st, &mockMarket{}, &mockTokens{}, nil)

	if _, err := scanner.Scan(context.Background()); err != ErrNoAccounts {
		t.Errorf("Expected ErrNoAccounts, got %v", err)
	}
}

func TestScan_EmptyAccountStatusOK(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.SaveAccount(ctx, model.Account{UserID: "1", Alias: "Cuenta A"})

	scanner := NewScanner(st, st, &mockMarket{itemsByUser: map[string][]string{}}, &mockTokens{}, nil)
	report, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if report.PerAccountLog[0].Status != model.StatusOK || report.PerAccountLog[0].Items != 0 {
		t.Errorf("Expected ok/0 for empty account, got %+v", report.PerAccountLog[0])
	}
}

package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/dmestre/meliwatch/internal/model"
)

// TestDataFactory provides methods for generating dynamic test data
type TestDataFactory struct {
	rand *rand.Rand
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// GenerateTestToken generates a random test token
func (f *TestDataFactory) GenerateTestToken() string {
	return fmt.Sprintf("test-token-%d", f.rand.Int63())
}

// GenerateItemID generates a random MLA item id
func (f *TestDataFactory) GenerateItemID() string {
	return fmt.Sprintf("MLA%09d", f.rand.Intn(1000000000))
}

// GenerateUserID generates a random seller user id
func (f *TestDataFactory) GenerateUserID() string {
	return fmt.Sprintf("%09d", f.rand.Intn(1000000000))
}

// GenerateTestPrice generates a random listing price in pesos
func (f *TestDataFactory) GenerateTestPrice() float64 {
	return float64(f.rand.Intn(300000) + 500)
}

// GenerateAccount generates a fully populated test account
func (f *TestDataFactory) GenerateAccount(alias string) model.Account {
	return model.Account{
		UserID:       f.GenerateUserID(),
		Alias:        alias,
		AccessToken:  f.GenerateTestToken(),
		RefreshToken: fmt.Sprintf("test-refresh-%d", f.rand.Int63()),
		ClientID:     fmt.Sprintf("%d", f.rand.Int63()),
		ClientSecret: fmt.Sprintf("secret-%d", f.rand.Int63()),
	}
}

// GenerateListing generates a test listing with the given stock level
func (f *TestDataFactory) GenerateListing(quantity int) model.Listing {
	id := f.GenerateItemID()
	return model.Listing{
		ItemID:            id,
		Title:             f.GenerateListingTitle(),
		Price:             f.GenerateTestPrice(),
		Permalink:         fmt.Sprintf("https://articulo.mercadolibre.com.ar/%s", id),
		CategoryID:        f.GenerateCategoryID(),
		AvailableQuantity: quantity,
	}
}

// GenerateListingTitle generates a random test listing title
func (f *TestDataFactory) GenerateListingTitle() string {
	titles := []string{"Mate Imperial Test", "Termo Acero Test", "Bombilla Pico Test", "Yerbera Cuero Test", "Pava Electrica Test"}
	return titles[f.rand.Intn(len(titles))]
}

// GenerateCategoryID generates a random MLA category id
func (f *TestDataFactory) GenerateCategoryID() string {
	return fmt.Sprintf("MLA%04d", f.rand.Intn(10000))
}

// GenerateStockReport generates a report with the given number of stockouts
func (f *TestDataFactory) GenerateStockReport(stockouts int) *model.StockReport {
	report := &model.StockReport{
		ScanID:    fmt.Sprintf("scan-%d", f.rand.Int63()),
		Timestamp: time.Now().UTC(),
	}
	for i := 0; i < stockouts; i++ {
		listing := f.GenerateListing(0)
		report.SinStockTotal = append(report.SinStockTotal, model.StockFlag{
			Account:   "Cuenta Test",
			ItemID:    listing.ItemID,
			Title:     listing.Title,
			Permalink: listing.Permalink,
		})
	}
	report.PerAccountLog = []model.AccountStatus{
		{Alias: "Cuenta Test", Status: model.StatusProcessed, Items: stockouts},
	}
	return report
}

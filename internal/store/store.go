package store

import (
	"context"
	"errors"

	"github.com/dmestre/meliwatch/internal/model"
)

// ErrNotFound is returned when a requested key has no value in the store.
var ErrNotFound = errors.New("store: not found")

// CredentialStore is the external key-value store holding per-account
// credentials. The engine only consumes it; the token manager is the sole
// writer and touches nothing but one account's token pair.
type CredentialStore interface {
	// ListAccounts returns every linked seller account.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// GetAccount returns one account by user id.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// SaveTokens persists a rotated token pair for one account. It must not
	// modify any other field or any other account.
	SaveTokens(ctx context.Context, userID, accessToken, refreshToken string) error
}

// ReportStore persists the single live stock report. Each save replaces the
// previous snapshot; no history is retained.
type ReportStore interface {
	SaveStockReport(ctx context.Context, report *model.StockReport) error
	LoadStockReport(ctx context.Context) (*model.StockReport, error)
}

package store

import (
	"context"
	"sync"

	"github.com/dmestre/meliwatch/internal/model"
)

// MemoryStore is an in-process CredentialStore/ReportStore used by tests and
// one-off tooling. Same contract as the Redis store.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	order    []string
	report   *model.StockReport
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]model.Account)}
}

// SaveAccount registers or replaces an account, preserving insertion order.
func (s *MemoryStore) SaveAccount(_ context.Context, acc model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acc.UserID]; !exists {
		s.order = append(s.order, acc.UserID)
	}
	s.accounts[acc.UserID] = acc
	return nil
}

// ListAccounts returns accounts in insertion order.
func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

// GetAccount returns one account by user id.
func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &acc, nil
}

// SaveTokens updates only the token pair of one account.
func (s *MemoryStore) SaveTokens(_ context.Context, userID, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	acc.AccessToken = accessToken
	acc.RefreshToken = refreshToken
	s.accounts[userID] = acc
	return nil
}

// SaveStockReport overwrites the snapshot.
func (s *MemoryStore) SaveStockReport(_ context.Context, report *model.StockReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
	return nil
}

// LoadStockReport returns the snapshot or ErrNotFound.
func (s *MemoryStore) LoadStockReport(_ context.Context) (*model.StockReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil, ErrNotFound
	}
	return s.report, nil
}

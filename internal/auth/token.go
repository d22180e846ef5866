package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dmestre/meliwatch/internal/meli"
	"github.com/dmestre/meliwatch/internal/model"
)

// ErrAuthFailure marks a token that could not be validated or refreshed.
// The scan records it per account and moves on; nothing retries it.
var ErrAuthFailure = errors.New("auth: token unrecoverable")

// API is the slice of the marketplace client the token manager needs.
type API interface {
	GetUser(ctx context.Context, token string) *meli.User
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*meli.TokenPair, error)
}

// TokenWriter persists a rotated token pair for one account.
type TokenWriter interface {
	SaveTokens(ctx context.Context, userID, accessToken, refreshToken string) error
}

// Manager validates and refreshes one account's access token. Safe to use
// for different accounts in parallel: each call only ever writes its own
// account's keys.
type Manager struct {
	api   API
	store TokenWriter
}

// NewManager creates a token manager.
func NewManager(api API, store TokenWriter) *Manager {
	return &Manager{api: api, store: store}
}

// ValidToken returns a token accepted upstream within this call. It probes
// the current token with /users/me; a live token is returned unchanged with
// no store write. A dead token gets exactly one refresh exchange: on success
// both rotated tokens are persisted and the new access token returned, on
// failure ErrAuthFailure surfaces. No retry loop.
func (m *Manager) ValidToken(ctx context.Context, account model.Account) (string, error) {
	if m.api.GetUser(ctx, account.AccessToken) != nil {
		return account.AccessToken, nil
	}

	log.Printf("auth: token expired for %s, refreshing", account.Alias)

	pair, err := m.api.RefreshToken(ctx, account.ClientID, account.ClientSecret, account.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrAuthFailure, account.Alias, err)
	}

	if err := m.store.SaveTokens(ctx, account.UserID, pair.AccessToken, pair.RefreshToken); err != nil {
		log.Printf("auth: persisting rotated tokens for %s: %v", account.Alias, err)
	}

	return pair.AccessToken, nil
}

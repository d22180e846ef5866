package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmestre/meliwatch/internal/model"
)

const (
	accountIndexKey  = "meliwatch:accounts"
	accountKeyPrefix = "meliwatch:accounts:"
	stockReportKey   = "meliwatch:report:stock"
)

// RedisStore implements CredentialStore and ReportStore on a Redis-compatible
// key-value service. Accounts live as one hash per user id plus an index set;
// the stock report is a single JSON value overwritten on every scan.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds connection settings for NewRedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func accountKey(userID string) string {
	return accountKeyPrefix + userID
}

// ListAccounts returns every linked account, skipping index entries whose
// hash has been removed out from under us.
func (s *RedisStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	userIDs, err := s.client.SMembers(ctx, accountIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing account ids: %w", err)
	}

	accounts := make([]model.Account, 0, len(userIDs))
	for _, id := range userIDs {
		acc, err := s.GetAccount(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

// GetAccount reads one account hash.
func (s *RedisStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading account %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	alias := fields["alias"]
	if alias == "" {
		alias = "User " + userID
	}

	return &model.Account{
		UserID:       userID,
		Alias:        alias,
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		ClientID:     fields["client_id"],
		ClientSecret: fields["client_secret"],
	}, nil
}

// SaveTokens writes the rotated pair for one account. Only the two token
// fields of that account's hash are touched.
func (s *RedisStore) SaveTokens(ctx context.Context, userID, accessToken, refreshToken string) error {
	err := s.client.HSet(ctx, accountKey(userID),
		"access_token", accessToken,
		"refresh_token", refreshToken,
	).Err()
	if err != nil {
		return fmt.Errorf("saving tokens for %s: %w", userID, err)
	}
	return nil
}

// SaveAccount registers or replaces a full account record. Used by linking
// tooling, never by the scan path.
func (s *RedisStore) SaveAccount(ctx context.Context, acc model.Account) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, accountKey(acc.UserID),
		"alias", acc.Alias,
		"access_token", acc.AccessToken,
		"refresh_token", acc.RefreshToken,
		"client_id", acc.ClientID,
		"client_secret", acc.ClientSecret,
	)
	pipe.SAdd(ctx, accountIndexKey, acc.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving account %s: %w", acc.UserID, err)
	}
	return nil
}

// SaveStockReport overwrites the single live snapshot.
func (s *RedisStore) SaveStockReport(ctx context.Context, report *model.StockReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling stock report: %w", err)
	}
	if err := s.client.Set(ctx, stockReportKey, data, 0).Err(); err != nil {
		return fmt.Errorf("saving stock report: %w", err)
	}
	return nil
}

// LoadStockReport returns the current snapshot, or ErrNotFound when no scan
// has run yet.
func (s *RedisStore) LoadStockReport(ctx context.Context) (*model.StockReport, error) {
	data, err := s.client.Get(ctx, stockReportKey).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading stock report: %w", err)
	}

	var report model.StockReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshaling stock report: %w", err)
	}
	return &report, nil
}

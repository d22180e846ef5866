package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the engine reads from the environment.
type Config struct {
	Redis    RedisConfig
	Upstream UpstreamConfig
	Scan     ScanConfig
}

// RedisConfig holds the key-value store connection settings. The store keeps
// the per-account credentials and the single live stock report.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// UpstreamConfig holds MercadoLibre API settings.
type UpstreamConfig struct {
	BaseURL         string        `envconfig:"MELI_BASE_URL" default:"https://api.mercadolibre.com"`
	SiteID          string        `envconfig:"MELI_SITE_ID" default:"MLA"`
	RequestTimeout  time.Duration `envconfig:"MELI_REQUEST_TIMEOUT" default:"10s"`
	RequestsPerSec  float64       `envconfig:"MELI_REQUESTS_PER_SEC" default:"5"`
	PublicBurst     int           `envconfig:"MELI_PUBLIC_BURST" default:"5"`
	PublicRefill    time.Duration `envconfig:"MELI_PUBLIC_REFILL" default:"500ms"`
	PreferredUserID string        `envconfig:"MELI_PREFERRED_USER_ID" default:""`
}

// ScanConfig holds stock scanner settings.
type ScanConfig struct {
	Schedule     string `envconfig:"SCAN_SCHEDULE" default:"0 */6 * * *"`
	FetchWorkers int    `envconfig:"SCAN_FETCH_WORKERS" default:"5"`
}

// Load reads configuration from the environment, honoring an optional .env
// file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}
	return &cfg, nil
}

// Address returns the Redis address in host:port form.
func (r *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

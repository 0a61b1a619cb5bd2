package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"macrodb/internal/providers"
)

const (
	envPrefix  = "MACRODB"
	dotEnvFile = ".env"
)

type Config struct {
	App     AppConfig
	Store   StoreConfig
	HTTP    HTTPConfig
	Catalog CatalogConfig
}

type AppConfig struct {
	Env         string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsFile string `envconfig:"METRICS_FILE"`
	ExportDir   string `envconfig:"EXPORT_DIR" default:"."`
}

type StoreConfig struct {
	DBPath string `envconfig:"DB_PATH" default:"belgian_macro.db"`
}

type HTTPConfig struct {
	Timeout         time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	UserAgent       string        `envconfig:"HTTP_USER_AGENT" default:"macrodb/0.1"`
	RateLimitPerSec float64       `envconfig:"HTTP_RATE_LIMIT_PER_SEC" default:"2"`
	RateLimitBurst  int           `envconfig:"HTTP_RATE_LIMIT_BURST" default:"1"`
}

func (c HTTPConfig) Client() providers.HTTPConfig {
	return providers.HTTPConfig{
		Timeout:         c.Timeout,
		UserAgent:       c.UserAgent,
		RateLimitPerSec: c.RateLimitPerSec,
		RateLimitBurst:  c.RateLimitBurst,
	}
}

// CatalogConfig points at an override catalog file. Empty means the embedded default.
type CatalogConfig struct {
	Path string `envconfig:"CATALOG_PATH"`
}

// Load reads MACRODB_* variables, after merging a .env file from the working
// directory when one exists. Variables already set in the environment win.
func Load() (*Config, error) {
	return load(dotEnvFile)
}

func load(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: %s: %w", envFile, err)
	}

	var cfg Config
	sections := map[string]any{
		"app":     &cfg.App,
		"store":   &cfg.Store,
		"http":    &cfg.HTTP,
		"catalog": &cfg.Catalog,
	}
	for name, section := range sections {
		if err := envconfig.Process(envPrefix, section); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return &cfg, nil
}

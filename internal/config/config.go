package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL          string
	CoinGeckoURL         string
	CoinGeckoAPIKey      string
	CoinGeckoRetryMax    int
	CoinGeckoDelay       time.Duration
	DexScreenerURL       string
	DexScreenerEnabled   bool
	RequestTimeout       time.Duration
	RefreshInterval      time.Duration
	RefreshConcurrency   int
	ReportWorkerInterval time.Duration
	HTTPPort             string
	AdminAPIKey          string
	GoogleSheetsID       string
	GoogleCredentials    string
}

// LoadDotEnv loads variables from the given files (".env" when none are given)
// without overriding the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:          envOrDefault("DATABASE_URL", ""),
		CoinGeckoURL:         envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:      envOrDefault("COINGECKO_API_KEY", ""),
		CoinGeckoRetryMax:    envOrDefaultInt("COINGECKO_RETRY_MAX", 2),
		CoinGeckoDelay:       envOrDefaultDuration("COINGECKO_DELAY", 2*time.Second),
		DexScreenerURL:       envOrDefault("DEXSCREENER_URL", "https://api.dexscreener.com"),
		DexScreenerEnabled:   envOrDefaultBool("DEXSCREENER_ENABLED", true),
		RequestTimeout:       envOrDefaultDuration("REQUEST_TIMEOUT", 10*time.Second),
		RefreshInterval:      envOrDefaultDuration("REFRESH_INTERVAL", 30*time.Second),
		RefreshConcurrency:   envOrDefaultInt("REFRESH_CONCURRENCY", 8),
		ReportWorkerInterval: envOrDefaultDuration("REPORT_WORKER_INTERVAL", 24*time.Hour),
		HTTPPort:             envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:          envOrDefault("ADMIN_API_KEY", ""),
		GoogleSheetsID:       envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentials:    envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

// SheetsEnabled reports whether both Google Sheets settings are present.
func (c Config) SheetsEnabled() bool {
	return c.GoogleSheetsID != "" && c.GoogleCredentials != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

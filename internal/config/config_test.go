package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might affect defaults
	for _, key := range []string{
		"DATABASE_URL", "COINGECKO_URL", "COINGECKO_API_KEY", "COINGECKO_RETRY_MAX",
		"DEXSCREENER_ENABLED", "REQUEST_TIMEOUT", "REFRESH_INTERVAL", "REFRESH_CONCURRENCY", "HTTP_PORT",
		"GOOGLE_SHEETS_ID", "GOOGLE_CREDENTIALS_JSON",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.CoinGeckoURL != "https://api.coingecko.com/api/v3" {
		t.Errorf("CoinGeckoURL = %q, want default", cfg.CoinGeckoURL)
	}
	if cfg.CoinGeckoRetryMax != 2 {
		t.Errorf("CoinGeckoRetryMax = %d, want 2", cfg.CoinGeckoRetryMax)
	}
	if !cfg.DexScreenerEnabled {
		t.Error("DexScreenerEnabled = false, want true")
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.RefreshInterval != 30*time.Second {
		t.Errorf("RefreshInterval = %v, want 30s", cfg.RefreshInterval)
	}
	if cfg.RefreshConcurrency != 8 {
		t.Errorf("RefreshConcurrency = %d, want 8", cfg.RefreshConcurrency)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.SheetsEnabled() {
		t.Error("SheetsEnabled() = true, want false")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("COINGECKO_API_KEY", "demo-key")
	t.Setenv("DEXSCREENER_ENABLED", "false")
	t.Setenv("REFRESH_INTERVAL", "5s")
	t.Setenv("GOOGLE_SHEETS_ID", "sheet")
	t.Setenv("GOOGLE_CREDENTIALS_JSON", "{}")

	cfg := Load()

	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
	if cfg.CoinGeckoAPIKey != "demo-key" {
		t.Errorf("CoinGeckoAPIKey = %q, want demo-key", cfg.CoinGeckoAPIKey)
	}
	if cfg.DexScreenerEnabled {
		t.Error("DexScreenerEnabled = true, want false")
	}
	if cfg.RefreshInterval != 5*time.Second {
		t.Errorf("RefreshInterval = %v, want 5s", cfg.RefreshInterval)
	}
	if !cfg.SheetsEnabled() {
		t.Error("SheetsEnabled() = false, want true")
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("REFRESH_CONCURRENCY", "not-a-number")
	t.Setenv("REQUEST_TIMEOUT", "invalid-duration")
	t.Setenv("DEXSCREENER_ENABLED", "maybe")

	cfg := Load()

	if cfg.RefreshConcurrency != 8 {
		t.Errorf("RefreshConcurrency = %d, want default 8 on invalid input", cfg.RefreshConcurrency)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want default 10s on invalid input", cfg.RequestTimeout)
	}
	if !cfg.DexScreenerEnabled {
		t.Error("DexScreenerEnabled = false, want default true on invalid input")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("TRADESIM_DOTENV_PROBE=from-file\nHTTP_PORT=7000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HTTP_PORT", "9999")
	t.Cleanup(func() { os.Unsetenv("TRADESIM_DOTENV_PROBE") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if got := os.Getenv("TRADESIM_DOTENV_PROBE"); got != "from-file" {
		t.Errorf("probe = %q, want from-file", got)
	}
	if got := os.Getenv("HTTP_PORT"); got != "9999" {
		t.Errorf("HTTP_PORT = %q, want process value 9999 kept", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadDotEnv(missing) = %v, want nil", err)
	}
}

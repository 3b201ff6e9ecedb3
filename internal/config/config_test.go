package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "macro.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://overpass-api.de/api/interpreter", cfg.Overpass.URL)
	assert.Equal(t, "https://trackapi.nutritionix.com/v2", cfg.Nutritionix.BaseURL)
	assert.Equal(t, "https://api.nal.usda.gov/fdc/v1", cfg.USDA.BaseURL)
	assert.Equal(t, 50, cfg.USDA.PageSize)
	assert.InDelta(t, 8.0, cfg.Discovery.DefaultRadiusKm, 0.001)
	assert.Equal(t, []string{"mcdonalds", "chipotle", "wingstop"}, cfg.Discovery.DefaultBrands)
	assert.Equal(t, 1500, cfg.Discovery.Retry.InitialBackoffMs)
	assert.Equal(t, 7, cfg.Refresh.StaleDays)
	assert.Equal(t, 3, cfg.Refresh.DiscoveryAttempts)
	assert.InDelta(t, 1.5, cfg.Refresh.RadiusGrowth, 0.001)
	assert.Equal(t, 2000, cfg.Refresh.ImportRetry.InitialBackoffMs)
	assert.InDelta(t, 10.0, cfg.Seed.RadiusKm, 0.001)
	assert.Equal(t, 10, cfg.Seed.TopBrands)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/macro
log:
  level: debug
  format: console
refresh:
  concurrency: 8
nutritionix:
  app_id: abc
  app_key: def
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/macro", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Refresh.Concurrency)
	assert.Equal(t, "abc", cfg.Nutritionix.AppID)
	assert.Equal(t, 7, cfg.Refresh.StaleDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))
	t.Setenv("MACRO_LOG_LEVEL", "warn")
	t.Setenv("MACRO_USDA_KEY", "DEMO_KEY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "DEMO_KEY", cfg.USDA.Key)
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MACRO_NUTRITIONIX_APP_ID", "nix-id")
	t.Setenv("MACRO_NUTRITIONIX_APP_KEY", "nix-key")
	t.Setenv("MACRO_USDA_KEY", "usda-key")
	t.Setenv("MACRO_GOOGLE_KEY", "google-key")
	t.Setenv("MACRO_BRANDS_FILE", "/etc/macro/brands.yaml")
	t.Setenv("MACRO_STORE_MAX_CONNS", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nix-id", cfg.Nutritionix.AppID)
	assert.Equal(t, "nix-key", cfg.Nutritionix.AppKey)
	assert.Equal(t, "usda-key", cfg.USDA.Key)
	assert.Equal(t, "google-key", cfg.Google.Key)
	assert.Equal(t, "/etc/macro/brands.yaml", cfg.Brands.File)
	assert.Equal(t, int32(12), cfg.Store.MaxConns)
}

func TestLoadCredentialsUnset(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Nutritionix.AppID)
	assert.Empty(t, cfg.USDA.Key)
	assert.Empty(t, cfg.Google.Key)
	assert.Empty(t, cfg.Brands.File)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MACRO_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "macro.db"
	cfg.Server.Port = 8080
	cfg.Discovery.DefaultRadiusKm = 8
	cfg.Refresh.StaleDays = 7
	cfg.Refresh.Concurrency = 4
	cfg.Refresh.RadiusGrowth = 1.5
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
	assert.NoError(t, validDefaults().Validate("cli"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate("cli"))

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Refresh.Concurrency = 0
	cfg.Refresh.StaleDays = 0
	cfg.Discovery.DefaultRadiusKm = 80
	cfg.Nutritionix.AppID = "id-only"

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "refresh.concurrency must be between 1 and 32")
	assert.Contains(t, err.Error(), "refresh.stale_days must be > 0")
	assert.Contains(t, err.Error(), "discovery.default_radius_km")
	assert.Contains(t, err.Error(), "nutritionix.app_key is required")
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/macro-finder/internal/config"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/rank"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "status", "brands", "discover", "import", "upload", "search", "price", "refresh", "seed"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "macro-finder", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSeedCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range seedCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["status"])
	assert.True(t, names["metros"])

	for _, flagName := range []string{"metro", "top-metros", "radius", "top-brands"} {
		assert.NotNil(t, seedCmd.Flags().Lookup(flagName), "seed should have --%s flag", flagName)
	}
	limit := seedStatusCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "20", limit.DefValue)
}

func TestSearchCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"mode", "protein", "calories", "wp", "wc", "wr", "lat", "lng", "radius", "price-cap", "min-protein", "include", "exclude", "limit", "debug", "refresh", "json"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(flagName), "search should have --%s flag", flagName)
	}
	assert.Equal(t, "bulking", searchCmd.Flags().Lookup("mode").DefValue)
}

func TestDiscoverCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"lat", "lng", "radius", "brands"} {
		assert.NotNil(t, discoverCmd.Flags().Lookup(flagName), "discover should have --%s flag", flagName)
	}
}

func newSearchFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
	addSearchFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestSearchRequestFromFlags(t *testing.T) {
	fs := newSearchFlags(t,
		"--mode", "cutting",
		"--protein", "40",
		"--lat", "30.2672", "--lng", "-97.7431",
		"--price-cap", "12.5",
		"--include", "chipotle,wingstop",
		"--exclude", "mcdonalds",
		"--wr", "2",
	)

	req, err := searchRequestFromFlags(fs)
	require.NoError(t, err)
	assert.Equal(t, rank.Cutting, req.Mode)
	require.NotNil(t, req.TargetProtein)
	assert.Equal(t, 40, *req.TargetProtein)
	assert.Nil(t, req.TargetCalories)
	assert.Nil(t, req.MinProtein)
	require.NotNil(t, req.Lat)
	assert.InDelta(t, 30.2672, *req.Lat, 1e-9)
	assert.InDelta(t, -97.7431, *req.Lng, 1e-9)
	require.NotNil(t, req.PriceCap)
	assert.InDelta(t, 12.5, *req.PriceCap, 1e-9)
	assert.Equal(t, []string{"chipotle", "wingstop"}, req.IncludeBrands)
	assert.Equal(t, []string{"mcdonalds"}, req.ExcludeBrands)
	assert.Equal(t, 2.0, req.WR)
	assert.Equal(t, 1.0, req.WP)
	assert.Equal(t, rank.DefaultLimit, req.Limit)
}

func TestSearchRequestFromFlags_NoPoint(t *testing.T) {
	req, err := searchRequestFromFlags(newSearchFlags(t))
	require.NoError(t, err)
	assert.Nil(t, req.Lat)
	assert.Nil(t, req.Lng)
	assert.Equal(t, rank.Bulking, req.Mode)
}

func TestSearchRequestFromFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"lat without lng", []string{"--lat", "30"}},
		{"bad mode", []string{"--mode", "maintenance"}},
		{"lat out of range", []string{"--lat", "95", "--lng", "0"}},
		{"negative price cap", []string{"--price-cap", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := searchRequestFromFlags(newSearchFlags(t, tt.args...))
			var ve *model.ValidationError
			assert.True(t, errors.As(err, &ve), "want validation error, got %v", err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", " ", "c,"}))
	assert.Nil(t, splitList(nil))
}

func TestParsePriceArg(t *testing.T) {
	p, err := parsePriceArg("$12.49")
	require.NoError(t, err)
	assert.InDelta(t, 12.49, p, 1e-9)

	for _, bad := range []string{"abc", "0", "-3", "1000.01", "NaN"} {
		_, err := parsePriceArg(bad)
		assert.Error(t, err, bad)
	}
}

func TestInitStore_SQLite(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "macro.db"),
	}}

	ctx := context.Background()
	st, err := openStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Brands)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestDiscoveryProviders_Order(t *testing.T) {
	c := &config.Config{
		Overpass: config.OverpassConfig{URL: "http://primary", MirrorURL: "http://mirror", TimeoutSecs: 25},
	}
	providers := discoveryProviders(c)
	require.Len(t, providers, 2)
	assert.Equal(t, "overpass", providers[0].Name())
	assert.Equal(t, "overpass_mirror", providers[1].Name())

	c.Google.Key = "gkey"
	providers = discoveryProviders(c)
	require.Len(t, providers, 3)
	assert.Equal(t, "google_places", providers[2].Name())
}

func TestNutritionSources(t *testing.T) {
	c := &config.Config{}
	assert.Empty(t, nutritionSources(c))

	c.Nutritionix = config.NutritionixConfig{AppID: "id"}
	assert.Empty(t, nutritionSources(c), "both app id and key are needed")

	c.Nutritionix.AppKey = "key"
	c.USDA.Key = "usda"
	sources := nutritionSources(c)
	require.Len(t, sources, 2)
	assert.Equal(t, model.SourceNutritionix, sources[0].Name())
	assert.Equal(t, model.SourceUSDA, sources[1].Name())
}

func TestLoadRegistry(t *testing.T) {
	reg, err := loadRegistry(&config.Config{})
	require.NoError(t, err)
	assert.Positive(t, reg.Len())

	_, err = loadRegistry(&config.Config{Brands: config.BrandsConfig{File: filepath.Join(t.TempDir(), "missing.yaml")}})
	assert.Error(t, err)
}

func TestRetryFrom(t *testing.T) {
	r := retryFrom(config.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 2000, MaxBackoffMs: 8000, Multiplier: 2})
	assert.Equal(t, 3, r.MaxAttempts)
	assert.Equal(t, "2s", r.InitialBackoff.String())
	assert.Equal(t, "8s", r.MaxBackoff.String())
}

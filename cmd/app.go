package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/config"
	"github.com/sells-group/macro-finder/internal/discovery"
	"github.com/sells-group/macro-finder/internal/menu"
	"github.com/sells-group/macro-finder/internal/rank"
	"github.com/sells-group/macro-finder/internal/refresh"
	"github.com/sells-group/macro-finder/internal/resilience"
	"github.com/sells-group/macro-finder/internal/seed"
	"github.com/sells-group/macro-finder/internal/store"
	"github.com/sells-group/macro-finder/pkg/google"
	"github.com/sells-group/macro-finder/pkg/nutritionix"
	"github.com/sells-group/macro-finder/pkg/overpass"
	"github.com/sells-group/macro-finder/pkg/usda"
)

// appEnv holds the store and every component built on it.
type appEnv struct {
	Store     store.Store
	Registry  *brand.Registry
	Breakers  *resilience.ServiceBreakers
	Chain     *discovery.Chain
	Discovery *discovery.Orchestrator
	Importer  *menu.Importer
	Uploader  *menu.Uploader
	Ranker    *rank.Ranker
	Refresher *refresh.Refresher
	Seeds     *seed.Runner
}

// Close waits for background seed jobs and releases the store.
func (e *appEnv) Close() {
	if e.Seeds != nil {
		e.Seeds.Wait()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "macro.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the store. Callers should defer Close.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func loadRegistry(c *config.Config) (*brand.Registry, error) {
	reg, err := brand.LoadRegistry(c.Brands.File)
	if err != nil {
		return nil, eris.Wrap(err, "load brand registry")
	}
	return reg, nil
}

func retryFrom(r config.RetryConfig) resilience.RetryConfig {
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// discoveryProviders builds the provider chain order: the primary Overpass
// endpoint, its mirror, then Google Places when a key is configured.
func discoveryProviders(c *config.Config) []discovery.Provider {
	overpassOpts := func(endpoint string) []overpass.Option {
		return []overpass.Option{
			overpass.WithEndpoint(endpoint),
			overpass.WithUserAgent(c.Overpass.UserAgent),
			overpass.WithRateLimit(c.Overpass.RateLimit),
		}
	}

	var providers []discovery.Provider
	if c.Overpass.URL != "" {
		providers = append(providers, discovery.NewOverpassProvider("overpass",
			overpass.NewClient(overpassOpts(c.Overpass.URL)...), c.Overpass.TimeoutSecs))
	}
	if c.Overpass.MirrorURL != "" {
		providers = append(providers, discovery.NewOverpassProvider("overpass_mirror",
			overpass.NewClient(overpassOpts(c.Overpass.MirrorURL)...), c.Overpass.TimeoutSecs))
	}
	if c.Google.Key != "" {
		providers = append(providers, discovery.NewPlacesProvider(google.NewClient(c.Google.Key,
			google.WithBaseURL(c.Google.BaseURL),
			google.WithRateLimit(c.Google.RateLimit),
		)))
	}
	return providers
}

// nutritionSources returns the configured menu sources in priority order.
func nutritionSources(c *config.Config) []menu.Source {
	var sources []menu.Source
	if c.Nutritionix.AppID != "" && c.Nutritionix.AppKey != "" {
		sources = append(sources, menu.NewNutritionixSource(nutritionix.NewClient(
			c.Nutritionix.AppID, c.Nutritionix.AppKey,
			nutritionix.WithBaseURL(c.Nutritionix.BaseURL),
			nutritionix.WithRateLimit(c.Nutritionix.RateLimit),
		)))
	}
	if c.USDA.Key != "" {
		sources = append(sources, menu.NewUSDASource(usda.NewClient(c.USDA.Key,
			usda.WithBaseURL(c.USDA.BaseURL),
			usda.WithPageSize(c.USDA.PageSize),
		)))
	}
	return sources
}

// initApp opens the store and builds every component from cfg. Callers
// should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("cli"); err != nil {
		return nil, err
	}

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &appEnv{Store: st, Registry: reg}

	env.Breakers = resilience.NewServiceBreakers(resilience.FromCircuitConfig(
		cfg.Discovery.Circuit.FailureThreshold, cfg.Discovery.Circuit.ResetTimeoutSecs))
	env.Chain = discovery.NewChain(retryFrom(cfg.Discovery.Retry), env.Breakers, discoveryProviders(cfg)...)
	env.Discovery = discovery.NewOrchestrator(env.Chain, reg, st,
		discovery.WithDefaultRadius(cfg.Discovery.DefaultRadiusKm),
		discovery.WithDefaultBrands(cfg.Discovery.DefaultBrands),
	)

	sources := nutritionSources(cfg)
	if len(sources) == 0 {
		zap.L().Warn("no nutrition source configured; menu imports are disabled")
	}
	env.Importer = menu.NewImporter(st, reg, retryFrom(cfg.Import.Retry), sources...)
	env.Uploader = menu.NewUploader(st)
	env.Ranker = rank.NewRanker(st)

	staleAfter := time.Duration(cfg.Refresh.StaleDays) * 24 * time.Hour
	env.Refresher = refresh.New(st, env.Discovery, env.Importer, refresh.Options{
		StaleAfter:        staleAfter,
		Concurrency:       cfg.Refresh.Concurrency,
		DiscoveryAttempts: cfg.Refresh.DiscoveryAttempts,
		RadiusGrowth:      cfg.Refresh.RadiusGrowth,
		DefaultBrands:     cfg.Refresh.DefaultBrands,
		ImportRetry:       retryFrom(cfg.Refresh.ImportRetry),
	})
	env.Seeds = seed.NewRunner(st, env.Discovery, env.Importer, seed.Options{
		RadiusKm:    cfg.Seed.RadiusKm,
		TopBrands:   cfg.Seed.TopBrands,
		MetroDelay:  time.Duration(cfg.Seed.MetroDelayMs) * time.Millisecond,
		ImportDelay: time.Duration(cfg.Seed.ImportDelayMs) * time.Millisecond,
		StaleAfter:  staleAfter,
	})

	zap.L().Debug("app initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("providers", env.Chain.Providers()),
		zap.Int("brands", reg.Len()),
		zap.Int("nutrition_sources", len(sources)),
	)
	return env, nil
}

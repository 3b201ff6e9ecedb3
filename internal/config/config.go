package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Brands      BrandsConfig      `yaml:"brands" mapstructure:"brands"`
	Overpass    OverpassConfig    `yaml:"overpass" mapstructure:"overpass"`
	Google      GoogleConfig      `yaml:"google" mapstructure:"google"`
	Nutritionix NutritionixConfig `yaml:"nutritionix" mapstructure:"nutritionix"`
	USDA        USDAConfig        `yaml:"usda" mapstructure:"usda"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Import      ImportConfig      `yaml:"import" mapstructure:"import"`
	Refresh     RefreshConfig     `yaml:"refresh" mapstructure:"refresh"`
	Seed        SeedConfig        `yaml:"seed" mapstructure:"seed"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// SearchRefreshTimeoutSecs bounds the refresh a search may trigger. The
	// refresh keeps running if the client disconnects.
	SearchRefreshTimeoutSecs int `yaml:"search_refresh_timeout_secs" mapstructure:"search_refresh_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BrandsConfig points at an optional brand registry file replacing the
// embedded one.
type BrandsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// OverpassConfig holds OpenStreetMap Overpass API settings.
type OverpassConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	MirrorURL   string  `yaml:"mirror_url" mapstructure:"mirror_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GoogleConfig holds Google Places API settings. Places discovery is
// disabled when Key is empty.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NutritionixConfig holds Nutritionix API credentials.
type NutritionixConfig struct {
	AppID     string  `yaml:"app_id" mapstructure:"app_id"`
	AppKey    string  `yaml:"app_key" mapstructure:"app_key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// USDAConfig holds FoodData Central API settings.
type USDAConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// RetryConfig mirrors resilience.RetryConfig in config-friendly units.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// DiscoveryConfig configures place discovery.
type DiscoveryConfig struct {
	DefaultRadiusKm float64       `yaml:"default_radius_km" mapstructure:"default_radius_km"`
	DefaultBrands   []string      `yaml:"default_brands" mapstructure:"default_brands"`
	Retry           RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit         CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// ImportConfig configures nutrition source calls made by the menu importer.
type ImportConfig struct {
	Retry RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RefreshConfig configures the stale-menu refresh.
type RefreshConfig struct {
	StaleDays         int         `yaml:"stale_days" mapstructure:"stale_days"`
	Concurrency       int         `yaml:"concurrency" mapstructure:"concurrency"`
	DiscoveryAttempts int         `yaml:"discovery_attempts" mapstructure:"discovery_attempts"`
	RadiusGrowth      float64     `yaml:"radius_growth" mapstructure:"radius_growth"`
	DefaultBrands     []string    `yaml:"default_brands" mapstructure:"default_brands"`
	ImportRetry       RetryConfig `yaml:"import_retry" mapstructure:"import_retry"`
}

// SeedConfig configures metro seeding jobs.
type SeedConfig struct {
	RadiusKm      float64 `yaml:"radius_km" mapstructure:"radius_km"`
	TopBrands     int     `yaml:"top_brands" mapstructure:"top_brands"`
	MetroDelayMs  int     `yaml:"metro_delay_ms" mapstructure:"metro_delay_ms"`
	ImportDelayMs int     `yaml:"import_delay_ms" mapstructure:"import_delay_ms"`
}

// envOnlyKeys lists settings that have no default but can still be supplied
// as MACRO_* environment variables.
var envOnlyKeys = []string{
	"store.max_conns",
	"store.min_conns",
	"brands.file",
	"google.key",
	"nutritionix.app_id",
	"nutritionix.app_key",
	"usda.key",
	"refresh.default_brands",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MACRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "macro.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.search_refresh_timeout_secs", 90)
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.mirror_url", "https://overpass.kumi.systems/api/interpreter")
	v.SetDefault("overpass.user_agent", "macro-finder/1.0")
	v.SetDefault("overpass.timeout_secs", 25)
	v.SetDefault("overpass.rate_limit", 1.0)
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("nutritionix.base_url", "https://trackapi.nutritionix.com/v2")
	v.SetDefault("nutritionix.rate_limit", 2.0)
	v.SetDefault("usda.base_url", "https://api.nal.usda.gov/fdc/v1")
	v.SetDefault("usda.page_size", 50)
	v.SetDefault("discovery.default_radius_km", 8.0)
	v.SetDefault("discovery.default_brands", []string{"mcdonalds", "chipotle", "wingstop"})
	v.SetDefault("discovery.retry.max_attempts", 3)
	v.SetDefault("discovery.retry.initial_backoff_ms", 1500)
	v.SetDefault("discovery.retry.max_backoff_ms", 10000)
	v.SetDefault("discovery.retry.multiplier", 2.0)
	v.SetDefault("discovery.retry.jitter_fraction", 0.25)
	v.SetDefault("discovery.circuit.failure_threshold", 5)
	v.SetDefault("discovery.circuit.reset_timeout_secs", 60)
	v.SetDefault("import.retry.max_attempts", 2)
	v.SetDefault("import.retry.initial_backoff_ms", 1000)
	v.SetDefault("import.retry.max_backoff_ms", 5000)
	v.SetDefault("import.retry.multiplier", 2.0)
	v.SetDefault("import.retry.jitter_fraction", 0.25)
	v.SetDefault("refresh.stale_days", 7)
	v.SetDefault("refresh.concurrency", 4)
	v.SetDefault("refresh.discovery_attempts", 3)
	v.SetDefault("refresh.radius_growth", 1.5)
	v.SetDefault("refresh.import_retry.max_attempts", 3)
	v.SetDefault("refresh.import_retry.initial_backoff_ms", 2000)
	v.SetDefault("refresh.import_retry.max_backoff_ms", 8000)
	v.SetDefault("refresh.import_retry.multiplier", 2.0)
	v.SetDefault("refresh.import_retry.jitter_fraction", 0.0)
	v.SetDefault("seed.radius_km", 10.0)
	v.SetDefault("seed.top_brands", 10)
	v.SetDefault("seed.metro_delay_ms", 2000)
	v.SetDefault("seed.import_delay_ms", 1000)

	// Keys with no default are invisible to AutomaticEnv during Unmarshal,
	// so credentials and optional settings are bound explicitly.
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

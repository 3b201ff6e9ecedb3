package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings required by the given run mode ("serve" or
// "cli") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "cli":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if r := c.Discovery.DefaultRadiusKm; r <= 0 || r > 50 {
		problems = append(problems, "discovery.default_radius_km must be in (0, 50]")
	}
	if c.Refresh.StaleDays <= 0 {
		problems = append(problems, "refresh.stale_days must be > 0")
	}
	if c.Refresh.Concurrency < 1 || c.Refresh.Concurrency > 32 {
		problems = append(problems, "refresh.concurrency must be between 1 and 32")
	}
	if c.Refresh.RadiusGrowth < 1 {
		problems = append(problems, "refresh.radius_growth must be >= 1")
	}
	if c.Nutritionix.AppID != "" && c.Nutritionix.AppKey == "" {
		problems = append(problems, "nutritionix.app_key is required when app_id is set")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

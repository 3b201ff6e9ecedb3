package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/resilience"
)

// Chain tries providers in priority order. Each provider is retried on
// rate-limit and gateway-timeout errors behind its own circuit breaker; the
// chain advances on exhaustion, empty results or exhausted retries.
type Chain struct {
	providers []Provider
	retry     resilience.RetryConfig
	breakers  *resilience.ServiceBreakers
}

// NewChain builds a chain over providers in the given order.
func NewChain(retry resilience.RetryConfig, breakers *resilience.ServiceBreakers, providers ...Provider) *Chain {
	if breakers == nil {
		breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Chain{providers: providers, retry: retry, breakers: breakers}
}

// Providers returns the provider names in priority order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

type fetchResult struct {
	features  []Feature
	exhausted bool
}

// Fetch returns the first non-empty feature list and the provider that
// produced it. When every provider comes back empty the result is nil with
// the last provider error, if any.
func (c *Chain) Fetch(ctx context.Context, q Query) ([]Feature, string, error) {
	log := zap.L().With(zap.String("component", "discovery"), zap.Bool("broad", q.Broad))

	var lastErr error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		retry := c.retry
		retry.ShouldRetry = resilience.IsRateLimited
		retry.OnRetry = resilience.RetryLogger(p.Name(), "fetch")

		res, err := resilience.ExecuteVal(ctx, c.breakers.Get(p.Name()), func(ctx context.Context) (fetchResult, error) {
			return resilience.DoVal(ctx, retry, func(ctx context.Context) (fetchResult, error) {
				features, exhausted, err := p.TryFetch(ctx, q)
				return fetchResult{features: features, exhausted: exhausted}, err
			})
		})
		if err != nil {
			log.Warn("provider failed", zap.String("provider", p.Name()), zap.Error(err))
			lastErr = err
			continue
		}
		if res.exhausted || len(res.features) == 0 {
			log.Debug("provider returned nothing", zap.String("provider", p.Name()), zap.Bool("exhausted", res.exhausted))
			continue
		}

		log.Info("provider returned features", zap.String("provider", p.Name()), zap.Int("count", len(res.features)))
		return res.features, p.Name(), nil
	}
	return nil, "", lastErr
}

// Package nutritionix is a client for the Nutritionix v2 track API.
package nutritionix

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/macro-finder/internal/resilience"
)

const defaultBaseURL = "https://trackapi.nutritionix.com/v2"

// Client performs Nutritionix API operations.
type Client interface {
	SearchInstant(ctx context.Context, query string) (*InstantResponse, error)
}

// InstantResponse is the body of /search/instant. Only branded results are
// decoded.
type InstantResponse struct {
	Branded []BrandedFood `json:"branded"`
}

// BrandedFood is one restaurant or packaged food hit.
type BrandedFood struct {
	FoodName   string  `json:"food_name"`
	BrandName  string  `json:"brand_name"`
	NixBrandID string  `json:"nix_brand_id"`
	NixItemID  string  `json:"nix_item_id"`
	Calories   float64 `json:"nf_calories"`
	Protein    float64 `json:"nf_protein"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	appID   string
	appKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Nutritionix client authenticated with an app id/key
// pair.
func NewClient(appID, appKey string, opts ...Option) Client {
	c := &httpClient{
		appID:   appID,
		appKey:  appKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchInstant(ctx context.Context, query string) (*InstantResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "nutritionix: rate limit wait")
		}
	}

	u := c.baseURL + "/search/instant?" + url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nutritionix: create request")
	}
	req.Header.Set("x-app-id", c.appID)
	req.Header.Set("x-app-key", c.appKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nutritionix: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nutritionix: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("nutritionix: unexpected status %d: %s", resp.StatusCode, string(body))
		if te := resilience.FromResponse(statusErr, resp); te != nil {
			return nil, te
		}
		return nil, statusErr
	}

	var result InstantResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "nutritionix: unmarshal response")
	}
	return &result, nil
}

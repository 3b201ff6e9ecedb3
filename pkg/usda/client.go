// Package usda is a client for the USDA FoodData Central search API.
package usda

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/macro-finder/internal/resilience"
)

const (
	defaultBaseURL  = "https://api.nal.usda.gov/fdc/v1"
	defaultPageSize = 50
)

// Client performs FoodData Central operations.
type Client interface {
	SearchBranded(ctx context.Context, query string) (*SearchResponse, error)
}

// SearchResponse is the body of /foods/search.
type SearchResponse struct {
	TotalHits int    `json:"totalHits"`
	Foods     []Food `json:"foods"`
}

// Food is one branded food record.
type Food struct {
	FdcID          int64           `json:"fdcId"`
	Description    string          `json:"description"`
	BrandOwner     string          `json:"brandOwner"`
	BrandName      string          `json:"brandName"`
	LabelNutrients *LabelNutrients `json:"labelNutrients,omitempty"`
}

// LabelNutrients holds per-serving values from the nutrition label.
type LabelNutrients struct {
	Calories *NutrientValue `json:"calories,omitempty"`
	Protein  *NutrientValue `json:"protein,omitempty"`
}

// NutrientValue is a single label value.
type NutrientValue struct {
	Value float64 `json:"value"`
}

// Calories returns the label calories, or 0 when absent.
func (f Food) Calories() float64 {
	if f.LabelNutrients == nil || f.LabelNutrients.Calories == nil {
		return 0
	}
	return f.LabelNutrients.Calories.Value
}

// Protein returns the label protein grams, or 0 when absent.
func (f Food) Protein() float64 {
	if f.LabelNutrients == nil || f.LabelNutrients.Protein == nil {
		return 0
	}
	return f.LabelNutrients.Protein.Value
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

// WithPageSize sets the number of foods requested per search.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	pageSize int
	http     *http.Client
}

// NewClient creates a FoodData Central client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		http: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchBranded(ctx context.Context, query string) (*SearchResponse, error) {
	params := url.Values{
		"query":    {query},
		"dataType": {"Branded"},
		"pageSize": {strconv.Itoa(c.pageSize)},
		"api_key":  {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/foods/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "usda: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "usda: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "usda: read response")
	}

	if resp.StatusCode != http.StatusOK {
		// The body can echo the api_key; keep it out of the error.
		statusErr := eris.Errorf("usda: unexpected status %d", resp.StatusCode)
		if te := resilience.FromResponse(statusErr, resp); te != nil {
			return nil, te
		}
		return nil, statusErr
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "usda: unmarshal response")
	}
	return &result, nil
}

// Package google is a minimal Google Places (New) client used as a secondary
// source of restaurant locations.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/macro-finder/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

const searchFieldMask = "places.id,places.displayName,places.formattedAddress,places.location,places.primaryType,nextPageToken"

// Client performs Google Places API operations.
type Client interface {
	SearchText(ctx context.Context, req SearchTextRequest) (*SearchTextResponse, error)
}

// SearchTextRequest is the body of a Places Text Search call.
type SearchTextRequest struct {
	TextQuery           string        `json:"textQuery"`
	IncludedType        string        `json:"includedType,omitempty"`
	PageSize            int           `json:"pageSize,omitempty"`
	PageToken           string        `json:"pageToken,omitempty"`
	LocationRestriction *LocationRect `json:"locationRestriction,omitempty"`
}

// LocationRect restricts results to a lat/lng rectangle.
type LocationRect struct {
	Rectangle Rectangle `json:"rectangle"`
}

// Rectangle is a viewport given by its south-west and north-east corners.
type Rectangle struct {
	Low  LatLng `json:"low"`
	High LatLng `json:"high"`
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SearchTextResponse is one page of Text Search results.
type SearchTextResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Place is a place returned by Text Search.
type Place struct {
	ID               string      `json:"id"`
	DisplayName      DisplayName `json:"displayName"`
	FormattedAddress string      `json:"formattedAddress,omitempty"`
	Location         *LatLng     `json:"location,omitempty"`
	PrimaryType      string      `json:"primaryType,omitempty"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
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
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchText(ctx context.Context, sr SearchTextRequest) (*SearchTextResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "google: rate limit wait")
		}
	}

	body, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", searchFieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if te := resilience.FromResponse(statusErr, resp); te != nil {
			return nil, te
		}
		return nil, statusErr
	}

	var result SearchTextResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}

// Package overpass is a client for the OpenStreetMap Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/macro-finder/internal/resilience"
)

const (
	// DefaultURL is the public Overpass interpreter.
	DefaultURL = "https://overpass-api.de/api/interpreter"
	// MirrorURL is a public mirror used when the primary is saturated.
	MirrorURL = "https://overpass.kumi.systems/api/interpreter"

	defaultUserAgent = "macro-finder/1.0"
)

// Client runs Overpass QL queries.
type Client interface {
	Interpreter(ctx context.Context, query string) (*Response, error)
	Endpoint() string
}

// Response is the JSON body returned for `[out:json]` queries.
type Response struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Elements  []Element `json:"elements"`
}

// Element is an OSM node, way or relation. Ways and relations carry a
// Center when queried with `out center`.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is the centroid of a way or relation.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Coordinates returns the element's own position, falling back to its
// center.
func (e Element) Coordinates() (lat, lng float64, ok bool) {
	if e.Lat != nil && e.Lon != nil {
		return *e.Lat, *e.Lon, true
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// Tag returns the tag value for key, or "".
func (e Element) Tag(key string) string {
	return e.Tags[key]
}

// Option configures the client.
type Option func(*httpClient)

// WithEndpoint overrides the interpreter URL.
func WithEndpoint(endpoint string) Option {
	return func(c *httpClient) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header. Public instances reject
// anonymous clients.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
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
	endpoint  string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates an Overpass client. The default timeout covers the
// server-side `[timeout:25]` plus transfer time.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		endpoint:  DefaultURL,
		userAgent: defaultUserAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Endpoint() string { return c.endpoint }

func (c *httpClient) Interpreter(ctx context.Context, query string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "overpass: rate limit wait")
		}
	}

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("overpass: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if te := resilience.FromResponse(statusErr, resp); te != nil {
			return nil, te
		}
		return nil, statusErr
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

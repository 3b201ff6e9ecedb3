package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/macro-finder/internal/resilience"
)

const sampleResponse = `{
  "version": 0.6,
  "generator": "Overpass API",
  "elements": [
    {"type": "node", "id": 101, "lat": 32.78, "lon": -96.80,
     "tags": {"amenity": "fast_food", "name": "McDonald's", "brand": "McDonald's", "addr:street": "Elm St", "addr:city": "Dallas", "addr:state": "TX", "addr:postcode": "75201"}},
    {"type": "way", "id": 202, "center": {"lat": 32.79, "lon": -96.81},
     "tags": {"amenity": "fast_food", "name": "Chipotle"}},
    {"type": "node", "id": 303}
  ]
}`

func TestInterpreter_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("data"), "[out:json]")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL), WithUserAgent("test-agent/1.0"))
	assert.Equal(t, srv.URL, c.Endpoint())

	resp, err := c.Interpreter(context.Background(), "[out:json];node(1);out;")
	require.NoError(t, err)
	require.Len(t, resp.Elements, 3)

	node := resp.Elements[0]
	lat, lng, ok := node.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 32.78, lat)
	assert.Equal(t, -96.80, lng)
	assert.Equal(t, "McDonald's", node.Tag("brand"))
	assert.Equal(t, "75201", node.Tag("addr:postcode"))

	way := resp.Elements[1]
	lat, lng, ok = way.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 32.79, lat)
	assert.Equal(t, -96.81, lng)
	assert.Equal(t, "way", way.Type)

	_, _, ok = resp.Elements[2].Coordinates()
	assert.False(t, ok)
	assert.Empty(t, resp.Elements[2].Tag("name"))
}

func TestInterpreter_GatewayTimeoutIsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
		_, _ = w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL))
	_, err := c.Interpreter(context.Background(), "q")

	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	assert.Contains(t, err.Error(), "504")
	assert.Less(t, len(err.Error()), 300)
}

func TestInterpreter_BadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("parse error"))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL))
	_, err := c.Interpreter(context.Background(), "q")

	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "parse error")
}

func TestInterpreter_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>busy</html>"))
	}))
	defer srv.Close()

	c := NewClient(WithEndpoint(srv.URL))
	_, err := c.Interpreter(context.Background(), "q")
	assert.Error(t, err)
}

func TestInterpreter_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(WithEndpoint(srv.URL), WithRateLimit(1), WithHTTPClient(srv.Client()))
	_, err := c.Interpreter(ctx, "q")
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(WithUserAgent("")).(*httpClient)
	assert.Equal(t, DefaultURL, c.endpoint)
	assert.Equal(t, defaultUserAgent, c.userAgent)
	assert.Nil(t, c.limiter)
}

package usda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/macro-finder/internal/resilience"
)

func TestSearchBranded_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/foods/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Wingstop", q.Get("query"))
		assert.Equal(t, "Branded", q.Get("dataType"))
		assert.Equal(t, "25", q.Get("pageSize"))
		assert.Equal(t, "fdc-key", q.Get("api_key"))

		_, _ = w.Write([]byte(`{
			"totalHits": 2,
			"foods": [
				{"fdcId": 111, "description": "WINGSTOP CLASSIC WINGS", "brandOwner": "Wingstop Restaurants Inc.",
				 "labelNutrients": {"calories": {"value": 480}, "protein": {"value": 40.5}}},
				{"fdcId": 222, "description": "WINGSTOP RANCH", "brandOwner": "Wingstop Restaurants Inc."}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient("fdc-key", WithBaseURL(srv.URL), WithPageSize(25))
	resp, err := c.SearchBranded(context.Background(), "Wingstop")

	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalHits)
	require.Len(t, resp.Foods, 2)
	assert.Equal(t, int64(111), resp.Foods[0].FdcID)
	assert.Equal(t, 480.0, resp.Foods[0].Calories())
	assert.Equal(t, 40.5, resp.Foods[0].Protein())
	assert.Equal(t, 0.0, resp.Foods[1].Calories())
	assert.Equal(t, 0.0, resp.Foods[1].Protein())
}

func TestSearchBranded_DefaultPageSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"foods": []}`))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL), WithPageSize(0))
	resp, err := c.SearchBranded(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, resp.Foods)
}

func TestSearchBranded_ErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "bad key ` + r.URL.Query().Get("api_key") + `"}`))
	}))
	defer srv.Close()

	c := NewClient("secret-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.SearchBranded(context.Background(), "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestSearchBranded_Transient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.SearchBranded(context.Background(), "x")

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsRateLimited(err))
}
